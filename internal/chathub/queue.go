package chathub

import (
	"container/list"
	"time"
)

// Ticket is one queued request for anonymous pairing.
type Ticket struct {
	UserID     string
	EnqueuedAt time.Time
}

// waitQueue is the FIFO of waiting tickets. An identity appears at most once.
type waitQueue struct {
	order *list.List
	index map[string]*list.Element
}

func newWaitQueue() *waitQueue {
	return &waitQueue{
		order: list.New(),
		index: make(map[string]*list.Element),
	}
}

// Push appends t at the tail. It returns false if the identity is already queued.
func (q *waitQueue) Push(t Ticket) bool {
	if _, ok := q.index[t.UserID]; ok {
		return false
	}
	q.index[t.UserID] = q.order.PushBack(t)
	return true
}

// PushFront puts t back at the head, used when a match falls through.
func (q *waitQueue) PushFront(t Ticket) bool {
	if _, ok := q.index[t.UserID]; ok {
		return false
	}
	q.index[t.UserID] = q.order.PushFront(t)
	return true
}

// Pop removes and returns the oldest ticket.
func (q *waitQueue) Pop() (Ticket, bool) {
	front := q.order.Front()
	if front == nil {
		return Ticket{}, false
	}
	t := q.order.Remove(front).(Ticket)
	delete(q.index, t.UserID)
	return t, true
}

func (q *waitQueue) Remove(userID string) bool {
	el, ok := q.index[userID]
	if !ok {
		return false
	}
	q.order.Remove(el)
	delete(q.index, userID)
	return true
}

func (q *waitQueue) Contains(userID string) bool {
	_, ok := q.index[userID]
	return ok
}

func (q *waitQueue) Len() int {
	return q.order.Len()
}

// Expire removes every ticket enqueued at or before cutoff and returns them in queue order.
func (q *waitQueue) Expire(cutoff time.Time) []Ticket {
	var expired []Ticket
	for el := q.order.Front(); el != nil; {
		next := el.Next()
		t := el.Value.(Ticket)
		if !t.EnqueuedAt.After(cutoff) {
			q.order.Remove(el)
			delete(q.index, t.UserID)
			expired = append(expired, t)
		}
		el = next
	}
	return expired
}

// UserIDs returns the queued identities, head first.
func (q *waitQueue) UserIDs() []string {
	ids := make([]string, 0, q.order.Len())
	for el := q.order.Front(); el != nil; el = el.Next() {
		ids = append(ids, el.Value.(Ticket).UserID)
	}
	return ids
}
