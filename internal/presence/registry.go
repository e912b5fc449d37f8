// Package presence keeps the authoritative mapping from a user identity to the
// single live connection handle that currently represents it.
//
// A Registry is not safe for concurrent use. It is owned by the hub event loop,
// which serialises every mutation.
package presence

import (
	"sort"
	"time"
)

// Entry is one registered identity.
type Entry struct {
	UserID string
	Handle string
	Since  time.Time
}

type Registry struct {
	byUser   map[string]Entry
	byHandle map[string]string
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		byUser:   make(map[string]Entry),
		byHandle: make(map[string]string),
		now:      time.Now,
	}
}

// Register binds userID to handle. The last registration wins: a previous
// handle for the same identity is forgotten and returned as replaced.
func (r *Registry) Register(userID, handle string) (replaced string) {
	if prev, ok := r.byUser[userID]; ok {
		if prev.Handle == handle {
			return ""
		}
		delete(r.byHandle, prev.Handle)
		replaced = prev.Handle
	}
	// A handle belongs to exactly one identity.
	if owner, ok := r.byHandle[handle]; ok && owner != userID {
		delete(r.byUser, owner)
	}

	r.byUser[userID] = Entry{UserID: userID, Handle: handle, Since: r.now()}
	r.byHandle[handle] = userID
	return replaced
}

// Unregister removes the entry bound to handle. It only removes on an exact
// handle match, so a stale connection closing after its identity re-registered
// on a newer handle leaves the newer registration in place.
func (r *Registry) Unregister(handle string) (userID string, removed bool) {
	userID, ok := r.byHandle[handle]
	if !ok {
		return "", false
	}
	delete(r.byHandle, handle)

	if cur, ok := r.byUser[userID]; ok && cur.Handle == handle {
		delete(r.byUser, userID)
		return userID, true
	}
	return userID, false
}

// Resolve returns the live handle for userID.
func (r *Registry) Resolve(userID string) (string, bool) {
	e, ok := r.byUser[userID]
	if !ok {
		return "", false
	}
	return e.Handle, true
}

// IdentityOf returns the identity currently bound to handle.
func (r *Registry) IdentityOf(handle string) (string, bool) {
	userID, ok := r.byHandle[handle]
	return userID, ok
}

// IsOnline reports whether userID has a live handle.
func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.byUser[userID]
	return ok
}

// OnlineIdentities returns a sorted snapshot of every registered identity.
func (r *Registry) OnlineIdentities() []string {
	ids := make([]string, 0, len(r.byUser))
	for id := range r.byUser {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int {
	return len(r.byUser)
}
