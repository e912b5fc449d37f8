package chathub

import "qchat/backend/internal/models"

// forwardTyping relays typing and stop-typing. Inside a room the indicator goes
// to the partner; outside one it goes straight to the named peer if it is online.
// Indicators are never stored and never fail loudly when the peer is gone.
func (m *ManagerService) forwardTyping(ev models.Event) {
	if ev.RoomID != "" {
		m.Matcher.relayTyping(ev.RoomID, ev.From, ev.Type)
		return
	}
	if ev.To == "" || ev.To == ev.From {
		m.reply(ev.From, models.EventError, ErrInvalidPayload)
		return
	}
	m.sendTo(ev.To, models.Event{Type: ev.Type, From: ev.From})
}
