package chathub

import "qchat/backend/internal/models"

// Client is the interface for any type of connection (e.g., WebSocket).
// It abstracts the underlying communication mechanism, allowing the hub to manage
// connections uniformly.
type Client interface {
	// GetUserID returns the identity the connection was authenticated as.
	GetUserID() string
	// GetHandle returns the opaque connection handle, unique per live connection.
	GetHandle() string

	// GetSendChannel returns the channel to which the ManagerService (hub) sends
	// events intended for this specific client. It is a send-only channel.
	GetSendChannel() chan<- models.Event

	// Run starts the client's read and write pumps.
	Run()
	// Close gracefully shuts down the client's connection and associated channels.
	// It must be safe to call more than once.
	Close()
}

// Inbound is an event read from a connection, tagged with the handle it arrived on.
// Err is set when the frame could not be decoded; Event then carries only its type,
// if that much was readable.
type Inbound struct {
	Handle string
	Event  models.Event
	Err    error
}
