package chathub

import "matchroom/backend/internal/models"

// Client is the interface for any viewer connection (e.g., WebSocket).
// It abstracts the underlying transport, allowing the hub to manage
// different client types uniformly.
type Client interface {
	// GetUserID returns the authenticated user behind the connection.
	GetUserID() string

	// GetSendChannel returns the channel the hub pushes events into.
	GetSendChannel() chan<- models.ServerEvent

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts down the client's outgoing channel. The hub calls it once,
	// after the client is unregistered.
	Close()
}
