package chathub_test

import (
	"sync/atomic"
	"testing"
	"time"

	"matchroom/backend/internal/models"
)

type MockClient struct {
	userID      string
	RecvChannel chan models.ServerEvent
	closed      atomic.Bool
}

func newMockClient(userID string) *MockClient {
	return &MockClient{
		userID:      userID,
		RecvChannel: make(chan models.ServerEvent, 512),
	}
}

func (c *MockClient) GetUserID() string {
	return c.userID
}

func (c *MockClient) GetSendChannel() chan<- models.ServerEvent {
	return c.RecvChannel
}

func (c *MockClient) Run() {
	// Not needed for testing
}

func (c *MockClient) Close() {
	c.closed.Store(true)
}

// waitFor returns the next event of the given type, skipping others.
func (c *MockClient) waitFor(t *testing.T, eventType string) models.ServerEvent {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-c.RecvChannel:
			if ev.Type == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("%s never received %s", c.userID, eventType)
			return models.ServerEvent{}
		}
	}
}
