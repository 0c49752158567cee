package chat

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockAdapter implements Adapter for testing. It records sent and deleted
// messages and allows simulating inbound events via SimulateInbound.
type MockAdapter struct {
	mu        sync.Mutex
	connected bool
	closed    bool
	inbound   chan Inbound
	sent      []Outbound
	sentIDs   []string
	deleted   []string // "chatID:messageID"
	nextMsgID int
	sendErr   error
}

// NewMockAdapter creates a MockAdapter with a buffered inbound channel.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{inbound: make(chan Inbound, 100)}
}

// Connect marks the adapter as connected.
func (m *MockAdapter) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("mock adapter: already closed")
	}
	m.connected = true
	return nil
}

// Listen returns the inbound event channel. Must be called after Connect.
func (m *MockAdapter) Listen(ctx context.Context) (<-chan Inbound, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, fmt.Errorf("mock adapter: not connected")
	}
	return m.inbound, nil
}

// Send records the outbound message and assigns it a sequential message ID.
func (m *MockAdapter) Send(ctx context.Context, msg Outbound) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return "", fmt.Errorf("mock adapter: not connected")
	}
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.nextMsgID++
	id := fmt.Sprintf("msg-%d", m.nextMsgID)
	m.sent = append(m.sent, msg)
	m.sentIDs = append(m.sentIDs, id)
	return id, nil
}

// Delete records the deletion.
func (m *MockAdapter) Delete(ctx context.Context, chatID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return fmt.Errorf("mock adapter: not connected")
	}
	m.deleted = append(m.deleted, chatID+":"+messageID)
	return nil
}

// Close shuts down the mock adapter and closes the inbound channel.
func (m *MockAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.connected = false
	close(m.inbound)
	return nil
}

// --- Test helpers ---

// SimulateInbound sends an event into the inbound channel as if it came
// from the chat platform. Safe to call from any goroutine.
func (m *MockAdapter) SimulateInbound(msg Inbound) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	m.inbound <- msg
}

// FailSends makes subsequent Send calls return err (nil restores normal
// behavior).
func (m *MockAdapter) FailSends(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// LastSent returns the most recently sent outbound message.
// Returns zero value and false if no messages have been sent.
func (m *MockAdapter) LastSent() (Outbound, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return Outbound{}, false
	}
	return m.sent[len(m.sent)-1], true
}

// LastSentTo returns the most recent message sent to chatID.
func (m *MockAdapter) LastSentTo(chatID string) (Outbound, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].ChatID == chatID {
			return m.sent[i], true
		}
	}
	return Outbound{}, false
}

// SentCount returns the number of outbound messages sent.
func (m *MockAdapter) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// AllSent returns a copy of all sent outbound messages.
func (m *MockAdapter) AllSent() []Outbound {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Outbound, len(m.sent))
	copy(out, m.sent)
	return out
}

// Deleted returns a copy of all recorded deletions as "chatID:messageID".
func (m *MockAdapter) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.deleted))
	copy(out, m.deleted)
	return out
}
