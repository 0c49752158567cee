// Package chat defines the transport-agnostic contract between the booking
// dialog and a chat platform. Platform specifics (connections, keyboards,
// callbacks) live in per-platform adapter subpackages.
package chat

import (
	"context"
	"time"
)

// Adapter is the interface platform-specific implementations must satisfy.
type Adapter interface {
	// Connect establishes a connection to the chat platform.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound events from the platform.
	// The channel is closed when the context is cancelled or the adapter
	// is closed. Listen must only be called after Connect.
	Listen(ctx context.Context) (<-chan Inbound, error)

	// Send delivers a message and returns the platform message ID, which
	// can later be passed to Delete.
	Send(ctx context.Context, msg Outbound) (string, error)

	// Delete removes a previously sent message, e.g. a stale approval
	// prompt.
	Delete(ctx context.Context, chatID, messageID string) error

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// Inbound is a single event received from the chat platform: a text
// message, a shared contact card, or a button callback.
type Inbound struct {
	UserID       string    // platform-specific chat/user identifier
	UserName     string    // human-readable handle (may be empty)
	Text         string    // raw message text
	ContactPhone string    // phone from a structured contact card, if shared
	Callback     *Callback // non-nil for button-callback events
	Timestamp    time.Time
}

// Callback carries a pressed inline button: an opaque action tag plus the
// ID of the message the button was attached to.
type Callback struct {
	Data      string // e.g. "approve_12"
	MessageID string
}

// Outbound is a message to send: plain text, optionally with a choice
// keyboard (one choice per row) or inline action buttons.
type Outbound struct {
	ChatID  string
	Text    string
	Choices []string // reply-keyboard options; user answers with the text
	Actions []Action // inline buttons producing Callback events
}

// Action is an inline button: a visible label and the callback data it
// produces when pressed.
type Action struct {
	Label string
	Data  string
}
