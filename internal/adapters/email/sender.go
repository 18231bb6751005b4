// Package email sends transactional mail such as registration confirmations.
package email

import (
	"context"
	"time"
)

// Message is one outgoing email.
type Message struct {
	To       []string
	From     string // empty: the sender's default address
	ReplyTo  string
	Subject  string
	HTML     string
	Text     string
	Category string // provider tag used for filtering, e.g. "registration_confirmation"
}

// Receipt is the provider's acknowledgement of an accepted message.
type Receipt struct {
	MessageID string
	SentAt    time.Time
	Simulated bool // accepted without delivery
}

// Sender delivers messages through an external provider.
type Sender interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}
