package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// NoopSender logs messages instead of delivering them. Its receipts are
// marked Simulated so callers do not report a delivery.
type NoopSender struct{}

// NewNoopSender creates a NoopSender.
func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

// Send logs the message but does not deliver it.
// PRE: msg has at least one recipient
// POST: Returns a Simulated receipt without delivery
func (s *NoopSender) Send(_ context.Context, msg Message) (Receipt, error) {
	if len(msg.To) == 0 {
		return Receipt{}, ErrNoRecipient
	}
	slog.Info("noop_email_send", "to", msg.To, "subject", msg.Subject, "category", msg.Category)
	now := time.Now()
	return Receipt{MessageID: fmt.Sprintf("noop-%d", now.UnixNano()), SentAt: now, Simulated: true}, nil
}
