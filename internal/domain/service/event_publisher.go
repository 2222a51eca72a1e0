package service

import (
	"context"

	"github.com/pkg/errors"
)

// MailEventType names the kind of email a MailEvent asks the mailer to send.
type MailEventType string

const (
	MailEventVerifyEmail   MailEventType = "verify_email"
	MailEventPasswordReset MailEventType = "password_reset"
)

// MailEvent is the message consumed by the mail delivery worker.
type MailEvent struct {
	RequestID string        `json:"request_id,omitempty"` // For distributed tracing
	Type      MailEventType `json:"type"`
	To        string        `json:"to"`
	Nickname  string        `json:"nickname"`
	Link      string        `json:"link"`
	Token     string        `json:"token"`
}

// EventPublisher defines the interface for publishing events to a message queue
type EventPublisher interface {
	// PublishMailEvent publishes a mail event for async delivery
	PublishMailEvent(ctx context.Context, event *MailEvent) error

	// Close releases any resources held by the publisher
	Close() error
}

// MailSender delivers a mail event to its recipient.
type MailSender interface {
	Send(ctx context.Context, event *MailEvent) error
}

// Validate reports whether the event carries everything a sender needs.
func (e *MailEvent) Validate() error {
	switch e.Type {
	case MailEventVerifyEmail, MailEventPasswordReset:
	default:
		return errors.Errorf("unknown mail event type %q", e.Type)
	}
	if e.To == "" {
		return errors.New("mail event has no recipient")
	}
	if e.Link == "" {
		return errors.New("mail event has no link")
	}

	return nil
}
