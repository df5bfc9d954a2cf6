// Package messaging defines the transport abstraction between WhatsApp
// and the rest of IngeniaBot.
//
// A Service delivers outbound replies and feeds normalized inbound text
// messages into a channel consumed by the application loop. Group,
// broadcast, self and non-text traffic never reaches that channel.
package messaging

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/ingenia-edu/ingeniabot/internal/models"
)

// Constants for service configuration
const (
	// DefaultChannelBufferSize is the buffer size of the inbound message channel
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds non-blocking channel sends
	DefaultChannelTimeout = 1 * time.Second
)

// ErrServiceStopped is returned when a send is attempted after Stop.
var ErrServiceStopped = errors.New("messaging service stopped")

// nonDigits strips everything but digits during canonicalization.
var nonDigits = regexp.MustCompile(`\D`)

// Service is a pluggable message transport.
type Service interface {
	// ValidateAndCanonicalizeRecipient reduces a recipient identifier to
	// its digits-only form and validates it.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a text message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins background processing (event handling, webhooks).
	Start(ctx context.Context) error

	// Stop stops background processing and closes the message channel.
	Stop() error

	// Messages returns the channel of normalized inbound messages.
	Messages() <-chan models.InboundMessage

	// Connected reports the live transport state for health checks.
	Connected() bool
}

// canonicalizePhone strips non-digit characters and validates the result
// as a session identity.
func canonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", errors.New("recipient cannot be empty")
	}
	canonical := nonDigits.ReplaceAllString(recipient, "")
	if !models.ValidPhone(canonical) {
		return "", models.ErrInvalidPhone
	}
	return canonical, nil
}
