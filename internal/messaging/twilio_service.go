package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ingenia-edu/ingeniabot/internal/models"
	"github.com/ingenia-edu/ingeniabot/internal/twiliowhatsapp"
)

// TwilioService implements Service using the Twilio API. Inbound messages
// arrive through the webhook handler instead of a live connection.
type TwilioService struct {
	client   twiliowhatsapp.Sender
	messages chan models.InboundMessage
	done     chan struct{}
	mu       sync.RWMutex
	stopped  bool
}

// NewTwilioService creates a TwilioService wrapping the given Sender.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{
		client:   client,
		messages: make(chan models.InboundMessage, DefaultChannelBufferSize),
		done:     make(chan struct{}),
	}
}

// ValidateAndCanonicalizeRecipient reduces a recipient to digits and
// validates the length.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// Start is a no-op; Twilio delivers inbound traffic via webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes channels and stops the service. Idempotent.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(s.messages)
	}()
	return nil
}

// SendMessage sends a message via the Twilio API.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendMessage validation error", "error", err, "to", to)
		return err
	}
	return s.client.SendMessage(ctx, canonical, body)
}

// Messages returns the channel of normalized inbound messages.
func (s *TwilioService) Messages() <-chan models.InboundMessage {
	return s.messages
}

// Connected reports whether the service accepts traffic.
func (s *TwilioService) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.stopped
}

// WebhookHandler handles inbound Twilio webhook requests and emits them
// as normalized inbound messages.
func (s *TwilioService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("Failed to parse Twilio webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from := r.FormValue("From")
	body := r.FormValue("Body")
	if from == "" || body == "" {
		slog.Warn("Twilio webhook missing fields", "from_set", from != "", "body_set", body != "")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	canonical, err := canonicalizePhone(from)
	if err != nil {
		slog.Warn("Twilio webhook sender invalid", "error", err, "from", from)
		http.Error(w, "Invalid sender", http.StatusBadRequest)
		return
	}

	s.emit(models.InboundMessage{From: canonical, Body: body, Time: time.Now()})

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// emit pushes one inbound message, dropping it when the service is
// stopped or the channel stays blocked.
func (s *TwilioService) emit(msg models.InboundMessage) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		slog.Warn("TwilioService dropping inbound message (service stopped)", "from", msg.From)
		return
	}

	select {
	case s.messages <- msg:
		slog.Debug("TwilioService emitted inbound message", "from", msg.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioService messages channel blocked, dropping message", "from", msg.From)
	}
}
