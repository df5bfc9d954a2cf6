package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ingenia-edu/ingeniabot/internal/models"
	"github.com/ingenia-edu/ingeniabot/internal/whatsapp"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// WhatsAppService implements Service using the Whatsmeow-based whatsapp
// client.
type WhatsAppService struct {
	client   whatsapp.Sender
	waClient *whatsapp.Client // nil when constructed with a mock
	messages chan models.InboundMessage
	done     chan struct{}
	mu       sync.RWMutex
	stopped  bool
}

// NewWhatsAppService creates a WhatsAppService wrapping the given Sender.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	service := &WhatsAppService{
		client:   client,
		messages: make(chan models.InboundMessage, DefaultChannelBufferSize),
		done:     make(chan struct{}),
	}

	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}
	return service
}

// ValidateAndCanonicalizeRecipient reduces a recipient to digits and
// validates the length.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// Start registers the WhatsApp event handler.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil {
		slog.Debug("WhatsAppService no full client available, skipping event handling")
		return nil
	}
	go s.handleEvents(ctx)
	slog.Debug("WhatsAppService event handler started")
	return nil
}

// Stop stops background processing and closes the message channel.
// Idempotent. The channel close is deferred a grace period so event
// callbacks racing with shutdown drain through the done guard instead of
// hitting a closed channel.
func (s *WhatsAppService) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.done)
	s.mu.Unlock()

	slog.Info("WhatsAppService Stop invoked")
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(s.messages)
	}()
	if s.waClient != nil {
		s.waClient.Disconnect()
	}
	return nil
}

// SendMessage sends a text message through the underlying client.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService SendMessage validation error", "error", err, "to", to)
		return err
	}
	if err := s.client.SendMessage(ctx, canonical, body); err != nil {
		slog.Error("WhatsAppService SendMessage error", "error", err, "to", canonical)
		return err
	}
	return nil
}

// Messages returns the channel of normalized inbound messages.
func (s *WhatsAppService) Messages() <-chan models.InboundMessage {
	return s.messages
}

// Connected reports the live connection state.
func (s *WhatsAppService) Connected() bool {
	if s.waClient == nil {
		return true
	}
	return s.waClient.IsConnected()
}

// handleEvents registers the whatsmeow event handler and blocks until the
// context is cancelled.
func (s *WhatsAppService) handleEvents(ctx context.Context) {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Error("WhatsAppService handleEvents: no client available")
		return
	}

	s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			s.handleIncomingMessage(v)
		case *events.Connected:
			slog.Info("WhatsApp connection established")
		case *events.Disconnected:
			slog.Warn("WhatsApp connection lost")
		}
	})

	<-ctx.Done()
	slog.Debug("WhatsAppService handleEvents stopping due to context cancellation")
}

// handleIncomingMessage normalizes one message event. Group, broadcast,
// self and non-text messages are dropped without reply.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Message == nil {
		return
	}
	if evt.Info.IsFromMe {
		slog.Debug("WhatsAppService ignoring own message")
		return
	}
	if evt.Info.IsGroup || evt.Info.Chat.Server == types.GroupServer {
		slog.Debug("WhatsAppService ignoring group message", "chat", evt.Info.Chat.String())
		return
	}
	if evt.Info.Chat.Server == types.BroadcastServer {
		slog.Debug("WhatsAppService ignoring broadcast message", "chat", evt.Info.Chat.String())
		return
	}

	var messageText string
	if evt.Message.Conversation != nil {
		messageText = *evt.Message.Conversation
	} else if evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil {
		messageText = *evt.Message.ExtendedTextMessage.Text
	} else {
		// Images, audio and other non-text payloads are never replied to.
		slog.Debug("WhatsAppService ignoring non-text message", "from", evt.Info.Sender.String())
		return
	}

	from, err := canonicalizePhone(evt.Info.Sender.User)
	if err != nil {
		slog.Warn("WhatsAppService dropping message with invalid sender", "error", err, "sender", evt.Info.Sender.String())
		return
	}

	s.emit(models.InboundMessage{
		From: from,
		Body: messageText,
		Time: evt.Info.Timestamp,
	})
}

// emit pushes one inbound message, dropping it when the service is
// stopped or the channel stays blocked. Event callbacks run on whatsmeow
// goroutines and can race with Stop, so the send is guarded by done.
func (s *WhatsAppService) emit(msg models.InboundMessage) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		slog.Warn("WhatsAppService dropping inbound message (service stopped)", "from", msg.From)
		return
	}

	select {
	case s.messages <- msg:
		slog.Debug("WhatsAppService inbound message forwarded", "from", msg.From)
	case <-s.done:
		slog.Warn("WhatsAppService dropping inbound message (service stopped)", "from", msg.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService messages channel blocked, dropping message", "from", msg.From)
	}
}
