package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ingenia-edu/ingeniabot/internal/twiliowhatsapp"
	"github.com/ingenia-edu/ingeniabot/internal/whatsapp"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

func TestCanonicalizePhone(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"51999888777", "51999888777", false},
		{"+51 999 888 777", "51999888777", false},
		{"whatsapp:+51999888777", "51999888777", false},
		{"(51) 999-888-777", "51999888777", false},
		{"", "", true},
		{"12345", "", true},            // too short
		{"abcdefgh", "", true},         // no digits
		{"1234567890123456", "", true}, // too long
	}
	for _, c := range cases {
		got, err := canonicalizePhone(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("canonicalizePhone(%q) expected error, got %q", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("canonicalizePhone(%q) error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("canonicalizePhone(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestWhatsAppServiceSendCanonicalizes(t *testing.T) {
	mock := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mock)

	if err := svc.SendMessage(context.Background(), "+51 999 888 777", "hola"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	sent := mock.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent = %d messages, want 1", len(sent))
	}
	if sent[0].To != "51999888777" {
		t.Errorf("To = %q, want digits-only", sent[0].To)
	}

	if err := svc.SendMessage(context.Background(), "bogus", "hola"); err == nil {
		t.Error("invalid recipient should be rejected")
	}
}

func TestWhatsAppServiceMockStartAndConnected(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !svc.Connected() {
		t.Error("mock-backed service should report connected")
	}
}

func TestWhatsAppInboundAfterStopIsDropped(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if err := svc.SendMessage(context.Background(), "51999888777", "x"); err != ErrServiceStopped {
		t.Errorf("SendMessage after Stop = %v, want ErrServiceStopped", err)
	}

	// Event callbacks run on whatsmeow goroutines and may fire after
	// Stop; a late event must be dropped, not panic on a closed channel.
	body := "hola"
	svc.handleIncomingMessage(&events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:   types.NewJID("51999888777", whatsapp.JIDSuffix),
				Sender: types.NewJID("51999888777", whatsapp.JIDSuffix),
			},
			Timestamp: time.Now(),
		},
		Message: &waE2E.Message{Conversation: &body},
	})

	// After the close grace period the channel is closed and empty.
	time.Sleep(100 * time.Millisecond)
	msg, ok := <-svc.Messages()
	if ok {
		t.Errorf("unexpected message after Stop: %+v", msg)
	}
}

func TestTwilioWebhookEmitsInbound(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())

	form := url.Values{"From": {"whatsapp:+51999888777"}, "Body": {"hola"}}
	req := httptest.NewRequest(http.MethodPost, "/webhook/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	svc.WebhookHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	select {
	case msg := <-svc.Messages():
		if msg.From != "51999888777" {
			t.Errorf("From = %q, want canonical digits", msg.From)
		}
		if msg.Body != "hola" {
			t.Errorf("Body = %q", msg.Body)
		}
	case <-time.After(time.Second):
		t.Fatal("inbound message not emitted")
	}
}

func TestTwilioWebhookRejectsMissingFields(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())

	form := url.Values{"From": {"whatsapp:+51999888777"}}
	req := httptest.NewRequest(http.MethodPost, "/webhook/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	svc.WebhookHandler(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestTwilioStopIsIdempotent(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if err := svc.SendMessage(context.Background(), "51999888777", "x"); err != ErrServiceStopped {
		t.Errorf("SendMessage after Stop = %v, want ErrServiceStopped", err)
	}
	if svc.Connected() {
		t.Error("stopped service should not report connected")
	}
}
