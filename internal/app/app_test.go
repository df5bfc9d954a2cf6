package app

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ingenia-edu/ingeniabot/internal/flow"
	"github.com/ingenia-edu/ingeniabot/internal/models"
	"github.com/ingenia-edu/ingeniabot/internal/store"
	"github.com/ingenia-edu/ingeniabot/internal/timeout"
)

// fakeTransport is an in-process messaging.Service for loop tests.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []sentMessage
	messages chan models.InboundMessage
}

type sentMessage struct {
	To   string
	Body string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{messages: make(chan models.InboundMessage, 10)}
}

func (f *fakeTransport) ValidateAndCanonicalizeRecipient(r string) (string, error) { return r, nil }

func (f *fakeTransport) SendMessage(ctx context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{To: to, Body: body})
	return nil
}

func (f *fakeTransport) Start(ctx context.Context) error { return nil }
func (f *fakeTransport) Stop() error                     { close(f.messages); return nil }

func (f *fakeTransport) Messages() <-chan models.InboundMessage { return f.messages }
func (f *fakeTransport) Connected() bool                        { return true }

func (f *fakeTransport) sentCopy() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

func newTestApp(t *testing.T, st store.Store) (*App, *fakeTransport) {
	t.Helper()
	transport := newFakeTransport()
	dispatcher := flow.NewDispatcher(st)
	timeouts := timeout.NewManager(st, transport, timeout.WithDelay(time.Hour))
	t.Cleanup(timeouts.DrainAll)
	return New(transport, st, dispatcher, timeouts), transport
}

func TestFirstContactGetsWelcome(t *testing.T) {
	st := store.NewInMemoryStore()
	a, transport := newTestApp(t, st)

	a.handleMessage(context.Background(), models.InboundMessage{From: "51999000111", Body: "hola", Time: time.Now()})

	sent := transport.sentCopy()
	if len(sent) != 2 {
		t.Fatalf("sent = %d messages, want welcome + reply", len(sent))
	}
	if sent[0].Body != flow.Welcome {
		t.Errorf("first message should be the welcome, got %q", sent[0].Body)
	}
	if sent[1].Body != flow.MainMenu {
		t.Errorf("second message should be the menu, got %q", sent[1].Body)
	}

	student, err := st.GetStudentByPhone("51999000111")
	if err != nil || student == nil {
		t.Fatalf("student should exist after first contact: %v", err)
	}
}

func TestKnownStudentSkipsWelcome(t *testing.T) {
	st := store.NewInMemoryStore()
	if _, err := st.CreateStudent("51999000222"); err != nil {
		t.Fatal(err)
	}
	a, transport := newTestApp(t, st)

	a.handleMessage(context.Background(), models.InboundMessage{From: "51999000222", Body: "menú", Time: time.Now()})

	sent := transport.sentCopy()
	if len(sent) != 1 {
		t.Fatalf("sent = %d messages, want just the reply", len(sent))
	}
	if sent[0].Body != flow.MainMenu {
		t.Errorf("reply = %q, want menu", sent[0].Body)
	}
}

func TestExchangeLogsOneConversationRow(t *testing.T) {
	st := store.NewInMemoryStore()
	a, _ := newTestApp(t, st)

	a.handleMessage(context.Background(), models.InboundMessage{From: "51999000333", Body: "hola", Time: time.Now()})

	convs := st.Conversations()
	if len(convs) != 1 {
		t.Fatalf("conversations = %d, want exactly 1", len(convs))
	}
	if convs[0].Inbound != "hola" || convs[0].IsAI {
		t.Errorf("row = %+v", convs[0])
	}
}

func TestExchangeArmsTimeout(t *testing.T) {
	st := store.NewInMemoryStore()
	a, _ := newTestApp(t, st)

	a.handleMessage(context.Background(), models.InboundMessage{From: "51999000444", Body: "hola", Time: time.Now()})

	if a.timeouts.Query("51999000444") == nil {
		t.Error("timeout should be armed after an exchange")
	}
}

// panicStore forces a handler panic to exercise the loop's recovery.
type panicStore struct {
	*store.InMemoryStore
}

func (p *panicStore) ListCourses(studentID int64) ([]models.Course, error) {
	panic("courses exploded")
}

func TestPanicRecoveryApologizes(t *testing.T) {
	st := &panicStore{InMemoryStore: store.NewInMemoryStore()}
	if _, err := st.CreateStudent("51999000555"); err != nil {
		t.Fatal(err)
	}
	a, transport := newTestApp(t, st)

	a.handleMessage(context.Background(), models.InboundMessage{From: "51999000555", Body: "1", Time: time.Now()})

	sent := transport.sentCopy()
	if len(sent) != 1 {
		t.Fatalf("sent = %d messages, want the apology", len(sent))
	}
	if !strings.Contains(sent[0].Body, "ocurrió un error") {
		t.Errorf("apology = %q", sent[0].Body)
	}
}

func TestRunStopsWhenChannelCloses(t *testing.T) {
	st := store.NewInMemoryStore()
	a, transport := newTestApp(t, st)

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	transport.messages <- models.InboundMessage{From: "51999000666", Body: "hola", Time: time.Now()}
	a.Shutdown()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil on channel close", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after Shutdown")
	}
}
