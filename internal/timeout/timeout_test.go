package timeout

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ingenia-edu/ingeniabot/internal/models"
	"github.com/ingenia-edu/ingeniabot/internal/store"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingSender) SendMessage(ctx context.Context, to, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, to)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func TestArmTwiceKeepsOnePending(t *testing.T) {
	st := store.NewInMemoryStore()
	m := NewManager(st, &recordingSender{}, WithDelay(time.Hour))
	defer m.DrainAll()

	m.Arm("51999000111")
	time.Sleep(20 * time.Millisecond)
	m.Arm("51999000111")

	if n := m.ActiveCount(); n != 1 {
		t.Fatalf("ActiveCount = %d, want 1", n)
	}
	info := m.Query("51999000111")
	if info == nil {
		t.Fatal("Query returned nil after arming")
	}
	// Remaining should reflect the second arm, not the first.
	if info.Remaining < time.Hour-time.Second {
		t.Errorf("Remaining = %v, want close to the full delay", info.Remaining)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	m := NewManager(store.NewInMemoryStore(), &recordingSender{}, WithDelay(time.Hour))

	// No pending action: must be a no-op.
	m.Cancel("51999000222")

	m.Arm("51999000222")
	m.Cancel("51999000222")
	m.Cancel("51999000222")

	if m.Query("51999000222") != nil {
		t.Error("Query should report none after cancel")
	}
	if m.ActiveCount() != 0 {
		t.Error("ActiveCount should be 0 after cancel")
	}
}

func TestFireSendsFarewellAndLogs(t *testing.T) {
	st := store.NewInMemoryStore()
	student, _ := st.CreateStudent("51999000333")
	sender := &recordingSender{}
	m := NewManager(st, sender, WithDelay(30*time.Millisecond))

	m.Arm("51999000333")

	deadline := time.After(2 * time.Second)
	for sender.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("farewell was not sent before deadline")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if m.ActiveCount() != 0 {
		t.Error("entry should be dropped after firing")
	}

	// Conversation row carries the sentinel inbound marker.
	var logged bool
	for _, c := range st.Conversations() {
		if c.StudentID == student.ID && c.Inbound == models.TimeoutSentinel && !c.IsAI {
			logged = true
		}
	}
	if !logged {
		t.Error("farewell conversation with sentinel marker not logged")
	}
}

func TestCancelPreventsFire(t *testing.T) {
	sender := &recordingSender{}
	m := NewManager(store.NewInMemoryStore(), sender, WithDelay(40*time.Millisecond))

	m.Arm("51999000444")
	m.Cancel("51999000444")

	time.Sleep(120 * time.Millisecond)
	if sender.count() != 0 {
		t.Error("cancelled farewell must not be sent")
	}
}

func TestDrainAll(t *testing.T) {
	sender := &recordingSender{}
	m := NewManager(store.NewInMemoryStore(), sender, WithDelay(40*time.Millisecond))

	// Safe with zero entries.
	m.DrainAll()

	m.Arm("51999000555")
	m.Arm("51999000666")
	m.DrainAll()

	if m.ActiveCount() != 0 {
		t.Error("DrainAll should remove every entry")
	}
	time.Sleep(120 * time.Millisecond)
	if sender.count() != 0 {
		t.Error("drained farewells must not fire")
	}
}

func TestFarewellMessageBands(t *testing.T) {
	morning := time.Date(2025, 3, 1, 8, 0, 0, 0, time.Local)
	afternoon := time.Date(2025, 3, 1, 15, 0, 0, 0, time.Local)
	night := time.Date(2025, 3, 1, 22, 0, 0, 0, time.Local)
	early := time.Date(2025, 3, 1, 3, 0, 0, 0, time.Local)

	if msg := FarewellMessage(morning); !strings.Contains(msg, "Buenos días") {
		t.Errorf("8am farewell = %q, want morning band", msg)
	}
	if msg := FarewellMessage(afternoon); !strings.Contains(msg, "Buenas tardes") {
		t.Errorf("3pm farewell = %q, want afternoon band", msg)
	}
	if msg := FarewellMessage(night); !strings.Contains(msg, "Buenas noches") {
		t.Errorf("10pm farewell = %q, want night band", msg)
	}
	if msg := FarewellMessage(early); !strings.Contains(msg, "Buenas noches") {
		t.Errorf("3am farewell = %q, want night band", msg)
	}
}
