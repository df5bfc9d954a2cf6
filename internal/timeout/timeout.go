// Package timeout manages per-user inactivity farewells.
//
// Every inbound message re-arms a deferred farewell for its sender; if the
// user stays silent for the configured delay, a time-of-day farewell is
// sent and logged, then the entry is dropped. At most one pending farewell
// exists per phone at any instant.
package timeout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ingenia-edu/ingeniabot/internal/models"
	"github.com/ingenia-edu/ingeniabot/internal/store"
)

// DefaultDelay is the inactivity window before a farewell fires.
const DefaultDelay = 10 * time.Minute

// Sender delivers the farewell message. Satisfied by messaging.Service.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Info describes a pending farewell for a session identity.
type Info struct {
	ArmedAt   time.Time
	Remaining time.Duration
}

// entry tracks one scheduled farewell.
type entry struct {
	timer   *time.Timer
	armedAt time.Time
}

// Opts holds configuration options for the Manager.
type Opts struct {
	Delay time.Duration
}

// Option defines a configuration option for the Manager.
type Option func(*Opts)

// WithDelay overrides the default inactivity delay.
func WithDelay(d time.Duration) Option {
	return func(o *Opts) { o.Delay = d }
}

// Manager owns the phone -> pending farewell mapping. All exported methods
// are safe for concurrent use; mutations are serialized by a single mutex.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	delay   time.Duration
	store   store.Store
	sender  Sender
}

// NewManager creates a Manager that sends farewells through sender and
// records them in st.
func NewManager(st store.Store, sender Sender, opts ...Option) *Manager {
	cfg := Opts{Delay: DefaultDelay}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Timeout manager created", "delay", cfg.Delay)
	return &Manager{
		entries: make(map[string]*entry),
		delay:   cfg.Delay,
		store:   st,
		sender:  sender,
	}
}

// Delay returns the configured inactivity window.
func (m *Manager) Delay() time.Duration {
	return m.delay
}

// Arm cancels any pending farewell for phone and schedules a fresh one.
func (m *Manager) Arm(phone string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.entries[phone]; ok {
		prev.timer.Stop()
		delete(m.entries, phone)
		slog.Debug("Timeout re-armed, previous cancelled", "phone", phone)
	}

	e := &entry{armedAt: time.Now()}
	e.timer = time.AfterFunc(m.delay, func() {
		m.fire(phone, e)
	})
	m.entries[phone] = e
	slog.Debug("Timeout armed", "phone", phone, "delay", m.delay)
}

// Cancel removes the pending farewell for phone. Idempotent no-op when
// none exists.
func (m *Manager) Cancel(phone string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[phone]
	if !ok {
		return
	}
	e.timer.Stop()
	delete(m.entries, phone)
	slog.Debug("Timeout cancelled", "phone", phone)
}

// Query reports the pending farewell for phone, or nil if none.
func (m *Manager) Query(phone string) *Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[phone]
	if !ok {
		return nil
	}
	remaining := m.delay - time.Since(e.armedAt)
	if remaining < 0 {
		remaining = 0
	}
	return &Info{ArmedAt: e.armedAt, Remaining: remaining}
}

// ActiveCount returns the number of pending farewells.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// DrainAll cancels every pending farewell. Safe with zero entries; used
// at process shutdown.
func (m *Manager) DrainAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	slog.Info("Draining pending timeouts", "count", len(m.entries))
	for phone, e := range m.entries {
		e.timer.Stop()
		delete(m.entries, phone)
	}
}

// fire runs when a farewell's delay elapses uncancelled.
func (m *Manager) fire(phone string, fired *entry) {
	m.mu.Lock()
	// A concurrent Arm may have replaced the entry between the timer
	// firing and this lock; only the current entry may send.
	if current, ok := m.entries[phone]; !ok || current != fired {
		m.mu.Unlock()
		slog.Debug("Timeout fire superseded", "phone", phone)
		return
	}
	delete(m.entries, phone)
	m.mu.Unlock()

	msg := FarewellMessage(time.Now())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := m.sender.SendMessage(ctx, phone, msg); err != nil {
		slog.Error("Failed to send farewell", "error", err, "phone", phone)
		return
	}
	slog.Info("Farewell sent after inactivity", "phone", phone)

	st, err := m.store.GetStudentByPhone(phone)
	if err != nil || st == nil {
		slog.Warn("Farewell not logged, student lookup failed", "error", err, "phone", phone)
		return
	}
	if err := m.store.AppendConversation(st.ID, models.TimeoutSentinel, msg, false); err != nil {
		slog.Error("Failed to log farewell conversation", "error", err, "phone", phone)
	}
	if err := m.store.LogTimeout(st.ID, phone, msg); err != nil {
		slog.Error("Failed to log timeout row", "error", err, "phone", phone)
	}
}

// FarewellMessage picks the farewell for the current time of day: morning
// (06-12), afternoon (12-18) or night.
func FarewellMessage(now time.Time) string {
	switch hour := now.Hour(); {
	case hour >= 6 && hour < 12:
		return "☀️ *¡Buenos días!*\n\n" +
			"Veo que has estado inactivo un rato. ¡Que tengas un excelente día!\n\n" +
			"Si necesitas ayuda, escríbeme cuando quieras.\n\n" +
			"_Escribe \"hola\" para continuar_"
	case hour >= 12 && hour < 18:
		return "🌤️ *¡Buenas tardes!*\n\n" +
			"Gracias por usar IngeniaBot. Espero haberte ayudado.\n\n" +
			"¡Estoy aquí cuando me necesites!\n\n" +
			"_Escribe \"menú\" para volver_"
	default:
		return "🌙 *¡Buenas noches!*\n\n" +
			"Ha pasado un tiempo desde tu última consulta. ¡Que descanses bien!\n\n" +
			"Escríbeme mañana si necesitas algo.\n\n" +
			"_Siempre disponible para ti_"
	}
}

// String implements a compact representation for diagnostics.
func (i *Info) String() string {
	if i == nil {
		return "none"
	}
	return fmt.Sprintf("armed %s ago, %s remaining", time.Since(i.ArmedAt).Round(time.Second), i.Remaining.Round(time.Second))
}
