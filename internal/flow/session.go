package flow

import (
	"sync"

	"github.com/ingenia-edu/ingeniabot/internal/models"
)

// BookingStep identifies which step of the booking dialogue a session is on.
type BookingStep string

const (
	StepSelectType    BookingStep = "select_type"
	StepEnterTitle    BookingStep = "enter_title"
	StepEnterDateTime BookingStep = "enter_datetime"
	StepEnterLocation BookingStep = "enter_location"
)

// BookingSession is the per-phone dialogue position plus its draft.
type BookingSession struct {
	Step  BookingStep
	Draft models.BookingDraft
}

// SessionStore holds in-flight booking dialogues keyed by session
// identity. One phone has at most one session; the draft lives only here
// until the final step commits it to the record store.
type SessionStore interface {
	Get(phone string) (BookingSession, bool)
	Put(phone string, s BookingSession)
	Clear(phone string)
}

// MemorySessionStore is the single-process SessionStore implementation.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]BookingSession
}

// NewMemorySessionStore creates an empty session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]BookingSession)}
}

func (s *MemorySessionStore) Get(phone string) (BookingSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[phone]
	return sess, ok
}

func (s *MemorySessionStore) Put(phone string, sess BookingSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[phone] = sess
}

func (s *MemorySessionStore) Clear(phone string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, phone)
}
