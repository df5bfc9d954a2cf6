package store

import (
	"sort"
	"sync"
	"time"

	"github.com/ingenia-edu/ingeniabot/internal/models"
)

// InMemoryStore is a map-backed Store used in tests and as a fallback
// when no database is configured. All methods are safe for concurrent use.
type InMemoryStore struct {
	mu            sync.RWMutex
	nextID        int64
	students      map[int64]*models.Student
	byPhone       map[string]int64
	courses       map[int64][]models.Course
	payments      map[int64][]models.Payment
	appointments  map[int64]*models.Appointment
	conversations []models.Conversation
	faqs          []faqEntry
	timeoutLog    []string
}

type faqEntry struct {
	id       int64
	question string
	answer   string
	category string
	uses     int
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		students:     make(map[int64]*models.Student),
		byPhone:      make(map[string]int64),
		courses:      make(map[int64][]models.Course),
		payments:     make(map[int64][]models.Payment),
		appointments: make(map[int64]*models.Appointment),
	}
}

func (s *InMemoryStore) nextIDLocked() int64 {
	s.nextID++
	return s.nextID
}

func (s *InMemoryStore) GetStudentByPhone(phone string) (*models.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPhone[phone]
	if !ok {
		return nil, nil
	}
	st := *s.students[id]
	return &st, nil
}

func (s *InMemoryStore) CreateStudent(phone string) (*models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &models.Student{
		ID:       s.nextIDLocked(),
		Phone:    phone,
		JoinedAt: time.Now(),
	}
	s.students[st.ID] = st
	s.byPhone[phone] = st.ID
	out := *st
	return &out, nil
}

func (s *InMemoryStore) UpdateStudent(id int64, upd models.StudentUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[id]
	if !ok {
		return models.ErrStudentNotFound
	}
	if upd.Name != "" {
		st.Name = upd.Name
	}
	if upd.Email != "" {
		st.Email = upd.Email
	}
	if upd.Program != "" {
		st.Program = upd.Program
	}
	if upd.Term != "" {
		st.Term = upd.Term
	}
	return nil
}

func (s *InMemoryStore) ListCourses(studentID int64) ([]models.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]models.Course(nil), s.courses[studentID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// AddCourse seeds a course row (test helper).
func (s *InMemoryStore) AddCourse(c models.Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.nextIDLocked()
	s.courses[c.StudentID] = append(s.courses[c.StudentID], c)
}

func (s *InMemoryStore) ListPayments(studentID int64) ([]models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]models.Payment(nil), s.payments[studentID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.After(out[j].DueDate) })
	return out, nil
}

// AddPayment seeds a payment row (test helper).
func (s *InMemoryStore) AddPayment(p models.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.nextIDLocked()
	s.payments[p.StudentID] = append(s.payments[p.StudentID], p)
}

func (s *InMemoryStore) ListUpcomingAppointments(studentID int64, withinDays int) ([]models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	horizon := now.AddDate(0, 0, withinDays)
	var out []models.Appointment
	for _, a := range s.appointments {
		if a.StudentID != studentID || a.Status == models.AppointmentCancelled {
			continue
		}
		if a.When.Before(now) || a.When.After(horizon) {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].When.Before(out[j].When) })
	return out, nil
}

func (s *InMemoryStore) CreateAppointment(studentID int64, draft models.BookingDraft) (*models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &models.Appointment{
		ID:               s.nextIDLocked(),
		StudentID:        studentID,
		Type:             draft.Type,
		Title:            draft.Title,
		When:             draft.When,
		Location:         draft.Location,
		Status:           models.AppointmentPending,
		ReminderLeadMins: models.DefaultReminderLeadMinutes,
	}
	s.appointments[a.ID] = a
	out := *a
	return &out, nil
}

func (s *InMemoryStore) CancelAppointment(appointmentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[appointmentID]
	if !ok {
		return models.ErrAppointmentMissing
	}
	a.Status = models.AppointmentCancelled
	return nil
}

func (s *InMemoryStore) ListDueReminders() ([]models.ReminderDue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	var out []models.ReminderDue
	for _, a := range s.appointments {
		if a.ReminderSent || a.Status == models.AppointmentCancelled {
			continue
		}
		if a.When.Before(now) {
			continue
		}
		lead := time.Duration(a.ReminderLeadMins) * time.Minute
		if a.When.Sub(now) > lead {
			continue
		}
		phone := ""
		if st, ok := s.students[a.StudentID]; ok {
			phone = st.Phone
		}
		out = append(out, models.ReminderDue{Appointment: *a, Phone: phone})
	}
	return out, nil
}

func (s *InMemoryStore) MarkReminderSent(appointmentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[appointmentID]
	if !ok {
		return models.ErrAppointmentMissing
	}
	a.ReminderSent = true
	return nil
}

func (s *InMemoryStore) AppendConversation(studentID int64, inbound, outbound string, isAI bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = append(s.conversations, models.Conversation{
		ID:        s.nextIDLocked(),
		StudentID: studentID,
		Inbound:   inbound,
		Outbound:  outbound,
		IsAI:      isAI,
		CreatedAt: time.Now(),
	})
	return nil
}

// Conversations returns a copy of the conversation log (test helper).
func (s *InMemoryStore) Conversations() []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Conversation(nil), s.conversations...)
}

func (s *InMemoryStore) LogTimeout(studentID int64, phone, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeoutLog = append(s.timeoutLog, phone)
	return nil
}

func (s *InMemoryStore) FindSimilarFAQ(text string) (*models.FAQMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.FAQMatch
	bestIdx := -1
	for i, f := range s.faqs {
		sim := textSimilarity(text, f.question)
		if sim <= minFAQSimilarity {
			continue
		}
		if best == nil || sim > best.Similarity {
			best = &models.FAQMatch{ID: f.id, Question: f.question, Answer: f.answer, Similarity: sim}
			bestIdx = i
		}
	}
	if best != nil {
		s.faqs[bestIdx].uses++
	}
	return best, nil
}

func (s *InMemoryStore) AddFAQ(question, answer, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faqs = append(s.faqs, faqEntry{
		id:       s.nextIDLocked(),
		question: question,
		answer:   answer,
		category: category,
	})
	return nil
}

func (s *InMemoryStore) GetStats() (*models.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := time.Now().AddDate(0, 0, -7)
	active := make(map[int64]struct{})
	ai := 0
	for _, c := range s.conversations {
		if c.CreatedAt.After(cutoff) {
			active[c.StudentID] = struct{}{}
		}
		if c.IsAI {
			ai++
		}
	}
	return &models.Stats{
		ActiveUsers7d:      len(active),
		TotalConversations: len(s.conversations),
		AIConversations:    ai,
	}, nil
}

func (s *InMemoryStore) Close() error { return nil }
