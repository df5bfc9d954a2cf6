// Package models defines the core data structures for IngeniaBot.
//
// It includes student, course, payment, appointment and conversation types
// shared across the store, flow and messaging modules.
package models

import (
	"errors"
	"regexp"
	"time"
)

// AppointmentStatus tracks the lifecycle of an agenda item.
type AppointmentStatus string

const (
	// AppointmentPending is the initial status of a freshly booked appointment.
	AppointmentPending AppointmentStatus = "pendiente"
	// AppointmentConfirmed marks an appointment confirmed by staff.
	AppointmentConfirmed AppointmentStatus = "confirmado"
	// AppointmentCancelled marks an appointment cancelled by the student.
	AppointmentCancelled AppointmentStatus = "cancelado"
)

// PaymentStatus tracks whether a payment has been settled.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pendiente"
	PaymentPaid    PaymentStatus = "pagado"
)

// ReplySource tags where a reply came from, for conversation logging.
type ReplySource string

const (
	// SourceMenu is a static menu or store-backed handler reply.
	SourceMenu ReplySource = "menu"
	// SourceFAQ is a reply served from the stored FAQ table.
	SourceFAQ ReplySource = "faq"
	// SourceAI is a reply generated by the completion service.
	SourceAI ReplySource = "ai"
	// SourceSystem is an internally generated reply (errors, diagnostics).
	SourceSystem ReplySource = "system"
)

// IsAI reports whether the source counts as AI-generated for the
// conversation log's es_ia flag. FAQ replies are not AI-generated.
func (s ReplySource) IsAI() bool {
	return s == SourceAI
}

// TimeoutSentinel is the inbound marker recorded in the conversation log
// when a farewell is sent by the inactivity timeout rather than the user.
const TimeoutSentinel = "[TIMEOUT]"

// DefaultReminderLeadMinutes is the reminder lead applied to appointments
// created through the booking dialogue.
const DefaultReminderLeadMinutes = 60

// Validation constants for session identities.
const (
	// MinPhoneDigits is the minimum length of a digits-only phone number.
	MinPhoneDigits = 8
	// MaxPhoneDigits is the maximum length of a digits-only phone number.
	MaxPhoneDigits = 15
)

var digitsOnly = regexp.MustCompile(`^\d+$`)

// Error variables for better error handling and testability
var (
	ErrInvalidPhone       = errors.New("phone must be 8-15 digits")
	ErrStudentNotFound    = errors.New("student not found")
	ErrAppointmentMissing = errors.New("appointment not found")
	ErrEmptyTitle         = errors.New("appointment title cannot be empty")
	ErrPastDateTime       = errors.New("appointment datetime must be in the future")
)

// ValidPhone reports whether phone is a digits-only session identity of
// acceptable length.
func ValidPhone(phone string) bool {
	if len(phone) < MinPhoneDigits || len(phone) > MaxPhoneDigits {
		return false
	}
	return digitsOnly.MatchString(phone)
}

// Student is a lazily created profile row, one per phone number.
type Student struct {
	ID       int64
	Phone    string
	Name     string
	Email    string
	Program  string
	Term     string
	JoinedAt time.Time
}

// StudentUpdate carries optional profile mutations; empty fields are
// left untouched (COALESCE semantics in the store).
type StudentUpdate struct {
	Name    string
	Email   string
	Program string
	Term    string
}

// Course is an enrolled course for the current term.
type Course struct {
	ID        int64
	StudentID int64
	Name      string
	Code      string
	Teacher   string
	Credits   int
	Schedule  string
	Room      string
}

// Payment is a tuition or fee item, pending or settled.
type Payment struct {
	ID        int64
	StudentID int64
	Concept   string
	Amount    float64
	DueDate   time.Time
	Status    PaymentStatus
}

// Appointment is a committed agenda item.
type Appointment struct {
	ID               int64
	StudentID        int64
	Type             string
	Title            string
	When             time.Time
	Location         string // empty means no location
	Status           AppointmentStatus
	ReminderLeadMins int
	ReminderSent     bool
}

// BookingDraft accumulates appointment fields across the booking dialogue.
// It is transient and never persisted until the final step commits it.
type BookingDraft struct {
	Type     string
	Title    string
	When     time.Time
	Location string // empty means the "none" sentinel was given
}

// Conversation is one processed message exchange, append-only.
type Conversation struct {
	ID        int64
	StudentID int64
	Inbound   string
	Outbound  string
	IsAI      bool
	CreatedAt time.Time
}

// FAQMatch is the closest stored FAQ entry to a free-text question.
type FAQMatch struct {
	ID         int64
	Question   string
	Answer     string
	Similarity float64
}

// Stats summarizes bot usage for the admin stats command.
type Stats struct {
	ActiveUsers7d      int
	TotalConversations int
	AIConversations    int
}

// AIPercent returns the share of AI-generated conversations, 0-100.
func (s Stats) AIPercent() float64 {
	if s.TotalConversations == 0 {
		return 0
	}
	return float64(s.AIConversations) / float64(s.TotalConversations) * 100
}

// ReminderDue is an appointment whose reminder window has opened, joined
// with the student's phone for delivery.
type ReminderDue struct {
	Appointment
	Phone string
}

// InboundMessage is a normalized message received from the transport.
type InboundMessage struct {
	From string // digits-only phone
	Body string
	Time time.Time
}
