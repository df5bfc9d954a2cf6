// Package store provides storage backends for IngeniaBot.
//
// It defines the record store contract consumed by the flow, timeout and
// reminder modules, with PostgreSQL, SQLite and in-memory implementations.
package store

import (
	"log/slog"
	"strings"

	"github.com/ingenia-edu/ingeniabot/internal/models"
)

// Store is the record store contract: students, courses, payments,
// appointments, conversation log, FAQ lookup and usage statistics.
type Store interface {
	// GetStudentByPhone returns the student with the given digits-only
	// phone, or nil if no such row exists.
	GetStudentByPhone(phone string) (*models.Student, error)
	// CreateStudent inserts a new student row for a first-contact phone.
	CreateStudent(phone string) (*models.Student, error)
	// UpdateStudent applies the non-empty fields of upd to the student.
	UpdateStudent(id int64, upd models.StudentUpdate) error

	ListCourses(studentID int64) ([]models.Course, error)
	ListPayments(studentID int64) ([]models.Payment, error)

	// ListUpcomingAppointments returns future non-cancelled appointments
	// within the given window, soonest first. The ordering is the basis
	// for cancel-by-index resolution.
	ListUpcomingAppointments(studentID int64, withinDays int) ([]models.Appointment, error)
	CreateAppointment(studentID int64, draft models.BookingDraft) (*models.Appointment, error)
	CancelAppointment(appointmentID int64) error

	// ListDueReminders returns appointments whose reminder window has
	// opened and whose reminder has not been sent yet.
	ListDueReminders() ([]models.ReminderDue, error)
	MarkReminderSent(appointmentID int64) error

	AppendConversation(studentID int64, inbound, outbound string, isAI bool) error
	LogTimeout(studentID int64, phone, message string) error

	// FindSimilarFAQ returns the closest stored FAQ entry by text
	// similarity, or nil when nothing plausible matches. A successful
	// match increments the entry's usage counter.
	FindSimilarFAQ(text string) (*models.FAQMatch, error)
	AddFAQ(question, answer, category string) error

	GetStats() (*models.Stats, error)
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	PostgresDSN string
	SQLiteDSN   string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithPostgresDSN selects the PostgreSQL backend with the given DSN.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.PostgresDSN = dsn }
}

// WithSQLiteDSN selects the SQLite backend with the given file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.SQLiteDSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite" based on its
// shape. File paths and file: URIs are treated as SQLite.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// NewStore builds the store selected by the provided options. With no
// options it falls back to an in-memory store, which is only suitable
// for tests.
func NewStore(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	switch {
	case cfg.PostgresDSN != "":
		slog.Debug("NewStore selecting PostgreSQL backend")
		return NewPostgresStore(opts...)
	case cfg.SQLiteDSN != "":
		slog.Debug("NewStore selecting SQLite backend")
		return NewSQLiteStore(opts...)
	default:
		slog.Warn("NewStore: no DSN configured, using in-memory store")
		return NewInMemoryStore(), nil
	}
}
