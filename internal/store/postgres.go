// Package store provides storage backends for IngeniaBot.
//
// This file implements the PostgreSQL-backed record store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/ingenia-edu/ingeniabot/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 10
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 10
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore implements Store on top of PostgreSQL. FAQ matching uses
// the pg_trgm SIMILARITY function.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.PostgresDSN != "")

	dsn := cfg.PostgresDSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) GetStudentByPhone(phone string) (*models.Student, error) {
	row := s.db.QueryRow(`SELECT id, phone, COALESCE(name,''), COALESCE(email,''), COALESCE(program,''), COALESCE(term,''), created_at
		FROM students WHERE phone = $1`, phone)
	var st models.Student
	err := row.Scan(&st.ID, &st.Phone, &st.Name, &st.Email, &st.Program, &st.Term, &st.JoinedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetStudentByPhone failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query student by phone: %w", err)
	}
	return &st, nil
}

func (s *PostgresStore) CreateStudent(phone string) (*models.Student, error) {
	row := s.db.QueryRow(`INSERT INTO students (phone) VALUES ($1) RETURNING id, phone, created_at`, phone)
	var st models.Student
	if err := row.Scan(&st.ID, &st.Phone, &st.JoinedAt); err != nil {
		slog.Error("PostgresStore CreateStudent failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to create student %s: %w", phone, err)
	}
	slog.Info("PostgresStore new student registered", "phone", phone, "id", st.ID)
	return &st, nil
}

func (s *PostgresStore) UpdateStudent(id int64, upd models.StudentUpdate) error {
	res, err := s.db.Exec(`UPDATE students
		SET name = COALESCE($2, name),
		    email = COALESCE($3, email),
		    program = COALESCE($4, program),
		    term = COALESCE($5, term),
		    updated_at = NOW()
		WHERE id = $1`,
		id, nilIfEmpty(upd.Name), nilIfEmpty(upd.Email), nilIfEmpty(upd.Program), nilIfEmpty(upd.Term))
	if err != nil {
		slog.Error("PostgresStore UpdateStudent failed", "error", err, "id", id)
		return fmt.Errorf("failed to update student %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrStudentNotFound
	}
	return nil
}

func (s *PostgresStore) ListCourses(studentID int64) ([]models.Course, error) {
	rows, err := s.db.Query(`SELECT id, student_id, name, code, COALESCE(teacher,''), credits, COALESCE(schedule,''), COALESCE(room,'')
		FROM courses WHERE student_id = $1 ORDER BY name`, studentID)
	if err != nil {
		slog.Error("PostgresStore ListCourses query failed", "error", err, "studentID", studentID)
		return nil, fmt.Errorf("failed to query courses: %w", err)
	}
	defer rows.Close()
	var courses []models.Course
	for rows.Next() {
		var c models.Course
		if err := rows.Scan(&c.ID, &c.StudentID, &c.Name, &c.Code, &c.Teacher, &c.Credits, &c.Schedule, &c.Room); err != nil {
			return nil, fmt.Errorf("failed to scan course row: %w", err)
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

func (s *PostgresStore) ListPayments(studentID int64) ([]models.Payment, error) {
	rows, err := s.db.Query(`SELECT id, student_id, concept, amount, due_date, status
		FROM payments WHERE student_id = $1 ORDER BY due_date DESC`, studentID)
	if err != nil {
		slog.Error("PostgresStore ListPayments query failed", "error", err, "studentID", studentID)
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()
	var payments []models.Payment
	for rows.Next() {
		var p models.Payment
		if err := rows.Scan(&p.ID, &p.StudentID, &p.Concept, &p.Amount, &p.DueDate, &p.Status); err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (s *PostgresStore) ListUpcomingAppointments(studentID int64, withinDays int) ([]models.Appointment, error) {
	rows, err := s.db.Query(`SELECT id, student_id, type, title, scheduled_at, COALESCE(location,''), status, reminder_lead_mins, reminder_sent
		FROM appointments
		WHERE student_id = $1
		AND scheduled_at > NOW()
		AND scheduled_at < NOW() + ($2 || ' days')::INTERVAL
		AND status IN ('pendiente', 'confirmado')
		ORDER BY scheduled_at ASC`, studentID, withinDays)
	if err != nil {
		slog.Error("PostgresStore ListUpcomingAppointments query failed", "error", err, "studentID", studentID)
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

func (s *PostgresStore) CreateAppointment(studentID int64, draft models.BookingDraft) (*models.Appointment, error) {
	row := s.db.QueryRow(`INSERT INTO appointments (student_id, type, title, scheduled_at, location, reminder_lead_mins)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, student_id, type, title, scheduled_at, COALESCE(location,''), status, reminder_lead_mins, reminder_sent`,
		studentID, draft.Type, draft.Title, draft.When, nilIfEmpty(draft.Location), models.DefaultReminderLeadMinutes)
	var a models.Appointment
	err := row.Scan(&a.ID, &a.StudentID, &a.Type, &a.Title, &a.When, &a.Location, &a.Status, &a.ReminderLeadMins, &a.ReminderSent)
	if err != nil {
		slog.Error("PostgresStore CreateAppointment failed", "error", err, "studentID", studentID)
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}
	slog.Info("PostgresStore appointment created", "id", a.ID, "studentID", studentID, "when", a.When)
	return &a, nil
}

func (s *PostgresStore) CancelAppointment(appointmentID int64) error {
	res, err := s.db.Exec(`UPDATE appointments SET status = 'cancelado', updated_at = NOW() WHERE id = $1`, appointmentID)
	if err != nil {
		slog.Error("PostgresStore CancelAppointment failed", "error", err, "id", appointmentID)
		return fmt.Errorf("failed to cancel appointment %d: %w", appointmentID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrAppointmentMissing
	}
	return nil
}

func (s *PostgresStore) ListDueReminders() ([]models.ReminderDue, error) {
	rows, err := s.db.Query(`SELECT a.id, a.student_id, a.type, a.title, a.scheduled_at, COALESCE(a.location,''), a.status, a.reminder_lead_mins, a.reminder_sent, st.phone
		FROM appointments a
		JOIN students st ON a.student_id = st.id
		WHERE a.reminder_sent = FALSE
		AND a.status IN ('pendiente', 'confirmado')
		AND a.scheduled_at > NOW()
		AND a.scheduled_at <= NOW() + (a.reminder_lead_mins || ' minutes')::INTERVAL`)
	if err != nil {
		slog.Error("PostgresStore ListDueReminders query failed", "error", err)
		return nil, fmt.Errorf("failed to query due reminders: %w", err)
	}
	defer rows.Close()
	var due []models.ReminderDue
	for rows.Next() {
		var d models.ReminderDue
		if err := rows.Scan(&d.ID, &d.StudentID, &d.Type, &d.Title, &d.When, &d.Location, &d.Status, &d.ReminderLeadMins, &d.ReminderSent, &d.Phone); err != nil {
			return nil, fmt.Errorf("failed to scan reminder row: %w", err)
		}
		due = append(due, d)
	}
	return due, rows.Err()
}

func (s *PostgresStore) MarkReminderSent(appointmentID int64) error {
	_, err := s.db.Exec(`UPDATE appointments SET reminder_sent = TRUE WHERE id = $1`, appointmentID)
	if err != nil {
		slog.Error("PostgresStore MarkReminderSent failed", "error", err, "id", appointmentID)
		return fmt.Errorf("failed to mark reminder sent for %d: %w", appointmentID, err)
	}
	return nil
}

func (s *PostgresStore) AppendConversation(studentID int64, inbound, outbound string, isAI bool) error {
	_, err := s.db.Exec(`INSERT INTO conversations (student_id, inbound, outbound, is_ai) VALUES ($1, $2, $3, $4)`,
		studentID, inbound, outbound, isAI)
	if err != nil {
		slog.Error("PostgresStore AppendConversation failed", "error", err, "studentID", studentID)
		return fmt.Errorf("failed to append conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) LogTimeout(studentID int64, phone, message string) error {
	_, err := s.db.Exec(`INSERT INTO timeout_log (student_id, phone, message) VALUES ($1, $2, $3)`,
		studentID, phone, message)
	if err != nil {
		slog.Error("PostgresStore LogTimeout failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to log timeout: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindSimilarFAQ(text string) (*models.FAQMatch, error) {
	row := s.db.QueryRow(`SELECT id, question, answer, SIMILARITY(question, $1) AS sim
		FROM faq_entries
		WHERE SIMILARITY(question, $1) > $2
		ORDER BY sim DESC
		LIMIT 1`, text, minFAQSimilarity)
	var m models.FAQMatch
	err := row.Scan(&m.ID, &m.Question, &m.Answer, &m.Similarity)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore FindSimilarFAQ failed", "error", err)
		return nil, fmt.Errorf("failed to query FAQ: %w", err)
	}
	if _, err := s.db.Exec(`UPDATE faq_entries SET uses = uses + 1 WHERE id = $1`, m.ID); err != nil {
		slog.Warn("PostgresStore FAQ usage counter update failed", "error", err, "id", m.ID)
	}
	return &m, nil
}

func (s *PostgresStore) AddFAQ(question, answer, category string) error {
	_, err := s.db.Exec(`INSERT INTO faq_entries (question, answer, category) VALUES ($1, $2, $3)`,
		question, answer, nilIfEmpty(category))
	if err != nil {
		slog.Error("PostgresStore AddFAQ failed", "error", err)
		return fmt.Errorf("failed to add FAQ entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetStats() (*models.Stats, error) {
	var st models.Stats
	err := s.db.QueryRow(`SELECT COUNT(DISTINCT student_id) FROM conversations WHERE created_at > NOW() - INTERVAL '7 days'`).Scan(&st.ActiveUsers7d)
	if err != nil {
		return nil, fmt.Errorf("failed to query active users: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&st.TotalConversations); err != nil {
		return nil, fmt.Errorf("failed to query total conversations: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM conversations WHERE is_ai = TRUE`).Scan(&st.AIConversations); err != nil {
		return nil, fmt.Errorf("failed to query AI conversations: %w", err)
	}
	return &st, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}

// scanAppointments drains an appointment result set.
func scanAppointments(rows *sql.Rows) ([]models.Appointment, error) {
	var out []models.Appointment
	for rows.Next() {
		var a models.Appointment
		if err := rows.Scan(&a.ID, &a.StudentID, &a.Type, &a.Title, &a.When, &a.Location, &a.Status, &a.ReminderLeadMins, &a.ReminderSent); err != nil {
			return nil, fmt.Errorf("failed to scan appointment row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
