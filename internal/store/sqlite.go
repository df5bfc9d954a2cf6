// Package store provides storage backends for IngeniaBot.
//
// This file implements the SQLite-backed record store for single-host
// deployments. FAQ similarity is computed in Go since SQLite has no
// trigram support.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/ingenia-edu/ingeniabot/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore implements Store on top of a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.SQLiteDSN != "")

	dsn := cfg.SQLiteDSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetStudentByPhone(phone string) (*models.Student, error) {
	row := s.db.QueryRow(`SELECT id, phone, COALESCE(name,''), COALESCE(email,''), COALESCE(program,''), COALESCE(term,''), created_at
		FROM students WHERE phone = ?`, phone)
	var st models.Student
	err := row.Scan(&st.ID, &st.Phone, &st.Name, &st.Email, &st.Program, &st.Term, &st.JoinedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetStudentByPhone failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query student by phone: %w", err)
	}
	return &st, nil
}

func (s *SQLiteStore) CreateStudent(phone string) (*models.Student, error) {
	res, err := s.db.Exec(`INSERT INTO students (phone) VALUES (?)`, phone)
	if err != nil {
		slog.Error("SQLiteStore CreateStudent failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to create student %s: %w", phone, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read new student id: %w", err)
	}
	slog.Info("SQLiteStore new student registered", "phone", phone, "id", id)
	return &models.Student{ID: id, Phone: phone, JoinedAt: time.Now()}, nil
}

func (s *SQLiteStore) UpdateStudent(id int64, upd models.StudentUpdate) error {
	res, err := s.db.Exec(`UPDATE students
		SET name = COALESCE(?, name),
		    email = COALESCE(?, email),
		    program = COALESCE(?, program),
		    term = COALESCE(?, term),
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		nilIfEmpty(upd.Name), nilIfEmpty(upd.Email), nilIfEmpty(upd.Program), nilIfEmpty(upd.Term), id)
	if err != nil {
		slog.Error("SQLiteStore UpdateStudent failed", "error", err, "id", id)
		return fmt.Errorf("failed to update student %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrStudentNotFound
	}
	return nil
}

func (s *SQLiteStore) ListCourses(studentID int64) ([]models.Course, error) {
	rows, err := s.db.Query(`SELECT id, student_id, name, code, COALESCE(teacher,''), credits, COALESCE(schedule,''), COALESCE(room,'')
		FROM courses WHERE student_id = ? ORDER BY name`, studentID)
	if err != nil {
		slog.Error("SQLiteStore ListCourses query failed", "error", err, "studentID", studentID)
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

func (s *SQLiteStore) ListPayments(studentID int64) ([]models.Payment, error) {
	rows, err := s.db.Query(`SELECT id, student_id, concept, amount, due_date, status
		FROM payments WHERE student_id = ? ORDER BY due_date DESC`, studentID)
	if err != nil {
		slog.Error("SQLiteStore ListPayments query failed", "error", err, "studentID", studentID)
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

func (s *SQLiteStore) ListUpcomingAppointments(studentID int64, withinDays int) ([]models.Appointment, error) {
	now := time.Now()
	horizon := now.AddDate(0, 0, withinDays)
	rows, err := s.db.Query(`SELECT id, student_id, type, title, scheduled_at, COALESCE(location,''), status, reminder_lead_mins, reminder_sent
		FROM appointments
		WHERE student_id = ?
		AND scheduled_at > ?
		AND scheduled_at < ?
		AND status IN ('pendiente', 'confirmado')
		ORDER BY scheduled_at ASC`, studentID, now, horizon)
	if err != nil {
		slog.Error("SQLiteStore ListUpcomingAppointments query failed", "error", err, "studentID", studentID)
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

func (s *SQLiteStore) CreateAppointment(studentID int64, draft models.BookingDraft) (*models.Appointment, error) {
	res, err := s.db.Exec(`INSERT INTO appointments (student_id, type, title, scheduled_at, location, reminder_lead_mins)
		VALUES (?, ?, ?, ?, ?, ?)`,
		studentID, draft.Type, draft.Title, draft.When, nilIfEmpty(draft.Location), models.DefaultReminderLeadMinutes)
	if err != nil {
		slog.Error("SQLiteStore CreateAppointment failed", "error", err, "studentID", studentID)
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read new appointment id: %w", err)
	}
	slog.Info("SQLiteStore appointment created", "id", id, "studentID", studentID, "when", draft.When)
	return &models.Appointment{
		ID:               id,
		StudentID:        studentID,
		Type:             draft.Type,
		Title:            draft.Title,
		When:             draft.When,
		Location:         draft.Location,
		Status:           models.AppointmentPending,
		ReminderLeadMins: models.DefaultReminderLeadMinutes,
	}, nil
}

func (s *SQLiteStore) CancelAppointment(appointmentID int64) error {
	res, err := s.db.Exec(`UPDATE appointments SET status = 'cancelado', updated_at = CURRENT_TIMESTAMP WHERE id = ?`, appointmentID)
	if err != nil {
		slog.Error("SQLiteStore CancelAppointment failed", "error", err, "id", appointmentID)
		return fmt.Errorf("failed to cancel appointment %d: %w", appointmentID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrAppointmentMissing
	}
	return nil
}

func (s *SQLiteStore) ListDueReminders() ([]models.ReminderDue, error) {
	// The reminder window test runs in Go: SQLite cannot multiply the
	// per-row lead column into an interval.
	now := time.Now()
	rows, err := s.db.Query(`SELECT a.id, a.student_id, a.type, a.title, a.scheduled_at, COALESCE(a.location,''), a.status, a.reminder_lead_mins, a.reminder_sent, st.phone
		FROM appointments a
		JOIN students st ON a.student_id = st.id
		WHERE a.reminder_sent = 0
		AND a.status IN ('pendiente', 'confirmado')
		AND a.scheduled_at > ?`, now)
	if err != nil {
		slog.Error("SQLiteStore ListDueReminders query failed", "error", err)
		return nil, fmt.Errorf("failed to query due reminders: %w", err)
	}
	defer rows.Close()
	var due []models.ReminderDue
	for rows.Next() {
		var d models.ReminderDue
		if err := rows.Scan(&d.ID, &d.StudentID, &d.Type, &d.Title, &d.When, &d.Location, &d.Status, &d.ReminderLeadMins, &d.ReminderSent, &d.Phone); err != nil {
			return nil, fmt.Errorf("failed to scan reminder row: %w", err)
		}
		if d.When.Sub(now) <= time.Duration(d.ReminderLeadMins)*time.Minute {
			due = append(due, d)
		}
	}
	return due, rows.Err()
}

func (s *SQLiteStore) MarkReminderSent(appointmentID int64) error {
	_, err := s.db.Exec(`UPDATE appointments SET reminder_sent = 1 WHERE id = ?`, appointmentID)
	if err != nil {
		slog.Error("SQLiteStore MarkReminderSent failed", "error", err, "id", appointmentID)
		return fmt.Errorf("failed to mark reminder sent for %d: %w", appointmentID, err)
	}
	return nil
}

func (s *SQLiteStore) AppendConversation(studentID int64, inbound, outbound string, isAI bool) error {
	_, err := s.db.Exec(`INSERT INTO conversations (student_id, inbound, outbound, is_ai) VALUES (?, ?, ?, ?)`,
		studentID, inbound, outbound, isAI)
	if err != nil {
		slog.Error("SQLiteStore AppendConversation failed", "error", err, "studentID", studentID)
		return fmt.Errorf("failed to append conversation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LogTimeout(studentID int64, phone, message string) error {
	_, err := s.db.Exec(`INSERT INTO timeout_log (student_id, phone, message) VALUES (?, ?, ?)`,
		studentID, phone, message)
	if err != nil {
		slog.Error("SQLiteStore LogTimeout failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to log timeout: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindSimilarFAQ(text string) (*models.FAQMatch, error) {
	rows, err := s.db.Query(`SELECT id, question, answer FROM faq_entries`)
	if err != nil {
		slog.Error("SQLiteStore FindSimilarFAQ query failed", "error", err)
		return nil, fmt.Errorf("failed to query FAQ: %w", err)
	}
	defer rows.Close()
	var best *models.FAQMatch
	for rows.Next() {
		var id int64
		var question, answer string
		if err := rows.Scan(&id, &question, &answer); err != nil {
			return nil, fmt.Errorf("failed to scan FAQ row: %w", err)
		}
		sim := textSimilarity(text, question)
		if sim <= minFAQSimilarity {
			continue
		}
		if best == nil || sim > best.Similarity {
			best = &models.FAQMatch{ID: id, Question: question, Answer: answer, Similarity: sim}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if best != nil {
		if _, err := s.db.Exec(`UPDATE faq_entries SET uses = uses + 1 WHERE id = ?`, best.ID); err != nil {
			slog.Warn("SQLiteStore FAQ usage counter update failed", "error", err, "id", best.ID)
		}
	}
	return best, nil
}

func (s *SQLiteStore) AddFAQ(question, answer, category string) error {
	_, err := s.db.Exec(`INSERT INTO faq_entries (question, answer, category) VALUES (?, ?, ?)`,
		question, answer, nilIfEmpty(category))
	if err != nil {
		slog.Error("SQLiteStore AddFAQ failed", "error", err)
		return fmt.Errorf("failed to add FAQ entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetStats() (*models.Stats, error) {
	var st models.Stats
	cutoff := time.Now().AddDate(0, 0, -7)
	if err := s.db.QueryRow(`SELECT COUNT(DISTINCT student_id) FROM conversations WHERE created_at > ?`, cutoff).Scan(&st.ActiveUsers7d); err != nil {
		return nil, fmt.Errorf("failed to query active users: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&st.TotalConversations); err != nil {
		return nil, fmt.Errorf("failed to query total conversations: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM conversations WHERE is_ai = 1`).Scan(&st.AIConversations); err != nil {
		return nil, fmt.Errorf("failed to query AI conversations: %w", err)
	}
	return &st, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
