// Package reminder delivers appointment reminders.
//
// A cron-driven poller periodically asks the record store for
// appointments whose reminder window has opened, sends one reminder per
// appointment and marks it sent so it never repeats.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ingenia-edu/ingeniabot/internal/models"
	"github.com/ingenia-edu/ingeniabot/internal/scheduler"
	"github.com/ingenia-edu/ingeniabot/internal/store"
)

// DefaultCronExpr polls every five minutes.
const DefaultCronExpr = "*/5 * * * *"

// Sender delivers the reminder message. Satisfied by messaging.Service.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Poller periodically delivers due appointment reminders.
type Poller struct {
	store  store.Store
	sender Sender
	sched  *scheduler.Scheduler
}

// NewPoller creates a Poller that reads due reminders from st and
// delivers them through sender.
func NewPoller(st store.Store, sender Sender) *Poller {
	return &Poller{store: st, sender: sender}
}

// Start schedules the recurring poll. The first poll runs on the cron
// boundary, not immediately.
func (p *Poller) Start(sched *scheduler.Scheduler) error {
	p.sched = sched
	if err := sched.AddJob(DefaultCronExpr, func() {
		if n, err := p.RunOnce(context.Background()); err != nil {
			slog.Error("Reminder poll failed", "error", err)
		} else if n > 0 {
			slog.Info("Reminder poll delivered", "count", n)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule reminder poll: %w", err)
	}
	slog.Info("Reminder poller scheduled", "cron", DefaultCronExpr)
	return nil
}

// RunOnce performs a single poll pass and returns the number of
// reminders delivered. A send failure skips the mark so the reminder is
// retried on the next pass.
func (p *Poller) RunOnce(ctx context.Context) (int, error) {
	due, err := p.store.ListDueReminders()
	if err != nil {
		return 0, fmt.Errorf("failed to list due reminders: %w", err)
	}

	delivered := 0
	for _, r := range due {
		if err := p.sender.SendMessage(ctx, r.Phone, reminderMessage(r)); err != nil {
			slog.Error("Failed to send reminder", "error", err, "appointmentID", r.ID, "phone", r.Phone)
			continue
		}
		if err := p.store.MarkReminderSent(r.ID); err != nil {
			slog.Error("Failed to mark reminder sent", "error", err, "appointmentID", r.ID)
			continue
		}
		delivered++
	}
	return delivered, nil
}

// reminderMessage formats one reminder.
func reminderMessage(r models.ReminderDue) string {
	msg := fmt.Sprintf(`🔔 *Recordatorio de Cita*

📝 %s
📆 %s`, r.Title, r.When.Format("02/01/2006 15:04"))
	if r.Location != "" {
		msg += fmt.Sprintf("\n📍 %s", r.Location)
	}
	remaining := time.Until(r.When).Round(time.Minute)
	if remaining > 0 {
		msg += fmt.Sprintf("\n\n⏰ Faltan %d minutos", int(remaining.Minutes()))
	}
	msg += "\n\n_¡No faltes!_ 😊"
	return msg
}
