package flow

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ingenia-edu/ingeniabot/internal/models"
)

// agendaWindowDays bounds the agenda view to the coming week.
const agendaWindowDays = 7

// cancelWindowDays bounds the cancel list. Cancellation covers every
// future appointment, not just the view window; the soonest-first
// ordering keeps the view's indices a stable prefix of this list.
const cancelWindowDays = 3650

// typeIcons decorate agenda entries per appointment type.
var typeIcons = map[string]string{
	"cita":         "🏥",
	"asesoria":     "📖",
	"tutoria":      "👨‍🏫",
	"recordatorio": "🔔",
	"otro":         "📌",
}

func typeIcon(t string) string {
	if icon, ok := typeIcons[t]; ok {
		return icon
	}
	return "📌"
}

// agendaView lists the student's upcoming appointments, soonest first.
func (d *Dispatcher) agendaView(studentID int64) string {
	appts, err := d.store.ListUpcomingAppointments(studentID, agendaWindowDays)
	if err != nil {
		slog.Error("Failed to list appointments", "error", err, "studentID", studentID)
		return apologyStore
	}
	if len(appts) == 0 {
		return `📅 *Mi Agenda*

No tienes citas programadas para los próximos 7 días.

Escribe *"agendar"* para crear una nueva cita 📝

` + menuFooter
	}

	var b strings.Builder
	b.WriteString("📅 *Mi Agenda - Próximos 7 días*\n\n")
	now := time.Now()
	for i, a := range appts {
		fmt.Fprintf(&b, "%s *%d. %s*\n", typeIcon(a.Type), i+1, a.Title)
		fmt.Fprintf(&b, "   📆 %s (%s)\n", a.When.Format("02/01/2006 15:04"), humanizeRemaining(a.When.Sub(now)))
		if a.Location != "" {
			fmt.Fprintf(&b, "   📍 %s\n", a.Location)
		}
		b.WriteString("\n")
	}
	b.WriteString("_Escribe \"cancelar cita N\" para cancelar la cita número N_\n\n")
	b.WriteString(menuFooter)
	return b.String()
}

// cancelByIndex cancels the idx-th (1-based) appointment of the agenda
// view's ordering. The list is re-fetched, so the index refers to the
// agenda as it exists now, not as last displayed.
func (d *Dispatcher) cancelByIndex(studentID int64, idx int) string {
	appts, err := d.store.ListUpcomingAppointments(studentID, cancelWindowDays)
	if err != nil {
		slog.Error("Failed to list appointments for cancel", "error", err, "studentID", studentID)
		return apologyStore
	}
	if idx < 1 || idx > len(appts) {
		return fmt.Sprintf(`❌ No encontré la cita número %d.

Escribe *"mi agenda"* para ver tus citas y sus números.

%s`, idx, menuFooter)
	}

	target := appts[idx-1]
	if err := d.store.CancelAppointment(target.ID); err != nil {
		if err == models.ErrAppointmentMissing {
			return fmt.Sprintf("❌ La cita número %d ya no existe.\n\n%s", idx, menuFooter)
		}
		slog.Error("Failed to cancel appointment", "error", err, "appointmentID", target.ID)
		return apologyStore
	}
	slog.Info("Appointment cancelled", "appointmentID", target.ID, "studentID", studentID)

	return fmt.Sprintf(`✅ *Cita cancelada*

📝 %s
📆 %s

%s`, target.Title, target.When.Format("02/01/2006 15:04"), menuFooter)
}

// humanizeRemaining renders the time until an appointment in coarse
// Spanish units.
func humanizeRemaining(d time.Duration) string {
	switch {
	case d < time.Hour:
		mins := int(d.Minutes())
		if mins <= 1 {
			return "en 1 minuto"
		}
		return fmt.Sprintf("en %d minutos", mins)
	case d < 24*time.Hour:
		hours := int(d.Hours())
		if hours == 1 {
			return "en 1 hora"
		}
		return fmt.Sprintf("en %d horas", hours)
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "mañana"
		}
		return fmt.Sprintf("en %d días", days)
	}
}
