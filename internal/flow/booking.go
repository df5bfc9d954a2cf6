package flow

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ingenia-edu/ingeniabot/internal/models"
)

// appointmentType pairs the label shown in the type prompt with the slug
// stored in the appointments table.
type appointmentType struct {
	Slug  string
	Label string
}

// appointmentTypes is the fixed list offered at the first booking step.
// Indexes in the prompt are 1-based.
var appointmentTypes = []appointmentType{
	{"cita", "Cita médica/psicológica"},
	{"asesoria", "Asesoría académica"},
	{"tutoria", "Tutoría"},
	{"recordatorio", "Recordatorio personal"},
	{"otro", "Otro"},
}

// bookingDateLayout accepts DD/MM/YYYY HH:MM with or without zero padding.
const bookingDateLayout = "2/1/2006 15:04"

// locationNone values map the location step to a null location.
var locationNone = map[string]bool{"none": true, "ninguna": true, "ninguno": true}

// startBooking opens a fresh dialogue for phone and returns the type prompt.
func (d *Dispatcher) startBooking(phone string) string {
	d.sessions.Put(phone, BookingSession{Step: StepSelectType})
	slog.Debug("Booking dialogue started", "phone", phone)

	var b strings.Builder
	b.WriteString("📅 *Agendar Nueva Cita*\n\n¿Qué tipo de evento deseas agendar?\n\n")
	for i, t := range appointmentTypes {
		fmt.Fprintf(&b, "*%d* - %s\n", i+1, t.Label)
	}
	b.WriteString("\nEscribe el número de tu elección 👇")
	return b.String()
}

// continueBooking advances the dialogue one step. Invalid input re-prompts
// without advancing; the final step commits the draft and clears the
// session.
func (d *Dispatcher) continueBooking(phone string, studentID int64, sess BookingSession, input string) string {
	switch sess.Step {
	case StepSelectType:
		idx, err := strconv.Atoi(strings.TrimSpace(input))
		if err != nil || idx < 1 || idx > len(appointmentTypes) {
			return fmt.Sprintf("❌ Opción no válida.\n\nEscribe un número del 1 al %d 👇", len(appointmentTypes))
		}
		sess.Draft.Type = appointmentTypes[idx-1].Slug
		sess.Step = StepEnterTitle
		d.sessions.Put(phone, sess)
		return "📝 ¿Cuál es el título o motivo de la cita?\n\nEjemplo: _Consulta psicológica_, _Revisión de tesis_"

	case StepEnterTitle:
		title := strings.TrimSpace(input)
		if title == "" {
			return "❌ El título no puede estar vacío.\n\nEscribe el motivo de tu cita 👇"
		}
		sess.Draft.Title = title
		sess.Step = StepEnterDateTime
		d.sessions.Put(phone, sess)
		return "📆 ¿Cuándo es la cita?\n\nEscribe la fecha y hora en formato:\n*DD/MM/YYYY HH:MM*\n\nEjemplo: _15/08/2025 10:30_"

	case StepEnterDateTime:
		when, err := parseBookingDateTime(input, time.Now())
		if err != nil {
			return "❌ Fecha no válida o en el pasado.\n\nUsa el formato *DD/MM/YYYY HH:MM* con una fecha futura.\n\nEjemplo: _15/08/2025 10:30_"
		}
		sess.Draft.When = when
		sess.Step = StepEnterLocation
		d.sessions.Put(phone, sess)
		return "📍 ¿Dónde será la cita?\n\nEscribe la ubicación, o *\"ninguna\"* si no aplica 👇"

	case StepEnterLocation:
		location := strings.TrimSpace(input)
		if locationNone[strings.ToLower(location)] {
			location = ""
		}
		sess.Draft.Location = location

		appt, err := d.store.CreateAppointment(studentID, sess.Draft)
		if err != nil {
			slog.Error("Booking commit failed", "error", err, "phone", phone, "studentID", studentID)
			// Draft survives so the user can retry the last step.
			return apologyStore
		}
		d.sessions.Clear(phone)
		slog.Info("Booking committed", "phone", phone, "appointmentID", appt.ID, "when", appt.When)

		loc := appt.Location
		if loc == "" {
			loc = "Sin ubicación"
		}
		return fmt.Sprintf(`✅ *¡Cita agendada!*

📝 %s
📆 %s
📍 %s

🔔 Te enviaré un recordatorio %d minutos antes.

%s`, appt.Title, appt.When.Format("02/01/2006 15:04"), loc, appt.ReminderLeadMins, menuFooter)

	default:
		// Unknown step: drop the broken session and restart cleanly.
		slog.Warn("Booking session in unknown step, resetting", "phone", phone, "step", sess.Step)
		d.sessions.Clear(phone)
		return d.startBooking(phone)
	}
}

// parseBookingDateTime parses the booking date format and rejects any
// moment not strictly after now.
func parseBookingDateTime(input string, now time.Time) (time.Time, error) {
	when, err := time.ParseInLocation(bookingDateLayout, strings.TrimSpace(input), time.Local)
	if err != nil {
		return time.Time{}, err
	}
	if !when.After(now) {
		return time.Time{}, models.ErrPastDateTime
	}
	return when, nil
}
