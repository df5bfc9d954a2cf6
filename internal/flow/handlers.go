package flow

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// coursesReply formats the student's enrolled courses from the record
// store.
func (d *Dispatcher) coursesReply(studentID int64) string {
	courses, err := d.store.ListCourses(studentID)
	if err != nil {
		slog.Error("Failed to list courses", "error", err, "studentID", studentID)
		return apologyStore
	}
	if len(courses) == 0 {
		return `📚 *Mis Cursos*

No tienes cursos registrados este ciclo.

Si crees que es un error, contacta a soporte (opción *5*).

` + menuFooter
	}

	var b strings.Builder
	b.WriteString("📚 *Mis Cursos - Ciclo Actual*\n\n")
	totalCredits := 0
	for _, c := range courses {
		fmt.Fprintf(&b, "📖 *%s* (%s)\n", c.Name, c.Code)
		fmt.Fprintf(&b, "   👨‍🏫 %s\n", c.Teacher)
		if c.Schedule != "" {
			fmt.Fprintf(&b, "   🕐 %s\n", c.Schedule)
		}
		if c.Room != "" {
			fmt.Fprintf(&b, "   🚪 %s\n", c.Room)
		}
		fmt.Fprintf(&b, "   ⭐ %d créditos\n\n", c.Credits)
		totalCredits += c.Credits
	}
	fmt.Fprintf(&b, "📊 Total: %d cursos, %d créditos\n\n", len(courses), totalCredits)
	b.WriteString(menuFooter)
	return b.String()
}

// paymentsReply formats the student's payment items, pending first.
func (d *Dispatcher) paymentsReply(studentID int64) string {
	payments, err := d.store.ListPayments(studentID)
	if err != nil {
		slog.Error("Failed to list payments", "error", err, "studentID", studentID)
		return apologyStore
	}
	if len(payments) == 0 {
		return `💳 *Mis Pagos*

No tienes pagos registrados. ✅

` + menuFooter
	}

	var b strings.Builder
	b.WriteString("💳 *Mis Pagos*\n\n")
	var pendingTotal float64
	for _, p := range payments {
		icon := "✅"
		if p.Status == "pendiente" {
			icon = "⏳"
			pendingTotal += p.Amount
		}
		fmt.Fprintf(&b, "%s *%s*\n", icon, p.Concept)
		fmt.Fprintf(&b, "   💰 S/ %.2f\n", p.Amount)
		if !p.DueDate.IsZero() {
			fmt.Fprintf(&b, "   📆 Vence: %s\n", p.DueDate.Format("02/01/2006"))
		}
		b.WriteString("\n")
	}
	if pendingTotal > 0 {
		fmt.Fprintf(&b, "⚠️ *Total pendiente: S/ %.2f*\n\n", pendingTotal)
	} else {
		b.WriteString("🎉 ¡Estás al día con tus pagos!\n\n")
	}
	b.WriteString(menuFooter)
	return b.String()
}

// statusReply answers the !status diagnostic, available to any user.
func (d *Dispatcher) statusReply() string {
	uptime := time.Since(d.startedAt).Round(time.Second)
	timers := 0
	if d.timerCount != nil {
		timers = d.timerCount()
	}
	return fmt.Sprintf(`🤖 *IngeniaBot Status*

✅ En línea
⏱️ Uptime: %s
⏳ Timeouts activos: %d
🕐 Hora del servidor: %s`, uptime, timers, time.Now().Format("02/01/2006 15:04:05"))
}

// statsReply answers the admin-only !stats diagnostic.
func (d *Dispatcher) statsReply() string {
	stats, err := d.store.GetStats()
	if err != nil {
		slog.Error("Failed to fetch stats", "error", err)
		return apologyStore
	}
	return fmt.Sprintf(`📊 *Estadísticas de IngeniaBot*

👥 Usuarios activos (7 días): %d
💬 Conversaciones totales: %d
🤖 Respuestas con IA: %d (%.1f%%)`,
		stats.ActiveUsers7d, stats.TotalConversations, stats.AIConversations, stats.AIPercent())
}
