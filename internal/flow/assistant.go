package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ingenia-edu/ingeniabot/internal/genai"
	"github.com/ingenia-edu/ingeniabot/internal/models"
)

// faqThreshold is the minimum similarity for a stored FAQ entry to answer
// a free-text question without invoking the completion service.
const faqThreshold = 0.65

// faqFootnote marks replies sourced from the FAQ table so students can
// tell them apart from generated answers.
const faqFootnote = "_💡 Respuesta de preguntas frecuentes_"

// assistantReply answers free text: first against the FAQ table, then
// through the completion service. Failures degrade to fixed apologies.
func (d *Dispatcher) assistantReply(ctx context.Context, student *models.Student, question string) (string, models.ReplySource) {
	match, err := d.store.FindSimilarFAQ(question)
	if err != nil {
		slog.Warn("FAQ lookup failed, falling through to AI", "error", err)
	} else if match != nil && match.Similarity >= faqThreshold {
		slog.Info("FAQ hit", "faqID", match.ID, "similarity", match.Similarity)
		return match.Answer + "\n\n" + faqFootnote + "\n\n" + menuFooter, models.SourceFAQ
	}

	if d.ai == nil {
		slog.Warn("No completion service configured, apologizing", "phone", student.Phone)
		return apologyAI, models.SourceSystem
	}

	answer, err := d.ai.Complete(ctx, systemPrompt, d.buildUserPrompt(student, question))
	if err != nil {
		slog.Error("Completion failed", "error", err, "phone", student.Phone)
		if errors.Is(err, genai.ErrSafetyBlocked) {
			return apologySafety, models.SourceSystem
		}
		return apologyAI, models.SourceSystem
	}
	return answer, models.SourceAI
}

// buildUserPrompt embeds the student's profile and enrollment so the
// completion service can personalize its answer.
func (d *Dispatcher) buildUserPrompt(student *models.Student, question string) string {
	var b strings.Builder
	b.WriteString("DATOS DEL ESTUDIANTE:\n")
	if student.Name != "" {
		fmt.Fprintf(&b, "- Nombre: %s\n", student.Name)
	}
	if student.Program != "" {
		fmt.Fprintf(&b, "- Carrera: %s\n", student.Program)
	}
	if student.Term != "" {
		fmt.Fprintf(&b, "- Ciclo: %s\n", student.Term)
	}

	courses, err := d.store.ListCourses(student.ID)
	if err != nil {
		slog.Warn("Could not load courses for prompt", "error", err, "studentID", student.ID)
	}
	if len(courses) > 0 {
		b.WriteString("- Cursos matriculados:\n")
		for _, c := range courses {
			fmt.Fprintf(&b, "  • %s (%s)\n", c.Name, c.Code)
		}
	}

	fmt.Fprintf(&b, "\nPREGUNTA:\n%s", question)
	return b.String()
}
