package flow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ingenia-edu/ingeniabot/internal/genai"
	"github.com/ingenia-edu/ingeniabot/internal/models"
	"github.com/ingenia-edu/ingeniabot/internal/store"
)

type fakeCompleter struct {
	reply  string
	err    error
	called int
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	f.called++
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func newTestDispatcher(t *testing.T, opts ...Option) (*Dispatcher, *store.InMemoryStore, *models.Student) {
	t.Helper()
	st := store.NewInMemoryStore()
	student, err := st.CreateStudent("51999888777")
	if err != nil {
		t.Fatalf("CreateStudent: %v", err)
	}
	return NewDispatcher(st, opts...), st, student
}

func TestMenuTriggersShowMenu(t *testing.T) {
	d, _, student := newTestDispatcher(t)

	for _, trigger := range []string{"hola", "Hola", "MENÚ", "menu", " inicio ", "Buenos días"} {
		reply, src := d.Route(context.Background(), trigger, student)
		if reply != MainMenu {
			t.Errorf("Route(%q) did not return the main menu", trigger)
		}
		if src != models.SourceMenu {
			t.Errorf("Route(%q) source = %q, want menu", trigger, src)
		}
	}
}

func TestMenuTriggerAbortsBooking(t *testing.T) {
	d, _, student := newTestDispatcher(t)

	d.Route(context.Background(), "agendar", student)
	if _, ok := d.sessions.Get(student.Phone); !ok {
		t.Fatal("booking session should exist after trigger")
	}

	reply, _ := d.Route(context.Background(), "menú", student)
	if reply != MainMenu {
		t.Error("menu command during booking should return the menu")
	}
	if _, ok := d.sessions.Get(student.Phone); ok {
		t.Error("menu command should clear the booking session")
	}
}

func TestNumericOptionsAreExclusive(t *testing.T) {
	ai := &fakeCompleter{reply: "never"}
	d, _, student := newTestDispatcher(t, WithCompleter(ai))

	reply, _ := d.Route(context.Background(), "9", student)
	if !strings.Contains(reply, `"9" no válida`) {
		t.Errorf("out-of-range digit should re-list options, got %q", reply)
	}

	// Long digit runs stay in the numeric branch too.
	reply, _ = d.Route(context.Background(), "123456", student)
	if !strings.Contains(reply, "no válida") {
		t.Errorf("digit run should hit invalid-option, got %q", reply)
	}

	// Digit runs beyond the int range echo the text as typed.
	reply, _ = d.Route(context.Background(), "99999999999999999999", student)
	if !strings.Contains(reply, `"99999999999999999999" no válida`) {
		t.Errorf("overlong digit run should echo the input, got %q", reply)
	}
	if ai.called != 0 {
		t.Error("numeric input must never reach the completion service")
	}
}

func TestNumericOptionDispatch(t *testing.T) {
	d, st, student := newTestDispatcher(t)
	st.AddCourse(models.Course{StudentID: student.ID, Name: "Cálculo I", Code: "MAT101", Teacher: "Dr. Ríos", Credits: 4})

	reply, src := d.Route(context.Background(), "1", student)
	if !strings.Contains(reply, "Cálculo I") {
		t.Errorf("option 1 should list courses, got %q", reply)
	}
	if src != models.SourceMenu {
		t.Errorf("source = %q, want menu", src)
	}

	reply, _ = d.Route(context.Background(), "4", student)
	if !strings.Contains(reply, "Bienestar") {
		t.Errorf("option 4 should be wellness copy, got %q", reply)
	}
}

func TestBookingEndToEnd(t *testing.T) {
	d, st, student := newTestDispatcher(t)
	ctx := context.Background()

	reply, _ := d.Route(ctx, "agendar", student)
	if !strings.Contains(reply, "tipo de evento") {
		t.Fatalf("trigger should prompt for type, got %q", reply)
	}

	// "2" is consumed by the dialogue, not the numeric menu branch.
	reply, _ = d.Route(ctx, "2", student)
	if !strings.Contains(reply, "título") {
		t.Fatalf("type step should prompt for title, got %q", reply)
	}

	reply, _ = d.Route(ctx, "Revisión de tesis", student)
	if !strings.Contains(reply, "DD/MM/YYYY") {
		t.Fatalf("title step should prompt for datetime, got %q", reply)
	}

	// Past date re-prompts without advancing.
	reply, _ = d.Route(ctx, "01/01/2020 10:00", student)
	if !strings.Contains(reply, "no válida o en el pasado") {
		t.Fatalf("past datetime should re-prompt, got %q", reply)
	}

	future := time.Now().Add(48 * time.Hour).Format("02/01/2006 15:04")
	reply, _ = d.Route(ctx, future, student)
	if !strings.Contains(reply, "ubicación") {
		t.Fatalf("datetime step should prompt for location, got %q", reply)
	}

	reply, _ = d.Route(ctx, "ninguna", student)
	if !strings.Contains(reply, "¡Cita agendada!") {
		t.Fatalf("location step should confirm the booking, got %q", reply)
	}
	if _, ok := d.sessions.Get(student.Phone); ok {
		t.Error("session should be cleared after commit")
	}

	appts, err := st.ListUpcomingAppointments(student.ID, 7)
	if err != nil {
		t.Fatalf("ListUpcomingAppointments: %v", err)
	}
	if len(appts) != 1 {
		t.Fatalf("appointments = %d, want 1", len(appts))
	}
	if appts[0].Title != "Revisión de tesis" {
		t.Errorf("title = %q", appts[0].Title)
	}
	if appts[0].Type != "asesoria" {
		t.Errorf("type = %q, want asesoria", appts[0].Type)
	}
	if appts[0].Location != "" {
		t.Errorf("location = %q, want empty for the none sentinel", appts[0].Location)
	}
}

func TestBookingInvalidTypeReprompts(t *testing.T) {
	d, _, student := newTestDispatcher(t)
	ctx := context.Background()

	d.Route(ctx, "agendar", student)
	reply, _ := d.Route(ctx, "99", student)
	if !strings.Contains(reply, "Opción no válida") {
		t.Errorf("invalid type index should re-prompt, got %q", reply)
	}
	sess, ok := d.sessions.Get(student.Phone)
	if !ok || sess.Step != StepSelectType {
		t.Error("invalid input must not advance the dialogue")
	}
}

func TestAgendaViewAndCancel(t *testing.T) {
	d, st, student := newTestDispatcher(t)
	ctx := context.Background()

	reply, _ := d.Route(ctx, "mi agenda", student)
	if !strings.Contains(reply, "No tienes citas") {
		t.Errorf("empty agenda copy missing, got %q", reply)
	}

	_, err := st.CreateAppointment(student.ID, models.BookingDraft{
		Type: "tutoria", Title: "Tutoría de física", When: time.Now().Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateAppointment: %v", err)
	}

	reply, _ = d.Route(ctx, "agenda", student)
	if !strings.Contains(reply, "Tutoría de física") {
		t.Errorf("agenda should list the appointment, got %q", reply)
	}

	reply, _ = d.Route(ctx, "cancelar cita 1", student)
	if !strings.Contains(reply, "Cita cancelada") {
		t.Errorf("cancel by index failed, got %q", reply)
	}

	reply, _ = d.Route(ctx, "cancelar cita 5", student)
	if !strings.Contains(reply, "No encontré la cita número 5") {
		t.Errorf("out-of-range cancel should apologize, got %q", reply)
	}
}

func TestCancelReachesBeyondAgendaView(t *testing.T) {
	d, st, student := newTestDispatcher(t)
	ctx := context.Background()

	// Ten days out: past the one-week view, still cancellable.
	_, err := st.CreateAppointment(student.ID, models.BookingDraft{
		Type: "cita", Title: "Control médico", When: time.Now().Add(10 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateAppointment: %v", err)
	}

	reply, _ := d.Route(ctx, "mi agenda", student)
	if !strings.Contains(reply, "No tienes citas") {
		t.Errorf("view should not list a far appointment, got %q", reply)
	}

	reply, _ = d.Route(ctx, "cancelar cita 1", student)
	if !strings.Contains(reply, "Cita cancelada") {
		t.Errorf("cancel of a far appointment failed, got %q", reply)
	}

	remaining, err := st.ListUpcomingAppointments(student.ID, 30)
	if err != nil {
		t.Fatalf("ListUpcomingAppointments: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("appointments left = %d, want 0", len(remaining))
	}
}

func TestKeywordRouting(t *testing.T) {
	d, _, student := newTestDispatcher(t)
	ctx := context.Background()

	cases := []struct {
		in   string
		want string
	}{
		{"quiero ver mis pagos", "Mis Pagos"},
		{"necesito atención psicológica", "Bienestar"},
		{"olvidé mi contraseña", "Soporte"},
		{"información de admisión", "Admisión"},
	}
	for _, c := range cases {
		reply, _ := d.Route(ctx, c.in, student)
		if !strings.Contains(reply, c.want) {
			t.Errorf("Route(%q) = %q, want containing %q", c.in, reply, c.want)
		}
	}
}

func TestFAQShortCircuitsCompleter(t *testing.T) {
	ai := &fakeCompleter{reply: "never"}
	d, st, student := newTestDispatcher(t, WithCompleter(ai))

	if err := st.AddFAQ("cuando empiezan las clases", "Las clases empiezan el 17 de marzo.", "academico"); err != nil {
		t.Fatalf("AddFAQ: %v", err)
	}

	reply, src := d.Route(context.Background(), "cuando empiezan las clases?", student)
	if !strings.Contains(reply, "17 de marzo") {
		t.Errorf("FAQ answer not served, got %q", reply)
	}
	if !strings.Contains(reply, "Respuesta de preguntas frecuentes") {
		t.Errorf("FAQ reply should carry the source footnote, got %q", reply)
	}
	if src != models.SourceFAQ {
		t.Errorf("source = %q, want faq", src)
	}
	if ai.called != 0 {
		t.Error("FAQ hit must not invoke the completion service")
	}
}

func TestAIFallback(t *testing.T) {
	ai := &fakeCompleter{reply: "La biblioteca abre a las 8am."}
	d, _, student := newTestDispatcher(t, WithCompleter(ai))

	reply, src := d.Route(context.Background(), "a que hora abre la biblioteca", student)
	if reply != "La biblioteca abre a las 8am." {
		t.Errorf("reply = %q", reply)
	}
	if src != models.SourceAI {
		t.Errorf("source = %q, want ai", src)
	}
	if ai.called != 1 {
		t.Errorf("completer called %d times, want 1", ai.called)
	}
}

func TestAIFailuresDegradeToApologies(t *testing.T) {
	d, _, student := newTestDispatcher(t, WithCompleter(&fakeCompleter{err: errors.New("boom")}))
	reply, src := d.Route(context.Background(), "pregunta libre", student)
	if reply != apologyAI {
		t.Errorf("generic failure reply = %q", reply)
	}
	if src != models.SourceSystem {
		t.Errorf("source = %q, want system", src)
	}

	d2, _, student2 := newTestDispatcher(t, WithCompleter(&fakeCompleter{err: genai.ErrSafetyBlocked}))
	reply, _ = d2.Route(context.Background(), "pregunta bloqueada", student2)
	if reply != apologySafety {
		t.Errorf("safety block reply = %q", reply)
	}
}

func TestDiagnostics(t *testing.T) {
	ai := &fakeCompleter{reply: "fallback"}
	d, _, admin := newTestDispatcher(t,
		WithAdminPhone("51999888777"),
		WithCompleter(ai),
		WithTimerCount(func() int { return 3 }))

	reply, src := d.Route(context.Background(), "!status", admin)
	if !strings.Contains(reply, "Uptime") {
		t.Errorf("!status reply = %q", reply)
	}
	if !strings.Contains(reply, "Timeouts activos: 3") {
		t.Errorf("!status should include the timer snapshot, got %q", reply)
	}
	if src != models.SourceSystem {
		t.Errorf("!status source = %q, want system", src)
	}

	reply, _ = d.Route(context.Background(), "!stats", admin)
	if !strings.Contains(reply, "Estadísticas") {
		t.Errorf("admin !stats reply = %q", reply)
	}
}

func TestStatsFallsThroughForNonAdmin(t *testing.T) {
	ai := &fakeCompleter{reply: "respuesta libre"}
	d, st, _ := newTestDispatcher(t, WithAdminPhone("51111111111"), WithCompleter(ai))
	other, _ := st.CreateStudent("51222222222")

	reply, src := d.Route(context.Background(), "!stats", other)
	if strings.Contains(reply, "Estadísticas") {
		t.Error("non-admin must not see stats")
	}
	if src != models.SourceAI {
		t.Errorf("non-admin !stats source = %q, want ai fallback", src)
	}
	if ai.called != 1 {
		t.Error("non-admin !stats should be treated as free text")
	}
}
