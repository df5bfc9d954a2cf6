package flow

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ingenia-edu/ingeniabot/internal/genai"
	"github.com/ingenia-edu/ingeniabot/internal/models"
	"github.com/ingenia-edu/ingeniabot/internal/store"
)

// Dispatcher classifies inbound messages and produces replies. It owns
// the booking session store; everything else is injected.
type Dispatcher struct {
	store      store.Store
	sessions   SessionStore
	ai         genai.Completer
	adminPhone string
	timerCount func() int
	startedAt  time.Time
}

// Opts holds configuration options for the Dispatcher.
type Opts struct {
	Sessions   SessionStore
	Completer  genai.Completer
	AdminPhone string
	TimerCount func() int
}

// Option defines a configuration option for the Dispatcher.
type Option func(*Opts)

// WithSessionStore overrides the default in-memory booking session store.
func WithSessionStore(s SessionStore) Option {
	return func(o *Opts) { o.Sessions = s }
}

// WithCompleter sets the completion service for the AI fallback. Without
// one, free-text questions degrade to a fixed apology.
func WithCompleter(c genai.Completer) Option {
	return func(o *Opts) { o.Completer = c }
}

// WithAdminPhone enables the admin-only diagnostics for the given phone.
func WithAdminPhone(phone string) Option {
	return func(o *Opts) { o.AdminPhone = phone }
}

// WithTimerCount supplies the pending-timeout counter shown by the status
// diagnostic.
func WithTimerCount(fn func() int) Option {
	return func(o *Opts) { o.TimerCount = fn }
}

// NewDispatcher creates a Dispatcher backed by st.
func NewDispatcher(st store.Store, opts ...Option) *Dispatcher {
	cfg := Opts{Sessions: NewMemorySessionStore()}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Dispatcher created", "adminConfigured", cfg.AdminPhone != "")
	return &Dispatcher{
		store:      st,
		sessions:   cfg.Sessions,
		ai:         cfg.Completer,
		adminPhone: cfg.AdminPhone,
		timerCount: cfg.TimerCount,
		startedAt:  time.Now(),
	}
}

// menuTriggers are the exact normalized phrases that show the main menu.
// They also abort any booking dialogue in progress.
var menuTriggers = map[string]bool{
	"hola":          true,
	"menu":          true,
	"inicio":        true,
	"buenas":        true,
	"buenos dias":   true,
	"buenas tardes": true,
	"buenas noches": true,
	"ayuda":         true,
}

// cancelPattern matches "cancelar cita N" with a 1-based agenda index.
var cancelPattern = regexp.MustCompile(`^cancelar\s+cita\s+(\d+)$`)

// pureNumeric matches messages made entirely of digits.
var pureNumeric = regexp.MustCompile(`^\d+$`)

// accentFolder strips the accents relevant to Spanish keyword matching.
var accentFolder = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
)

// normalize lowercases, trims and folds accents so keyword matching is
// insensitive to casing and diacritics.
func normalize(raw string) string {
	return accentFolder.Replace(strings.ToLower(strings.TrimSpace(raw)))
}

// Route classifies one inbound message and returns the reply plus its
// source tag for conversation logging. Classification is strictly
// ordered: diagnostics, menu commands, booking continuation, exclusive
// numeric options, booking triggers, keyword domains, free-text
// fallback. Earlier rules always win.
func (d *Dispatcher) Route(ctx context.Context, raw string, student *models.Student) (string, models.ReplySource) {
	text := normalize(raw)

	// Diagnostics. !stats without admin rights falls through so the
	// command's existence is not revealed.
	if text == "!status" {
		return d.statusReply(), models.SourceSystem
	}
	if text == "!stats" && d.adminPhone != "" && student.Phone == d.adminPhone {
		return d.statsReply(), models.SourceSystem
	}

	// Menu commands escape whatever dialogue is in progress.
	if menuTriggers[text] {
		d.sessions.Clear(student.Phone)
		return MainMenu, models.SourceMenu
	}

	// An active booking dialogue consumes the message before numeric
	// classification, so step inputs like "2" reach the machine.
	if sess, ok := d.sessions.Get(student.Phone); ok {
		return d.continueBooking(student.Phone, student.ID, sess, raw), models.SourceMenu
	}

	// Pure-numeric input is exclusive: valid options dispatch, anything
	// else numeric re-lists the options. Never falls through to keywords.
	if pureNumeric.MatchString(text) {
		// Atoi fails on digit runs beyond the int range; those are just
		// another invalid option and must echo the text as typed.
		n, err := strconv.Atoi(text)
		if err != nil {
			return invalidOption(text), models.SourceMenu
		}
		switch n {
		case 1:
			return d.coursesReply(student.ID), models.SourceMenu
		case 2:
			return d.paymentsReply(student.ID), models.SourceMenu
		case 3:
			return d.agendaView(student.ID), models.SourceMenu
		case 4:
			return wellnessReply, models.SourceMenu
		case 5:
			return supportReply, models.SourceMenu
		case 6:
			return admissionReply, models.SourceMenu
		default:
			return invalidOption(text), models.SourceMenu
		}
	}

	// Booking triggers and agenda commands.
	if text == "agendar" || text == "nueva cita" || strings.Contains(text, "agendar cita") {
		return d.startBooking(student.Phone), models.SourceMenu
	}
	if m := cancelPattern.FindStringSubmatch(text); m != nil {
		idx, _ := strconv.Atoi(m[1])
		return d.cancelByIndex(student.ID, idx), models.SourceMenu
	}
	if text == "agenda" || text == "mi agenda" || text == "citas" || text == "mis citas" || text == "recordatorios" {
		return d.agendaView(student.ID), models.SourceMenu
	}

	// Keyword domains, first match wins.
	switch {
	case containsAny(text, "curso", "cursos", "clase", "clases", "horario"):
		return d.coursesReply(student.ID), models.SourceMenu
	case containsAny(text, "pago", "pagos", "pension", "deuda", "cuota"):
		return d.paymentsReply(student.ID), models.SourceMenu
	case containsAny(text, "bienestar", "psicolog", "gimnasio", "comedor", "salud"):
		return wellnessReply, models.SourceMenu
	case containsAny(text, "soporte", "contrasena", "clave", "sistema", "campus virtual"):
		return supportReply, models.SourceMenu
	case containsAny(text, "admision", "postular", "examen de admision", "inscripcion"):
		return admissionReply, models.SourceMenu
	}

	// Free text: FAQ first, then the completion service.
	return d.assistantReply(ctx, student, strings.TrimSpace(raw))
}

func containsAny(text string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
