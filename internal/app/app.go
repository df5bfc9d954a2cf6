// Package app wires IngeniaBot's components into the message loop.
//
// It consumes inbound messages from the transport, routes them through
// the dispatcher, delivers replies and maintains the per-user inactivity
// timeout around every exchange.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/ingenia-edu/ingeniabot/internal/flow"
	"github.com/ingenia-edu/ingeniabot/internal/messaging"
	"github.com/ingenia-edu/ingeniabot/internal/models"
	"github.com/ingenia-edu/ingeniabot/internal/store"
	"github.com/ingenia-edu/ingeniabot/internal/timeout"
)

// handleTimeout bounds the processing of one inbound message.
const handleTimeout = 60 * time.Second

// App owns the message loop.
type App struct {
	transport  messaging.Service
	store      store.Store
	dispatcher *flow.Dispatcher
	timeouts   *timeout.Manager
}

// New creates the App from its already-constructed collaborators.
func New(transport messaging.Service, st store.Store, dispatcher *flow.Dispatcher, timeouts *timeout.Manager) *App {
	return &App{
		transport:  transport,
		store:      st,
		dispatcher: dispatcher,
		timeouts:   timeouts,
	}
}

// Run consumes inbound messages until the context is cancelled or the
// transport's channel closes. Messages are handled sequentially; the
// timeout manager fires concurrently.
func (a *App) Run(ctx context.Context) error {
	slog.Info("Message loop started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("Message loop stopping", "reason", ctx.Err())
			return ctx.Err()
		case msg, ok := <-a.transport.Messages():
			if !ok {
				slog.Info("Message loop stopping, transport channel closed")
				return nil
			}
			a.handleMessage(ctx, msg)
		}
	}
}

// handleMessage processes one inbound message end to end. A panic in any
// handler is recovered into a generic apology so one bad message cannot
// take the loop down.
func (a *App) handleMessage(parent context.Context, msg models.InboundMessage) {
	ctx, cancel := context.WithTimeout(parent, handleTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic while handling message", "panic", r, "from", msg.From)
			if err := a.transport.SendMessage(ctx, msg.From, flow.ApologyGeneric); err != nil {
				slog.Error("Failed to send panic apology", "error", err, "from", msg.From)
			}
		}
	}()

	// The user is active again; any pending farewell is obsolete.
	a.timeouts.Cancel(msg.From)

	student, err := a.store.GetStudentByPhone(msg.From)
	if err != nil {
		slog.Error("Student lookup failed", "error", err, "from", msg.From)
		a.send(ctx, msg.From, flow.ApologyGeneric)
		return
	}
	if student == nil {
		student, err = a.store.CreateStudent(msg.From)
		if err != nil {
			slog.Error("Student creation failed", "error", err, "from", msg.From)
			a.send(ctx, msg.From, flow.ApologyGeneric)
			return
		}
		slog.Info("New student registered", "from", msg.From, "studentID", student.ID)
		a.send(ctx, msg.From, flow.Welcome)
	}

	reply, source := a.dispatcher.Route(ctx, msg.Body, student)
	a.send(ctx, msg.From, reply)

	if err := a.store.AppendConversation(student.ID, msg.Body, reply, source.IsAI()); err != nil {
		slog.Error("Failed to log conversation", "error", err, "studentID", student.ID)
	}

	a.timeouts.Arm(msg.From)
}

func (a *App) send(ctx context.Context, to, body string) {
	if err := a.transport.SendMessage(ctx, to, body); err != nil {
		slog.Error("Failed to send reply", "error", err, "to", to)
	}
}

// Shutdown drains pending timeouts and stops the transport.
func (a *App) Shutdown() {
	a.timeouts.DrainAll()
	if err := a.transport.Stop(); err != nil {
		slog.Error("Failed to stop transport", "error", err)
	}
	slog.Info("Application shut down")
}
