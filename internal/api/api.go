// Package api provides IngeniaBot's HTTP surface.
//
// It exposes a health endpoint and, when the Twilio transport is in use,
// mounts its inbound webhook.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DefaultAddr is the default listen address for the HTTP server.
const DefaultAddr = ":8080"

// ConnectionReporter reports the transport's live state. Satisfied by
// messaging.Service.
type ConnectionReporter interface {
	Connected() bool
}

// HealthResponse is the GET /health payload.
type HealthResponse struct {
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
	Connected bool   `json:"connected"`
}

// Server is the HTTP server wrapper.
type Server struct {
	httpServer *http.Server
	transport  ConnectionReporter
	startedAt  time.Time
}

// Opts holds configuration options for the Server.
type Opts struct {
	Addr    string
	Webhook http.HandlerFunc
}

// Option defines a configuration option for the Server.
type Option func(*Opts)

// WithAddr overrides the default listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithTwilioWebhook mounts the given handler at /webhook/twilio.
func WithTwilioWebhook(h http.HandlerFunc) Option {
	return func(o *Opts) { o.Webhook = h }
}

// NewServer creates the HTTP server.
func NewServer(transport ConnectionReporter, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{transport: transport, startedAt: time.Now()}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	if cfg.Webhook != nil {
		mux.HandleFunc("/webhook/twilio", cfg.Webhook)
		slog.Debug("Twilio webhook mounted", "path", "/webhook/twilio")
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

// Start listens in a background goroutine until Shutdown.
func (s *Server) Start() {
	go func() {
		slog.Info("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server failed", "error", err)
		}
	}()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	connected := s.transport == nil || s.transport.Connected()
	status := "ok"
	if !connected {
		status = "degraded"
	}
	writeJSONResponse(w, http.StatusOK, HealthResponse{
		Status:    status,
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
		Connected: connected,
	})
}

// writeJSONResponse writes a JSON response with the given status code,
// marshaling before writing headers so encoding errors can still change
// the status.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = []byte(fmt.Sprintf("{%q:%q}", "status", "error"))
		statusCode = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}
