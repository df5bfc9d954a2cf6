package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeTransport struct{ connected bool }

func (f *fakeTransport) Connected() bool { return f.connected }

func TestHealthHandler(t *testing.T) {
	s := NewServer(&fakeTransport{connected: true})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.healthHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || !resp.Connected {
		t.Errorf("resp = %+v, want ok and connected", resp)
	}
	if resp.Uptime == "" {
		t.Error("uptime should be populated")
	}
}

func TestHealthHandlerDegraded(t *testing.T) {
	s := NewServer(&fakeTransport{connected: false})

	rec := httptest.NewRecorder()
	s.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "degraded" || resp.Connected {
		t.Errorf("resp = %+v, want degraded", resp)
	}
}

func TestHealthHandlerRejectsPost(t *testing.T) {
	s := NewServer(&fakeTransport{connected: true})

	rec := httptest.NewRecorder()
	s.healthHandler(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
