package flow

import (
	"testing"
	"time"
)

func TestParseBookingDateTime(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.Local)

	when, err := parseBookingDateTime("15/08/2025 10:30", now)
	if err != nil {
		t.Fatalf("valid future date rejected: %v", err)
	}
	if when.Day() != 15 || when.Month() != time.August || when.Hour() != 10 || when.Minute() != 30 {
		t.Errorf("parsed = %v", when)
	}

	// Unpadded day and month are accepted.
	if _, err := parseBookingDateTime("5/8/2025 9:05", now); err != nil {
		t.Errorf("unpadded date rejected: %v", err)
	}

	if _, err := parseBookingDateTime("01/01/2020 10:00", now); err == nil {
		t.Error("past date must be rejected")
	}
	if _, err := parseBookingDateTime("10/06/2025 12:00", now); err == nil {
		t.Error("exact now must be rejected, future means strictly after")
	}
	for _, bad := range []string{"", "mañana", "2025-08-15 10:30", "32/01/2026 10:00"} {
		if _, err := parseBookingDateTime(bad, now); err == nil {
			t.Errorf("parse(%q) should fail", bad)
		}
	}
}

func TestHumanizeRemaining(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Minute, "en 30 minutos"},
		{time.Minute, "en 1 minuto"},
		{3 * time.Hour, "en 3 horas"},
		{25 * time.Hour, "mañana"},
		{72 * time.Hour, "en 3 días"},
	}
	for _, c := range cases {
		if got := humanizeRemaining(c.d); got != c.want {
			t.Errorf("humanizeRemaining(%v) = %q, want %q", c.d, got, c.want)
		}
	}
}

func TestMemorySessionStore(t *testing.T) {
	s := NewMemorySessionStore()

	if _, ok := s.Get("51999000111"); ok {
		t.Error("empty store should report no session")
	}

	s.Put("51999000111", BookingSession{Step: StepEnterTitle})
	sess, ok := s.Get("51999000111")
	if !ok || sess.Step != StepEnterTitle {
		t.Errorf("Get = %+v, %v", sess, ok)
	}

	s.Clear("51999000111")
	if _, ok := s.Get("51999000111"); ok {
		t.Error("Clear should remove the session")
	}
	// Clearing again is a no-op.
	s.Clear("51999000111")
}
