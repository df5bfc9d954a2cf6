// Package lockfile provides a lease-file lock preventing multiple
// IngeniaBot instances from driving the same WhatsApp session.
//
// The lock is cooperative: a lease records {pid, timestamp, host}, and a
// lease older than the staleness threshold is treated as abandoned by a
// dead process and overwritten. It does not defend against clock skew or
// simultaneous creation races; a single-operator deployment is assumed.
package lockfile

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const (
	// LockFileName is the name of the lease file created in the state directory.
	LockFileName = "ingeniabot.lock"
	// StaleThreshold is the lease age beyond which the owning process is
	// presumed dead and the lease abandoned.
	StaleThreshold = 5 * time.Minute
)

// Lease is the on-disk record proving one process owns the session.
type Lease struct {
	PID       int    `json:"pid"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
	Hostname  string `json:"hostname"`
}

// Age returns how long ago the lease was written.
func (l Lease) Age() time.Duration {
	return time.Since(time.UnixMilli(l.Timestamp))
}

// Lock guards the bot's external session via a lease file.
type Lock struct {
	path     string
	acquired bool
}

// New creates a Lock whose lease file lives in the given state directory.
func New(stateDir string) *Lock {
	return &Lock{path: filepath.Join(stateDir, LockFileName)}
}

// Path returns the lease file location.
func (l *Lock) Path() string {
	return l.path
}

// Acquire attempts to take the lease. It returns true when the lease was
// created (no lease existed, or the existing one was stale) and false when
// a fresh lease from a presumably live process is present. Filesystem
// errors are treated as acquisition failure rather than raised.
func (l *Lock) Acquire() bool {
	slog.Debug("Attempting to acquire instance lock", "lock_path", l.path)

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		slog.Error("Failed to create state directory for lock", "error", err, "lock_path", l.path)
		return false
	}

	if existing, err := readLease(l.path); err == nil {
		if existing.Age() <= StaleThreshold {
			slog.Error("Another bot instance appears to be running",
				"pid", existing.PID, "host", existing.Hostname, "lease_age", existing.Age())
			return false
		}
		slog.Info("Stale instance lease found, replacing",
			"pid", existing.PID, "lease_age", existing.Age(), "threshold", StaleThreshold)
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			slog.Error("Failed to remove stale lease", "error", err, "lock_path", l.path)
			return false
		}
	} else if !os.IsNotExist(err) {
		// Unreadable or corrupt lease: safer to refuse than to assume
		// ownership over a possibly live instance.
		slog.Error("Failed to read existing lease", "error", err, "lock_path", l.path)
		return false
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	lease := Lease{
		PID:       os.Getpid(),
		Timestamp: time.Now().UnixMilli(),
		Hostname:  hostname,
	}
	data, err := json.MarshalIndent(lease, "", "  ")
	if err != nil {
		slog.Error("Failed to encode lease", "error", err)
		return false
	}
	if err := os.WriteFile(l.path, data, 0644); err != nil {
		slog.Error("Failed to write lease file", "error", err, "lock_path", l.path)
		return false
	}

	l.acquired = true
	slog.Info("Instance lock acquired", "lock_path", l.path, "pid", lease.PID)
	return true
}

// Release deletes the lease file if this process holds it. It is an
// idempotent no-op otherwise and never returns an error: it runs from
// shutdown and signal paths where failures can only be logged.
func (l *Lock) Release() {
	if !l.acquired {
		slog.Debug("Instance lock not held, nothing to release", "lock_path", l.path)
		return
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Error("Failed to remove lease file", "error", err, "lock_path", l.path)
		return
	}
	l.acquired = false
	slog.Info("Instance lock released", "lock_path", l.path)
}

// readLease parses the lease file at path.
func readLease(path string) (Lease, error) {
	var lease Lease
	data, err := os.ReadFile(path)
	if err != nil {
		return lease, err
	}
	if err := json.Unmarshal(data, &lease); err != nil {
		return lease, fmt.Errorf("corrupt lease file %s: %w", path, err)
	}
	return lease, nil
}
