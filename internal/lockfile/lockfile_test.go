package lockfile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireCreatesLease(t *testing.T) {
	lock := New(t.TempDir())

	if !lock.Acquire() {
		t.Fatal("Acquire should succeed when no lease exists")
	}

	data, err := os.ReadFile(lock.Path())
	if err != nil {
		t.Fatalf("Failed to read lease file: %v", err)
	}
	var lease Lease
	if err := json.Unmarshal(data, &lease); err != nil {
		t.Fatalf("Lease file is not valid JSON: %v", err)
	}
	if lease.PID != os.Getpid() {
		t.Errorf("lease PID = %d, want %d", lease.PID, os.Getpid())
	}
	if lease.Hostname == "" {
		t.Error("lease hostname should not be empty")
	}
}

func TestAcquireConflictWithFreshLease(t *testing.T) {
	dir := t.TempDir()
	first := New(dir)
	if !first.Acquire() {
		t.Fatal("first Acquire should succeed")
	}

	second := New(dir)
	if second.Acquire() {
		t.Fatal("second Acquire should fail while the lease is fresh")
	}
}

func TestAcquireOverwritesStaleLease(t *testing.T) {
	dir := t.TempDir()
	stale := Lease{
		PID:       99999,
		Timestamp: time.Now().Add(-StaleThreshold - time.Minute).UnixMilli(),
		Hostname:  "dead-host",
	}
	data, _ := json.Marshal(stale)
	path := filepath.Join(dir, LockFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to seed stale lease: %v", err)
	}

	lock := New(dir)
	if !lock.Acquire() {
		t.Fatal("Acquire should overwrite a stale lease")
	}

	fresh, err := readLease(path)
	if err != nil {
		t.Fatalf("Failed to read new lease: %v", err)
	}
	if fresh.PID != os.Getpid() {
		t.Errorf("lease not overwritten: PID = %d", fresh.PID)
	}
}

func TestAcquireRefusesCorruptLease(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, LockFileName), []byte("not-json"), 0644); err != nil {
		t.Fatalf("Failed to seed corrupt lease: %v", err)
	}
	lock := New(dir)
	if lock.Acquire() {
		t.Error("Acquire should refuse when the lease file is unreadable")
	}
}

func TestReleaseIdempotent(t *testing.T) {
	lock := New(t.TempDir())

	// Releasing a never-acquired lock must be a no-op.
	lock.Release()

	if !lock.Acquire() {
		t.Fatal("Acquire failed")
	}
	lock.Release()
	if _, err := os.Stat(lock.Path()); !os.IsNotExist(err) {
		t.Error("lease file should be removed after Release")
	}

	// Second release is a no-op.
	lock.Release()

	// Lock can be re-acquired after release.
	if !lock.Acquire() {
		t.Error("Acquire should succeed after Release")
	}
}
