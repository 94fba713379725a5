package workspace

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// waitForPending polls until Walk(basedir) reports at least one entry or
// the deadline passes, since fsnotify delivery is asynchronous.
func waitForPending(t *testing.T, d *Delta, basedir string) map[string]ResourceStatus {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		seen := map[string]ResourceStatus{}
		err := d.Walk(basedir, func(path string, _ time.Time, _ int64, status ResourceStatus) error {
			seen[filepath.Base(path)] = status
			return nil
		})
		if err != nil {
			t.Fatalf("Walk: %v", err)
		}
		if len(seen) > 0 {
			return seen
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("timed out waiting for a pending fsnotify event")
	return nil
}

func TestDeltaReportsCreatedFile(t *testing.T) {
	dir := t.TempDir()
	fs := NewFilesystem()
	d, err := NewDelta(fs)
	if err != nil {
		t.Fatalf("NewDelta: %v", err)
	}
	defer d.Close()

	// Prime the watch before anything is created.
	if err := d.Walk(dir, func(string, time.Time, int64, ResourceStatus) error { return nil }); err != nil {
		t.Fatalf("Walk: %v", err)
	}

	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	seen := waitForPending(t, d, dir)
	status, ok := seen["a.txt"]
	if !ok {
		t.Fatalf("expected a.txt to be reported, got %v", seen)
	}
	if status != New && status != Modified {
		t.Errorf("status = %v, want New or Modified", status)
	}
}

func TestDeltaWalkDrainsPendingOnce(t *testing.T) {
	dir := t.TempDir()
	fs := NewFilesystem()
	d, err := NewDelta(fs)
	if err != nil {
		t.Fatalf("NewDelta: %v", err)
	}
	defer d.Close()

	if err := d.Walk(dir, func(string, time.Time, int64, ResourceStatus) error { return nil }); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	waitForPending(t, d, dir)

	// A second, immediate Walk should see nothing new: the pending set was
	// already drained.
	seen := map[string]ResourceStatus{}
	err = d.Walk(dir, func(path string, _ time.Time, _ int64, status ResourceStatus) error {
		seen[filepath.Base(path)] = status
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(seen) != 0 {
		t.Errorf("second Walk reported %v, want empty", seen)
	}
}

func TestDeltaEscalateReturnsFullWalkWorkspace(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	fs := NewFilesystem()
	d, err := NewDelta(fs)
	if err != nil {
		t.Fatalf("NewDelta: %v", err)
	}
	defer d.Close()

	escalated := d.Escalate()
	if escalated.Mode() != Escalated {
		t.Fatalf("Escalate().Mode() = %v, want Escalated", escalated.Mode())
	}

	var visited int
	err = escalated.Walk(dir, func(_ string, _ time.Time, _ int64, status ResourceStatus) error {
		visited++
		if status != New {
			t.Errorf("status = %v, want New", status)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if visited != 1 {
		t.Errorf("visited %d files, want 1 (escalate must rediscover the whole tree)", visited)
	}
}
