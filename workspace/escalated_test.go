package workspace

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEscalatedAlwaysReportsChanged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fs := NewFilesystem()
	e := fs.Escalate()
	if e.Mode() != Escalated {
		t.Fatalf("Mode() = %v, want Escalated", e.Mode())
	}

	modTime, length, err := e.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	status, err := e.GetResourceStatus(path, modTime, length)
	if err != nil {
		t.Fatalf("GetResourceStatus: %v", err)
	}
	if status != Modified {
		t.Errorf("GetResourceStatus = %v, want Modified even though nothing changed", status)
	}

	status, err = e.GetResourceStatus(filepath.Join(dir, "missing.txt"), time.Time{}, 0)
	if err != nil {
		t.Fatalf("GetResourceStatus: %v", err)
	}
	if status != Removed {
		t.Errorf("GetResourceStatus on missing file = %v, want Removed", status)
	}
}

func TestEscalatedWalkOverridesStatusToNew(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	e := NewFilesystem().Escalate()

	var visited int
	err := e.Walk(dir, func(_ string, _ time.Time, _ int64, status ResourceStatus) error {
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
		t.Fatalf("visited %d files, want 1", visited)
	}
}

func TestEscalateIsIdempotent(t *testing.T) {
	fs := NewFilesystem()
	e1 := fs.Escalate()
	e2 := e1.Escalate()
	if e2.Mode() != Escalated {
		t.Errorf("Escalate().Escalate().Mode() = %v, want Escalated", e2.Mode())
	}
}
