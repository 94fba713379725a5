package workspace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Filesystem is the reference Workspace implementation: it walks the local
// filesystem, classifies files by (mtime, length) rather than content hash,
// and writes through plain os.File streams. It always
// reports Normal mode; wrap it with Delta (delta.go) to obtain change-only
// walks.
type Filesystem struct{}

// NewFilesystem returns a NORMAL-mode filesystem-backed Workspace.
func NewFilesystem() *Filesystem {
	return &Filesystem{}
}

func (f *Filesystem) Mode() Mode { return Normal }

func (f *Filesystem) Escalate() Workspace { return &escalated{fs: f} }

func (f *Filesystem) IsPresent(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (f *Filesystem) Stat(path string) (time.Time, int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("workspace: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return time.Time{}, 0, fmt.Errorf("workspace: %s is a directory", path)
	}
	return info.ModTime(), info.Size(), nil
}

func (f *Filesystem) GetResourceStatus(path string, rememberedModified time.Time, rememberedLength int64) (ResourceStatus, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Removed, nil
		}
		return Removed, fmt.Errorf("workspace: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return Removed, nil
	}
	if info.Size() == rememberedLength && info.ModTime().Equal(rememberedModified) {
		return Unmodified, nil
	}
	return Modified, nil
}

func (f *Filesystem) NewOutputStream(path string) (io.WriteCloser, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: create directory %s: %w", dir, err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("workspace: create %s: %w", path, err)
	}
	return file, nil
}

func (f *Filesystem) DeleteFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("workspace: delete %s: %w", path, err)
	}
	return nil
}

// Walk enumerates every regular file under basedir. Every file is reported
// NEW; the engine decides NEW vs. MODIFIED vs. UNMODIFIED against its own
// previous-build state.
func (f *Filesystem) Walk(basedir string, visit VisitFunc) error {
	return filepath.Walk(basedir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("workspace: walk %s: %w", path, err)
		}
		if info.IsDir() {
			return nil
		}
		return visit(path, info.ModTime(), info.Size(), New)
	})
}
