package workspace

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Delta decorates a Filesystem workspace into a DELTA-mode one: instead of
// re-stating every file under a basedir on every registerInputs call, it
// keeps an fsnotify watch on the tree and only reports paths that actually
// changed since the last Walk, the same role a single-file config watcher
// plays for one path, widened to a whole directory tree of build inputs.
//
// A fresh Delta has nothing pending, so its first Walk of any basedir
// reports nothing; callers that need the initial population to look like a
// normal build run the first build against a Filesystem workspace and
// switch to Delta afterwards.
type Delta struct {
	fs     *Filesystem
	logger *slog.Logger

	watcher *fsnotify.Watcher
	closeMu sync.Mutex
	closed  bool

	mu      sync.Mutex
	watched map[string]struct{}
	pending map[string]ResourceStatus
}

// DeltaOption configures a Delta workspace.
type DeltaOption func(*Delta)

// WithDeltaLogger sets the logger used for watch-setup diagnostics.
func WithDeltaLogger(l *slog.Logger) DeltaOption {
	return func(d *Delta) { d.logger = l }
}

// NewDelta creates a DELTA-mode workspace backed by fs, watching directory
// trees lazily as Walk is called against them.
func NewDelta(fs *Filesystem, opts ...DeltaOption) (*Delta, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("workspace: create fsnotify watcher: %w", err)
	}
	d := &Delta{
		fs:      fs,
		logger:  slog.Default(),
		watcher: w,
		watched: make(map[string]struct{}),
		pending: make(map[string]ResourceStatus),
	}
	for _, opt := range opts {
		opt(d)
	}
	go d.drain()
	return d, nil
}

func (d *Delta) drain() {
	for {
		select {
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			d.record(event)
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.logger.Warn("workspace: fsnotify error", "error", err)
		}
	}
}

func (d *Delta) record(event fsnotify.Event) {
	status := New
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		status = Removed
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		status = Modified
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			d.watchTree(event.Name)
			return
		}
	default:
		return
	}
	d.mu.Lock()
	d.pending[event.Name] = status
	d.mu.Unlock()
}

func (d *Delta) watchTree(root string) {
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || !info.IsDir() {
			return nil
		}
		d.mu.Lock()
		_, already := d.watched[path]
		d.mu.Unlock()
		if already {
			return nil
		}
		if err := d.watcher.Add(path); err != nil {
			d.logger.Warn("workspace: watch directory", "path", path, "error", err)
			return nil
		}
		d.mu.Lock()
		d.watched[path] = struct{}{}
		d.mu.Unlock()
		return nil
	})
}

// Close stops the underlying fsnotify watcher. Safe to call more than once.
func (d *Delta) Close() error {
	d.closeMu.Lock()
	defer d.closeMu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.watcher.Close()
}

func (d *Delta) Mode() Mode { return DeltaMode }

func (d *Delta) Escalate() Workspace { return &escalated{fs: d.fs} }

func (d *Delta) IsPresent(path string) bool { return d.fs.IsPresent(path) }

func (d *Delta) Stat(path string) (time.Time, int64, error) { return d.fs.Stat(path) }

func (d *Delta) GetResourceStatus(path string, rememberedModified time.Time, rememberedLength int64) (ResourceStatus, error) {
	return d.fs.GetResourceStatus(path, rememberedModified, rememberedLength)
}

func (d *Delta) NewOutputStream(path string) (io.WriteCloser, error) { return d.fs.NewOutputStream(path) }

func (d *Delta) DeleteFile(path string) error { return d.fs.DeleteFile(path) }

// Walk visits only the paths recorded as changed since the last Walk of
// basedir, draining them from the pending set. It begins (or confirms) a
// recursive watch on basedir first, so a fresh Delta can be pointed at a
// new tree at any time; changes made before a tree is first watched are
// not reported.
func (d *Delta) Walk(basedir string, visit VisitFunc) error {
	d.watchTree(basedir)

	d.mu.Lock()
	batch := make(map[string]ResourceStatus, len(d.pending))
	for path, status := range d.pending {
		if within(basedir, path) {
			batch[path] = status
			delete(d.pending, path)
		}
	}
	d.mu.Unlock()

	for path, status := range batch {
		if status == Removed {
			if err := visit(path, time.Time{}, 0, Removed); err != nil {
				return err
			}
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				if err := visit(path, time.Time{}, 0, Removed); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("workspace: stat %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := visit(path, info.ModTime(), info.Size(), status); err != nil {
			return err
		}
	}
	return nil
}

func within(basedir, path string) bool {
	rel, err := filepath.Rel(basedir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !hasDotDotPrefix(rel)
}

func hasDotDotPrefix(rel string) bool {
	return len(rel) >= 2 && rel[0] == '.' && rel[1] == '.' &&
		(len(rel) == 2 || os.IsPathSeparator(rel[2]))
}
