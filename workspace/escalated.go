package workspace

import (
	"io"
	"time"
)

// escalated wraps a filesystem-backed workspace so every visited resource
// is reported changed. It is what Filesystem.Escalate and Delta.Escalate
// return: a configuration change forces a full rebuild, and a partial
// change-tracking DELTA walk is not enough to rediscover every input in
// that case.
type escalated struct {
	fs *Filesystem
}

func (e *escalated) Mode() Mode { return Escalated }

func (e *escalated) Escalate() Workspace { return e }

func (e *escalated) IsPresent(path string) bool { return e.fs.IsPresent(path) }

func (e *escalated) Stat(path string) (time.Time, int64, error) { return e.fs.Stat(path) }

func (e *escalated) GetResourceStatus(path string, _ time.Time, _ int64) (ResourceStatus, error) {
	if !e.fs.IsPresent(path) {
		return Removed, nil
	}
	return Modified, nil
}

func (e *escalated) NewOutputStream(path string) (io.WriteCloser, error) { return e.fs.NewOutputStream(path) }

func (e *escalated) DeleteFile(path string) error { return e.fs.DeleteFile(path) }

func (e *escalated) Walk(basedir string, visit VisitFunc) error {
	return e.fs.Walk(basedir, func(path string, lastModified time.Time, length int64, _ ResourceStatus) error {
		return visit(path, lastModified, length, New)
	})
}
