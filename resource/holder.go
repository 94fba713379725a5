package resource

import (
	"time"

	"github.com/GoCodeAlone/incrementalbuild/workspace"
)

// Holder records what a build context needs to decide whether a resource
// has changed since the previous build. FileState is the only concrete
// variant today; new variants are added by implementing Holder rather
// than by subclassing, with Status giving every variant a self-contained
// classification method so the engine never needs a type switch itself.
type Holder interface {
	// Equal reports whether two holders describe the same remembered
	// state: same concrete type, same fields.
	Equal(other Holder) bool
	// Status classifies the holder's resource against the live workspace.
	Status(ws workspace.Workspace) (workspace.ResourceStatus, error)
}

// FileState remembers a file's modification time and length as of the
// build that registered it — the only concrete Holder variant today.
type FileState struct {
	Path         ID
	LastModified time.Time
	Length       int64
}

// NewFileState builds a FileState from workspace-reported file metadata.
func NewFileState(path ID, lastModified time.Time, length int64) FileState {
	return FileState{Path: path, LastModified: lastModified, Length: length}
}

func (f FileState) Equal(other Holder) bool {
	o, ok := other.(FileState)
	if !ok {
		return false
	}
	return f.Path == o.Path && f.LastModified.Equal(o.LastModified) && f.Length == o.Length
}

func (f FileState) Status(ws workspace.Workspace) (workspace.ResourceStatus, error) {
	return ws.GetResourceStatus(string(f.Path), f.LastModified, f.Length)
}
