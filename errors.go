package incrementalbuild

import (
	"errors"
	"fmt"
)

// Sentinel error categories. Wrap these with fmt.Errorf and %w so callers
// can errors.Is against the category without parsing text.
var (
	// ErrInvalidArgument marks a programming error at a call site: a nil
	// required argument, a handle from a foreign context, a resource not
	// present in the workspace, and so on. A mutation after commit is an
	// ErrInvalidState.
	ErrInvalidArgument = errors.New("incrementalbuild: invalid argument")
	// ErrInvalidState marks an operation that is structurally illegal given
	// the context's current state, e.g. marking skip-execution after a
	// resource has already been processed, or any mutation once the
	// context is closed.
	ErrInvalidState = errors.New("incrementalbuild: invalid state")
	// ErrInconsistentResource marks re-registration of an existing input
	// id with a holder that disagrees with the one already on record.
	// Outputs are always replace-permitted and never raise this.
	ErrInconsistentResource = errors.New("incrementalbuild: inconsistent resource")
)

// BuildFailureError is raised by commit when no MessageSink is configured
// and at least one ERROR-severity message was recorded. It is raised only
// after carry-over and state persistence have completed, so the next
// build still sees this build's outcome.
type BuildFailureError struct {
	Summary string
}

func (e *BuildFailureError) Error() string {
	return fmt.Sprintf("incrementalbuild: build failed:\n%s", e.Summary)
}
