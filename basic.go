package incrementalbuild

import (
	"log/slog"

	"github.com/GoCodeAlone/incrementalbuild/resource"
	"github.com/GoCodeAlone/incrementalbuild/sink"
	"github.com/GoCodeAlone/incrementalbuild/workspace"
)

// BasicContext is the minimal build context specialization: it tracks
// outputs only, with no input-change bookkeeping of its own. Outputs are
// presumed good once produced, so they always carry over untouched between
// builds — a caller that wants finer-grained staleness detection reaches
// for AggregatorContext instead.
type BasicContext struct {
	*abstractContext
}

// NewBasicContext constructs a BasicContext. stateFilePath may be empty to
// opt out of state persistence entirely (every build then behaves as a
// first build). logger may be nil to use slog.Default().
func NewBasicContext(ws workspace.Workspace, stateFilePath string, configuration map[string]resource.Value, logger *slog.Logger) (*BasicContext, error) {
	base, err := newAbstractContext(ws, stateFilePath, configuration, logger)
	if err != nil {
		return nil, err
	}
	base.shouldCarryOverOutput = func(resource.ID) bool { return true }
	base.isOutputUptodate = func(resource.ID) bool { return true }
	base.assertAssociation = func(resource.ID, resource.ID) error { return nil }
	return &BasicContext{abstractContext: base}, nil
}

// RegisterInput registers a single file as a tracked input.
func (c *BasicContext) RegisterInput(file string) (ResourceMetadata, error) {
	return c.registerInput(file)
}

// Escalated reports whether this build is treating every resource as
// changed, and if that is because the configuration changed, the
// "ADDED key" / "REMOVED key" / "CHANGED key" diagnostics that triggered
// it.
func (c *BasicContext) Escalated() (bool, []string) {
	return c.isEscalated(), c.configurationChanges()
}

// IsProcessingRequired reports whether anything changed since the last
// build: escalation, or any registered resource whose status is not
// UNMODIFIED. Previously declared outputs are presumed up to date, so an
// output missing from disk does not by itself require processing.
func (c *BasicContext) IsProcessingRequired() (bool, error) {
	return c.isProcessingRequired()
}

// ProcessOutput declares file as an output of this build and returns a
// handle through which it can be written and associated with its inputs.
func (c *BasicContext) ProcessOutput(file string) (Output, error) {
	return c.processOutput(file)
}

// Commit reconciles current and previous state and persists the result.
// messageSink may be nil; in that case any ERROR-severity message in the
// committed state, including one carried over from an earlier build,
// surfaces as a BuildFailureError.
func (c *BasicContext) Commit(messageSink sink.MessageSink) error {
	return c.commit(messageSink)
}

// MarkSkipExecution is legal only before anything has been processed; it
// short-circuits this build to a verbatim carry-over of previous state.
func (c *BasicContext) MarkSkipExecution() error {
	return c.markSkipExecution()
}
