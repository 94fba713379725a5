package incrementalbuild

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/incrementalbuild/buildstate"
	"github.com/GoCodeAlone/incrementalbuild/matcher"
	"github.com/GoCodeAlone/incrementalbuild/message"
	"github.com/GoCodeAlone/incrementalbuild/resource"
	"github.com/GoCodeAlone/incrementalbuild/sink"
	"github.com/GoCodeAlone/incrementalbuild/workspace"
)

// abstractContext is the engine behind BasicContext and AggregatorContext:
// registration, processing, association, and commit, plus the escalation
// rule that decides whether a build starts out treating every resource as
// changed. It is never constructed directly by a host; the two
// specializations inject the carry-over/up-to-date/association hooks that
// distinguish them the way a set of functional options injects behavior
// into a shared loop instead of relying on subclassing.
type abstractContext struct {
	ws            workspace.Workspace
	stateFilePath string
	previous      *buildstate.State
	current       *buildstate.State
	logger        *slog.Logger

	escalated bool
	closed    bool
	committed bool

	deletedResources   map[resource.ID]struct{}
	processedResources map[resource.ID]struct{}

	configChanges []string

	// Hooks a specialization sets right after newAbstractContext returns.
	isOutputUptodate     func(id resource.ID) bool
	shouldCarryOverOutput func(id resource.ID) bool
	assertAssociation     func(inputID, outputID resource.ID) error
}

// newAbstractContext loads previous state, derives escalation, and opens
// current state. Specializations are responsible for setting the three
// hook fields before the context is used.
func newAbstractContext(ws workspace.Workspace, stateFilePath string, configuration map[string]resource.Value, logger *slog.Logger) (*abstractContext, error) {
	if ws == nil {
		return nil, fmt.Errorf("%w: workspace is required", ErrInvalidArgument)
	}
	for k, v := range configuration {
		if err := resource.Validate(v); err != nil {
			return nil, fmt.Errorf("%w: configuration key %q: %v", ErrInvalidArgument, k, err)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("build_id", uuid.NewString())

	previous, found := buildstate.Load(stateFilePath)

	changed, changedKeys := configurationChanged(found, previous.Configuration, configuration)

	var escalated bool
	switch ws.Mode() {
	case workspace.Escalated:
		escalated = true
	case workspace.Suppressed:
		escalated = false
	default: // Normal, Delta
		if changed {
			escalated = true
			ws = ws.Escalate()
		}
	}

	if found {
		logger.Debug("incrementalbuild: loaded previous state", "state_file", stateFilePath, "configuration_changed", changed)
		for _, diag := range changedKeys {
			logger.Debug("incrementalbuild: configuration " + diag)
		}
	} else {
		logger.Debug("incrementalbuild: no usable previous state", "state_file", stateFilePath)
	}
	if escalated {
		logger.Info("incrementalbuild: build escalated", "workspace_mode", ws.Mode().String())
	}

	return &abstractContext{
		ws:                  ws,
		stateFilePath:       stateFilePath,
		previous:            previous,
		current:             buildstate.New(configuration),
		logger:              logger,
		escalated:           escalated,
		deletedResources:    make(map[resource.ID]struct{}),
		processedResources:  make(map[resource.ID]struct{}),
		configChanges:       changedKeys,
	}, nil
}

// configurationChanged reports whether the configuration differs from the
// previous build: changed iff no previous state was found at all (a first
// build, which must always escalate regardless of how sparse its
// configuration is), or any key differs in value (addition, removal, or
// value change) between the two maps. A host that legitimately never
// supplies a configuration fingerprint still gets escalated=false on its
// second and later builds, since `found` is true and both maps are empty.
// The returned diagnostics are one "ADDED key" / "REMOVED key" /
// "CHANGED key" entry per differing key.
func configurationChanged(found bool, previous, next map[string]resource.Value) (bool, []string) {
	if !found {
		diags := make([]string, 0, len(next))
		for k := range next {
			diags = append(diags, "ADDED "+k)
		}
		return true, diags
	}
	changed := false
	var diags []string
	seen := make(map[string]struct{}, len(next))
	for k, v := range next {
		seen[k] = struct{}{}
		pv, ok := previous[k]
		switch {
		case !ok:
			changed = true
			diags = append(diags, "ADDED "+k)
		case !reflect.DeepEqual(pv, v):
			changed = true
			diags = append(diags, "CHANGED "+k)
		}
	}
	for k := range previous {
		if _, ok := seen[k]; !ok {
			changed = true
			diags = append(diags, "REMOVED "+k)
		}
	}
	return changed, diags
}

// isEscalated reports whether this build treats every resource as
// changed, regardless of the reason (workspace mode or configuration
// change).
func (c *abstractContext) isEscalated() bool {
	return c.escalated
}

// configurationChanges reports the "ADDED key" / "REMOVED key" /
// "CHANGED key" diagnostics computed when this build opened, if a
// configuration change was the reason for escalation. It is empty when
// the configuration was unchanged.
func (c *abstractContext) configurationChanges() []string {
	return c.configChanges
}

func (c *abstractContext) checkOpen() error {
	if c.closed || c.committed {
		return fmt.Errorf("%w: context is closed", ErrInvalidState)
	}
	return nil
}

func (c *abstractContext) newMetadata(id resource.ID) ResourceMetadata {
	return ResourceMetadata{ctx: c, id: id}
}

// registerHolder records holder for id. Inputs (replace=false) must not
// disagree with an already-registered holder for the same id; outputs
// (replace=true) may always redeclare; a disagreement returns
// ErrInconsistentResource.
func (c *abstractContext) registerHolder(id resource.ID, holder resource.Holder, replace bool) error {
	if existing, ok := c.current.Resources[id]; ok && !replace {
		if !existing.Equal(holder) {
			return fmt.Errorf("%w: %s already registered with different state this build", ErrInconsistentResource, id)
		}
	}
	c.current.Resources[id] = holder
	return nil
}

// registerInputs walks basedir through the workspace, registering every
// matched NEW/MODIFIED file and recording REMOVED ones.
func (c *abstractContext) registerInputs(basedir string, includes, excludes []string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	basedirID, err := resource.Canonicalize(basedir)
	if err != nil {
		return fmt.Errorf("incrementalbuild: registerInputs: %w", err)
	}
	fm, err := matcher.New(string(basedirID), includes, excludes)
	if err != nil {
		return err
	}

	var walkErr error
	visit := func(path string, lastModified time.Time, length int64, status workspace.ResourceStatus) error {
		if !fm.Matches(path) {
			return nil
		}
		id, err := resource.Canonicalize(path)
		if err != nil {
			return fmt.Errorf("incrementalbuild: registerInputs: %w", err)
		}
		switch status {
		case workspace.New, workspace.Modified:
			return c.registerHolder(id, resource.NewFileState(id, lastModified, length), false)
		case workspace.Removed:
			c.deletedResources[id] = struct{}{}
		}
		return nil
	}
	if walkErr = c.ws.Walk(string(basedirID), visit); walkErr != nil {
		return fmt.Errorf("incrementalbuild: registerInputs: %w", walkErr)
	}

	// DELTA mode only reports files that changed since the last walk; every
	// historically known input that is still a candidate must reappear in
	// current state so status queries (and carry-over) still see it.
	if c.ws.Mode() == workspace.DeltaMode {
		for id, holder := range c.previous.Resources {
			fs, ok := holder.(resource.FileState)
			if !ok {
				continue
			}
			if _, ok := c.current.Resources[id]; ok {
				continue
			}
			if _, deleted := c.deletedResources[id]; deleted {
				continue
			}
			if !fm.Matches(string(id)) {
				continue
			}
			if err := c.registerHolder(id, fs, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// registerInput is the single-file form: normalize, stat via the
// workspace, require presence, register.
func (c *abstractContext) registerInput(file string) (ResourceMetadata, error) {
	if err := c.checkOpen(); err != nil {
		return ResourceMetadata{}, err
	}
	id, err := resource.Canonicalize(file)
	if err != nil {
		return ResourceMetadata{}, fmt.Errorf("incrementalbuild: registerInput: %w", err)
	}
	if !c.ws.IsPresent(file) {
		return ResourceMetadata{}, fmt.Errorf("%w: input %s is not present in the workspace", ErrInvalidArgument, file)
	}
	lastModified, length, err := c.ws.Stat(file)
	if err != nil {
		return ResourceMetadata{}, fmt.Errorf("incrementalbuild: registerInput: %w", err)
	}
	if err := c.registerHolder(id, resource.NewFileState(id, lastModified, length), false); err != nil {
		return ResourceMetadata{}, err
	}
	return c.newMetadata(id), nil
}

// getResourceStatus classifies id: REMOVED if deleted this build, NEW if
// absent from previous state, MODIFIED if escalated, else whatever the
// holder's own Status reports against the live workspace.
func (c *abstractContext) getResourceStatus(id resource.ID) (workspace.ResourceStatus, error) {
	if _, ok := c.deletedResources[id]; ok {
		return workspace.Removed, nil
	}
	holder, ok := c.previous.Resources[id]
	if !ok {
		return workspace.New, nil
	}
	if c.escalated {
		return workspace.Modified, nil
	}
	return holder.Status(c.ws)
}

// markProcessed adds id to processedResources and clears whatever this
// build had already recorded for it, so the final record reflects only
// this build's work.
func (c *abstractContext) markProcessed(id resource.ID) {
	c.processedResources[id] = struct{}{}
	delete(c.current.ResourceAttributes, id)
	delete(c.current.ResourceMessages, id)
	delete(c.current.ResourceOutputs, id)
}

func (c *abstractContext) processResource(m ResourceMetadata) (Resource, error) {
	if err := c.checkOpen(); err != nil {
		return Resource{}, err
	}
	if m.ctx != c {
		return Resource{}, fmt.Errorf("%w: resource handle belongs to a different context", ErrInvalidArgument)
	}
	if _, ok := c.current.Resources[m.id]; !ok {
		return Resource{}, fmt.Errorf("%w: %s is not a current resource", ErrInvalidArgument, m.id)
	}
	c.markProcessed(m.id)
	return Resource{ResourceMetadata: m}, nil
}

// isProcessingRequired reports whether anything needs re-processing at
// all: escalation, any non-UNMODIFIED current resource, or any previous
// output that is no longer up to date.
func (c *abstractContext) isProcessingRequired() (bool, error) {
	if c.escalated {
		return true, nil
	}
	for id := range c.current.Resources {
		status, err := c.getResourceStatus(id)
		if err != nil {
			return false, err
		}
		if status != workspace.Unmodified {
			return true, nil
		}
	}
	for id := range c.previous.Outputs {
		if !c.isOutputUptodate(id) {
			return true, nil
		}
	}
	return false, nil
}

func (c *abstractContext) setResourceAttribute(id resource.ID, key string, value resource.Value) (resource.Value, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if err := resource.Validate(value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if _, ok := c.current.Resources[id]; !ok {
		return nil, fmt.Errorf("%w: %s is not a current resource", ErrInvalidArgument, id)
	}
	if c.current.ResourceAttributes[id] == nil {
		c.current.ResourceAttributes[id] = make(map[string]resource.Value)
	}
	var previous resource.Value
	if attrs, ok := c.previous.ResourceAttributes[id]; ok {
		previous = attrs[key]
	}
	c.current.ResourceAttributes[id][key] = value
	return previous, nil
}

func (c *abstractContext) addMessage(id resource.ID, line, column int, text string, severity message.Severity, cause error) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if _, ok := c.current.Resources[id]; !ok {
		return fmt.Errorf("%w: %s is not a current resource", ErrInvalidArgument, id)
	}
	var causeText string
	if cause != nil {
		causeText = cause.Error()
	}
	msg := message.Message{Line: line, Column: column, Text: text, Severity: severity, Cause: causeText}
	c.current.ResourceMessages[id] = append(c.current.ResourceMessages[id], msg)
	c.logMessage(id, msg)
	return nil
}

func (c *abstractContext) logMessage(id resource.ID, m message.Message) {
	level := slog.LevelInfo
	switch m.Severity {
	case message.Warning:
		level = slog.LevelWarn
	case message.Error:
		level = slog.LevelError
	}
	c.logger.Log(context.Background(), level, m.Text, "resource", string(id), "line", m.Line, "column", m.Column, "cause", m.Cause)
}

// processOutput normalizes path, registers it as a resource (outputs may
// always replace an existing holder), marks it processed, and adds it to
// outputs.
func (c *abstractContext) processOutput(path string) (Output, error) {
	if err := c.checkOpen(); err != nil {
		return Output{}, err
	}
	id, err := resource.Canonicalize(path)
	if err != nil {
		return Output{}, fmt.Errorf("incrementalbuild: processOutput: %w", err)
	}
	var lastModified time.Time
	var length int64
	if c.ws.IsPresent(path) {
		lastModified, length, err = c.ws.Stat(path)
		if err != nil {
			return Output{}, fmt.Errorf("incrementalbuild: processOutput: %w", err)
		}
	}
	if err := c.registerHolder(id, resource.NewFileState(id, lastModified, length), true); err != nil {
		return Output{}, err
	}
	c.current.Outputs[id] = struct{}{}
	c.markProcessed(id)
	return Output{Resource{ResourceMetadata: c.newMetadata(id)}}, nil
}

func (c *abstractContext) newOutputStream(id resource.ID) (io.WriteCloser, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.ws.NewOutputStream(string(id))
}

func (c *abstractContext) associate(inputID, outputID resource.ID) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := c.assertAssociation(inputID, outputID); err != nil {
		return err
	}
	if c.current.ResourceOutputs[inputID] == nil {
		c.current.ResourceOutputs[inputID] = make(map[resource.ID]struct{})
	}
	c.current.ResourceOutputs[inputID][outputID] = struct{}{}
	return nil
}

func (c *abstractContext) getAssociatedOutputs(state *buildstate.State, id resource.ID) ([]ResourceMetadata, error) {
	outs := state.ResourceOutputs[id]
	result := make([]ResourceMetadata, 0, len(outs))
	for outID := range outs {
		result = append(result, c.newMetadata(outID))
	}
	return result, nil
}

func (c *abstractContext) deleteOutput(id resource.ID) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	_, inOld := c.previous.Outputs[id]
	_, inCurrent := c.current.Outputs[id]
	if !inOld && !inCurrent {
		return fmt.Errorf("%w: %s is not a known output", ErrInvalidArgument, id)
	}
	return c.deleteOutputLocked(id)
}

// deleteOutputLocked performs the deletion without the checkOpen guard, so
// commit can reuse it after it has already marked the context closed.
func (c *abstractContext) deleteOutputLocked(id resource.ID) error {
	if err := c.ws.DeleteFile(string(id)); err != nil {
		return fmt.Errorf("incrementalbuild: delete output %s: %w", id, err)
	}
	c.deletedResources[id] = struct{}{}
	c.processedResources[id] = struct{}{}
	delete(c.current.Resources, id)
	delete(c.current.Outputs, id)
	delete(c.current.ResourceAttributes, id)
	delete(c.current.ResourceMessages, id)
	delete(c.current.ResourceOutputs, id)
	return nil
}

func (c *abstractContext) markSkipExecution() error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if len(c.processedResources) > 0 {
		return fmt.Errorf("%w: cannot skip execution after resources have been processed", ErrInvalidState)
	}
	// Start current state over from the previous build's resources and
	// outputs, so commit finds every previous resource present and carries
	// it over unchanged, with its messages, attributes and associations.
	skipped := buildstate.New(c.previous.Configuration)
	for id, holder := range c.previous.Resources {
		skipped.Resources[id] = holder
	}
	for id := range c.previous.Outputs {
		skipped.Outputs[id] = struct{}{}
	}
	c.current = skipped
	c.deletedResources = make(map[resource.ID]struct{})
	c.closed = true
	return nil
}

// commit runs the six-step reconciliation algorithm: snapshot which
// resources already carry new messages, carry over unprocessed previous
// state, persist, replay carried-over messages, notify the sink, and
// finally surface an unsuppressed error as a failure. It is idempotent:
// once committed, further calls are a no-op.
func (c *abstractContext) commit(messageSink sink.MessageSink) error {
	if c.committed {
		return nil
	}
	c.closed = true

	// Step 1: snapshot which ids already carry "new" messages from this
	// build, before carry-over adds any old ones.
	newMessageIDs := make(map[resource.ID]struct{}, len(c.current.ResourceMessages))
	for id := range c.current.ResourceMessages {
		newMessageIDs[id] = struct{}{}
	}

	// Step 2: carry-over loop.
	for id, oldHolder := range c.previous.Resources {
		if _, ok := c.processedResources[id]; ok {
			continue
		}
		if _, ok := c.deletedResources[id]; ok {
			continue
		}

		holder, present := c.current.Resources[id]
		if !present {
			if _, isOutput := c.previous.Outputs[id]; isOutput {
				if !c.isOutputUptodate(id) || !c.shouldCarryOverOutput(id) {
					if err := c.deleteOutputLocked(id); err != nil {
						return err
					}
					continue
				}
				holder = oldHolder
				c.current.Outputs[id] = struct{}{}
			} else {
				// An old input that was not re-registered this build: it
				// is simply gone from this build's view.
				continue
			}
		}
		c.current.Resources[id] = holder

		if msgs := c.previous.ResourceMessages[id]; len(msgs) > 0 {
			if _, isNew := newMessageIDs[id]; isNew {
				combined := make([]message.Message, 0, len(msgs)+len(c.current.ResourceMessages[id]))
				combined = append(combined, msgs...)
				combined = append(combined, c.current.ResourceMessages[id]...)
				c.current.ResourceMessages[id] = combined
			} else {
				c.current.ResourceMessages[id] = append([]message.Message{}, msgs...)
			}
		}
		if attrs := c.previous.ResourceAttributes[id]; len(attrs) > 0 {
			if c.current.ResourceAttributes[id] == nil {
				merged := make(map[string]resource.Value, len(attrs))
				for k, v := range attrs {
					merged[k] = v
				}
				c.current.ResourceAttributes[id] = merged
			}
		}
		if outs := c.previous.ResourceOutputs[id]; len(outs) > 0 {
			if c.current.ResourceOutputs[id] == nil {
				merged := make(map[resource.ID]struct{}, len(outs))
				for k := range outs {
					merged[k] = struct{}{}
				}
				c.current.ResourceOutputs[id] = merged
			}
		}
	}

	// Step 3: persist.
	if c.stateFilePath != "" {
		if err := buildstate.Save(c.ws, c.stateFilePath, c.current); err != nil {
			return fmt.Errorf("incrementalbuild: commit: %w", err)
		}
	}

	// Step 4: replay carried-over messages the caller has not just seen.
	for id, msgs := range c.current.ResourceMessages {
		if _, isNew := newMessageIDs[id]; isNew {
			continue
		}
		for _, m := range msgs {
			c.logMessage(id, m)
		}
	}

	// Step 5: notify the message sink.
	if messageSink != nil {
		for id := range c.processedResources {
			messageSink.Clear(id)
		}
		freshMessages := make(map[resource.ID][]message.Message, len(newMessageIDs))
		for id := range newMessageIDs {
			if msgs, ok := c.current.ResourceMessages[id]; ok {
				freshMessages[id] = msgs
			}
		}
		messageSink.Record(c.current.ResourceMessages, freshMessages)
	}

	c.committed = true

	// Step 6: no sink and at least one error means the build failed, even
	// though its state has already been persisted.
	if messageSink == nil {
		if summary := errorSummary(c.current.ResourceMessages); summary != "" {
			return &BuildFailureError{Summary: summary}
		}
	}
	return nil
}

func errorSummary(all map[resource.ID][]message.Message) string {
	var summary string
	for id, msgs := range all {
		for _, m := range msgs {
			if m.Severity != message.Error {
				continue
			}
			if summary != "" {
				summary += "\n"
			}
			summary += fmt.Sprintf("%s:[%d:%d] %s", id, m.Line, m.Column, m.Text)
		}
	}
	return summary
}
