package incrementalbuild

import (
	"fmt"
	"io"

	"github.com/GoCodeAlone/incrementalbuild/buildstate"
	"github.com/GoCodeAlone/incrementalbuild/message"
	"github.com/GoCodeAlone/incrementalbuild/resource"
	"github.com/GoCodeAlone/incrementalbuild/workspace"
)

// ResourceMetadata is a handle to a resource tracked by a build context. It
// carries a back-reference to the context that issued it; every operation
// below checks that reference before touching context state. The zero
// value is not usable.
type ResourceMetadata struct {
	ctx *abstractContext
	id  resource.ID
}

// ID returns the canonicalized resource id this handle refers to.
func (m ResourceMetadata) ID() resource.ID { return m.id }

func (m ResourceMetadata) checkOwned() error {
	if m.ctx == nil {
		return fmt.Errorf("%w: zero-value resource handle", ErrInvalidArgument)
	}
	return nil
}

// Status classifies this resource against the context's previous state.
func (m ResourceMetadata) Status() (workspace.ResourceStatus, error) {
	if err := m.checkOwned(); err != nil {
		return workspace.Removed, err
	}
	return m.ctx.getResourceStatus(m.id)
}

// Process marks this resource as processed this build, discarding any
// attributes, messages, and output associations it carried over from a
// prior build so that the new record reflects only this build's work.
func (m ResourceMetadata) Process() (Resource, error) {
	if err := m.checkOwned(); err != nil {
		return Resource{}, err
	}
	return m.ctx.processResource(m)
}

// SetAttribute sets key on this resource in the current state and returns
// whatever value key held in the previous state, if any.
func (m ResourceMetadata) SetAttribute(key string, value resource.Value) (resource.Value, error) {
	if err := m.checkOwned(); err != nil {
		return nil, err
	}
	return m.ctx.setResourceAttribute(m.id, key, value)
}

// AddMessage attaches a diagnostic to this resource and logs it immediately.
func (m ResourceMetadata) AddMessage(line, column int, text string, severity message.Severity, cause error) error {
	if err := m.checkOwned(); err != nil {
		return err
	}
	return m.ctx.addMessage(m.id, line, column, text, severity, cause)
}

// AssociatedOutputs returns the outputs recorded against this resource in
// the given state (current or previous); it may be empty.
func (m ResourceMetadata) AssociatedOutputs(state *buildstate.State) ([]ResourceMetadata, error) {
	if err := m.checkOwned(); err != nil {
		return nil, err
	}
	return m.ctx.getAssociatedOutputs(state, m.id)
}

// GetResourceAttribute performs a type-checked attribute lookup against an
// arbitrary state snapshot (current or previous). It is a free function
// rather than a handle method because Go methods cannot carry their own
// type parameters.
func GetResourceAttribute[T any](state *buildstate.State, id resource.ID, key string) (T, bool, error) {
	var zero T
	attrs, ok := state.ResourceAttributes[id]
	if !ok {
		return zero, false, nil
	}
	v, ok := attrs[key]
	if !ok {
		return zero, false, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, false, fmt.Errorf("%w: attribute %q on %s has type %T, want %T", ErrInvalidArgument, key, id, v, zero)
	}
	return t, true, nil
}

// Resource is a ResourceMetadata that has gone through Process; it may now
// be associated with the Output(s) it feeds.
type Resource struct {
	ResourceMetadata
}

// Associate records that this resource contributed to output. Both handles
// must belong to the same context.
func (r Resource) Associate(output Output) error {
	if err := r.checkOwned(); err != nil {
		return err
	}
	if err := output.checkOwned(); err != nil {
		return err
	}
	if r.ctx != output.ctx {
		return fmt.Errorf("%w: resource and output belong to different contexts", ErrInvalidArgument)
	}
	return r.ctx.associate(r.id, output.id)
}

// Output is a resource declared as produced by the build.
type Output struct {
	Resource
}

// NewOutputStream opens this output for writing. The caller must close it.
func (o Output) NewOutputStream() (io.WriteCloser, error) {
	if err := o.checkOwned(); err != nil {
		return nil, err
	}
	return o.ctx.newOutputStream(o.id)
}

// Delete removes this output from disk and from current state.
func (o Output) Delete() error {
	if err := o.checkOwned(); err != nil {
		return err
	}
	return o.ctx.deleteOutput(o.id)
}
