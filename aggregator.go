package incrementalbuild

import (
	"fmt"
	"log/slog"

	"github.com/GoCodeAlone/incrementalbuild/matcher"
	"github.com/GoCodeAlone/incrementalbuild/resource"
	"github.com/GoCodeAlone/incrementalbuild/sink"
	"github.com/GoCodeAlone/incrementalbuild/workspace"
)

// AggregateInput is an input bound to the base directory it was registered
// under, as seen from inside an AggregateCreator.
type AggregateInput struct {
	Resource
	Basedir string
}

// AggregateOutput is the output handle RegisterOutput returns: an output
// declared but not yet known to require regeneration.
type AggregateOutput struct {
	Output
}

// InputProcessor is run once per matched input by AssociateInputs, after
// any required re-processing, so callers can attach attributes regardless
// of whether this particular input actually changed.
type InputProcessor func(Resource) error

// AggregateCreator writes an aggregate output from the inputs that feed
// it. It is invoked only when CreateIfNecessary determines regeneration is
// required.
type AggregateCreator interface {
	Create(output Output, inputs []AggregateInput) error
}

// AggregateCreatorFunc adapts a plain function to an AggregateCreator.
type AggregateCreatorFunc func(output Output, inputs []AggregateInput) error

func (f AggregateCreatorFunc) Create(output Output, inputs []AggregateInput) error {
	return f(output, inputs)
}

// AggregatorContext is the N-inputs-to-1-output build context
// specialization. Unlike BasicContext, an output not reasserted via
// AssociateInputs/CreateIfNecessary in a given build is deleted at commit:
// an aggregate that nothing asked for this build has no reason to remain.
type AggregatorContext struct {
	*abstractContext

	inputBasedir map[resource.ID]string
	outputInputs map[resource.ID]map[resource.ID]struct{}
}

// NewAggregatorContext constructs an AggregatorContext.
func NewAggregatorContext(ws workspace.Workspace, stateFilePath string, configuration map[string]resource.Value, logger *slog.Logger) (*AggregatorContext, error) {
	base, err := newAbstractContext(ws, stateFilePath, configuration, logger)
	if err != nil {
		return nil, err
	}
	c := &AggregatorContext{
		abstractContext: base,
		inputBasedir:    make(map[resource.ID]string),
		outputInputs:    make(map[resource.ID]map[resource.ID]struct{}),
	}
	c.shouldCarryOverOutput = func(resource.ID) bool { return false }
	c.isOutputUptodate = c.outputUptodate
	c.assertAssociation = func(resource.ID, resource.ID) error { return nil }
	return c, nil
}

// Escalated reports whether this build is treating every resource as
// changed, and if that is because the configuration changed, the
// "ADDED key" / "REMOVED key" / "CHANGED key" diagnostics that triggered
// it.
func (c *AggregatorContext) Escalated() (bool, []string) {
	return c.isEscalated(), c.configurationChanges()
}

func (c *AggregatorContext) outputUptodate(id resource.ID) bool {
	status, err := c.getResourceStatus(id)
	if err != nil || status != workspace.Unmodified {
		return false
	}
	for inputID := range c.outputInputs[id] {
		status, err := c.getResourceStatus(inputID)
		if err != nil || status != workspace.Unmodified {
			return false
		}
	}
	return true
}

func (c *AggregatorContext) checkOwnOutput(output AggregateOutput) error {
	if err := output.checkOwned(); err != nil {
		return err
	}
	if output.ctx != c.abstractContext {
		return fmt.Errorf("%w: output handle belongs to a different context", ErrInvalidArgument)
	}
	return nil
}

// RegisterOutput normalizes file, adds it to outputs, and returns a handle.
// It does not declare inputs yet — that is AssociateInputs' job. The
// output gains no resources entry of its own until CreateIfNecessary runs
// for it this build, one way or another (see there).
func (c *AggregatorContext) RegisterOutput(file string) (AggregateOutput, error) {
	if err := c.checkOpen(); err != nil {
		return AggregateOutput{}, err
	}
	id, err := resource.Canonicalize(file)
	if err != nil {
		return AggregateOutput{}, fmt.Errorf("incrementalbuild: registerOutput: %w", err)
	}
	c.current.Outputs[id] = struct{}{}
	return AggregateOutput{Output{Resource{ResourceMetadata: c.newMetadata(id)}}}, nil
}

// AssociateInputs walks basedir for files matching includes/excludes,
// processes every one whose status is not UNMODIFIED, runs processors
// against every matched input in order, and records each as feeding
// output.
func (c *AggregatorContext) AssociateInputs(output AggregateOutput, basedir string, includes, excludes []string, processors ...InputProcessor) error {
	if err := c.checkOwnOutput(output); err != nil {
		return err
	}
	basedirID, err := resource.Canonicalize(basedir)
	if err != nil {
		return fmt.Errorf("incrementalbuild: associateInputs: %w", err)
	}
	if err := c.registerInputs(basedir, includes, excludes); err != nil {
		return err
	}

	fm, err := matcher.New(string(basedirID), includes, excludes)
	if err != nil {
		return err
	}

	for id := range c.current.Resources {
		if !fm.Matches(string(id)) {
			continue
		}
		status, err := c.getResourceStatus(id)
		if err != nil {
			return err
		}
		if status != workspace.Unmodified {
			if _, err := c.processResource(c.newMetadata(id)); err != nil {
				return err
			}
		}
		for _, proc := range processors {
			if err := proc(Resource{ResourceMetadata: c.newMetadata(id)}); err != nil {
				return err
			}
		}
		c.inputBasedir[id] = string(basedirID)
		if c.outputInputs[output.id] == nil {
			c.outputInputs[output.id] = make(map[resource.ID]struct{})
		}
		c.outputInputs[output.id][id] = struct{}{}
	}
	return nil
}

// CreateIfNecessary regenerates output via creator if either the output
// itself or any of its associated inputs is not UNMODIFIED, and reports
// whether it did so.
func (c *AggregatorContext) CreateIfNecessary(output AggregateOutput, creator AggregateCreator) (bool, error) {
	if err := c.checkOwnOutput(output); err != nil {
		return false, err
	}

	outputStatus, err := c.getResourceStatus(output.id)
	if err != nil {
		return false, err
	}
	required := outputStatus != workspace.Unmodified
	if !required {
		for inputID := range c.outputInputs[output.id] {
			status, err := c.getResourceStatus(inputID)
			if err != nil {
				return false, err
			}
			if status != workspace.Unmodified {
				required = true
				break
			}
		}
	}
	if !required {
		// Put the output back into current state exactly as the previous
		// build left it, so the generic commit carry-over (abstractContext
		// shouldCarryOverOutput is always false for an aggregator) finds it
		// already present and never reaches its delete-if-absent branch:
		// the output is marked up-to-date and carry-over preserves it.
		if oldHolder, ok := c.previous.Resources[output.id]; ok {
			c.current.Resources[output.id] = oldHolder
		}
		c.current.Outputs[output.id] = struct{}{}
		return false, nil
	}

	processedOutput, err := c.processOutput(string(output.id))
	if err != nil {
		return false, err
	}

	inputIDs := c.outputInputs[output.id]
	inputs := make([]AggregateInput, 0, len(inputIDs))
	for inputID := range inputIDs {
		if _, already := c.processedResources[inputID]; !already {
			if _, err := c.processResource(c.newMetadata(inputID)); err != nil {
				return false, err
			}
		}
		if err := c.associate(inputID, processedOutput.id); err != nil {
			return false, err
		}
		inputs = append(inputs, AggregateInput{
			Resource: Resource{ResourceMetadata: c.newMetadata(inputID)},
			Basedir:  c.inputBasedir[inputID],
		})
	}

	if err := creator.Create(processedOutput, inputs); err != nil {
		return false, err
	}

	// processOutput stated the output before creator.Create wrote it; a
	// first-build output does not exist yet at that point, so the holder
	// it captured is a zero-length placeholder. Re-stat now so the next
	// build's up-to-date check compares against the real file.
	if c.ws.IsPresent(string(processedOutput.id)) {
		if lastModified, length, statErr := c.ws.Stat(string(processedOutput.id)); statErr == nil {
			c.current.Resources[processedOutput.id] = resource.NewFileState(processedOutput.id, lastModified, length)
		}
	}
	return true, nil
}

// Commit reconciles current and previous state and persists the result.
func (c *AggregatorContext) Commit(messageSink sink.MessageSink) error {
	return c.commit(messageSink)
}
