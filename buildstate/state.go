// Package buildstate defines the persisted State record and its wire
// encoding. Current and previous build state share this shape; a build
// context owns one of each and never mutates the previous one.
package buildstate

import (
	"github.com/GoCodeAlone/incrementalbuild/message"
	"github.com/GoCodeAlone/incrementalbuild/resource"
)

// State is the persisted snapshot of a build's resources, outputs, and
// diagnostics.
type State struct {
	Configuration      map[string]resource.Value
	Resources          map[resource.ID]resource.Holder
	Outputs            map[resource.ID]struct{}
	ResourceAttributes map[resource.ID]map[string]resource.Value
	ResourceMessages   map[resource.ID][]message.Message
	ResourceOutputs    map[resource.ID]map[resource.ID]struct{}
}

// New returns a state seeded only with the given configuration
// fingerprint: the current state starts empty except for the
// configuration.
func New(configuration map[string]resource.Value) *State {
	if configuration == nil {
		configuration = map[string]resource.Value{}
	}
	return &State{
		Configuration:      configuration,
		Resources:          make(map[resource.ID]resource.Holder),
		Outputs:            make(map[resource.ID]struct{}),
		ResourceAttributes: make(map[resource.ID]map[string]resource.Value),
		ResourceMessages:   make(map[resource.ID][]message.Message),
		ResourceOutputs:    make(map[resource.ID]map[resource.ID]struct{}),
	}
}

// Empty returns the "no previous state" value: an empty configuration and
// no resources. Loading a state file that does not exist or cannot be
// parsed falls back to this.
func Empty() *State {
	return New(nil)
}
