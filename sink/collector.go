package sink

import (
	"sync"

	"github.com/GoCodeAlone/incrementalbuild/message"
	"github.com/GoCodeAlone/incrementalbuild/resource"
)

// Collector is an in-memory MessageSink, useful for tests and for hosts
// that want to inspect a build's diagnostics without standing up a real
// message bus.
type Collector struct {
	mu      sync.Mutex
	cleared []resource.ID
	all     map[resource.ID][]message.Message
	fresh   map[resource.ID][]message.Message
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{
		all:   make(map[resource.ID][]message.Message),
		fresh: make(map[resource.ID][]message.Message),
	}
}

func (c *Collector) Clear(id resource.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared = append(c.cleared, id)
}

func (c *Collector) Record(all, newMessages map[resource.ID][]message.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.all = all
	c.fresh = newMessages
}

// Cleared returns the ids Clear was called with, in call order.
func (c *Collector) Cleared() []resource.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]resource.ID(nil), c.cleared...)
}

// All returns the full message set recorded by the most recent commit.
func (c *Collector) All() map[resource.ID][]message.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.all
}

// New returns the subset of All that was new (not carried over) at the most
// recent commit.
func (c *Collector) New() map[resource.ID][]message.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fresh
}
