// Package sink defines the MessageSink collaborator the build engine
// notifies during commit, plus two implementations: a log/slog-backed
// default and an in-memory collector for hosts/tests that want to inspect
// a build's diagnostics programmatically.
package sink

import (
	"github.com/GoCodeAlone/incrementalbuild/message"
	"github.com/GoCodeAlone/incrementalbuild/resource"
)

// MessageSink is notified at commit time: Clear is
// called once per resource that was processed this build (so a host IDE
// can drop stale markers before new ones land), followed by a single
// Record call carrying every message known after carry-over plus the
// subset that is new this build.
type MessageSink interface {
	Clear(id resource.ID)
	Record(all, newMessages map[resource.ID][]message.Message)
}
