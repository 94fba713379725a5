package sink

import (
	"log/slog"

	"github.com/GoCodeAlone/incrementalbuild/message"
	"github.com/GoCodeAlone/incrementalbuild/resource"
)

// LogSink is the default MessageSink: it does not track cleared resources
// (there is nothing downstream to clear markers from) and logs every
// message at commit time, at its own severity.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a MessageSink that logs through l (or slog.Default if
// l is nil).
func NewLogSink(l *slog.Logger) *LogSink {
	if l == nil {
		l = slog.Default()
	}
	return &LogSink{logger: l}
}

func (s *LogSink) Clear(resource.ID) {}

func (s *LogSink) Record(all, _ map[resource.ID][]message.Message) {
	for id, messages := range all {
		for _, m := range messages {
			attrs := []any{"resource", string(id), "line", m.Line, "column", m.Column}
			if m.Cause != "" {
				attrs = append(attrs, "cause", m.Cause)
			}
			switch m.Severity {
			case message.Error:
				s.logger.Error(m.Text, attrs...)
			case message.Warning:
				s.logger.Warn(m.Text, attrs...)
			default:
				s.logger.Info(m.Text, attrs...)
			}
		}
	}
}
