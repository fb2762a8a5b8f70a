package component

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Publisher is the slice of *nats.Conn the log mirror needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// LogEntry is the JSON document the log mirror publishes for each record.
type LogEntry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Process   string         `json:"process"`
	Component string         `json:"component"`
	Message   string         `json:"message"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// LogSubject returns the subject log entries of a component are published on.
func LogSubject(process, component string) string {
	return fmt.Sprintf("logs.%s.%s", process, component)
}

// LogMirror is a slog.Handler that passes records to the wrapped handler and
// publishes those at or above its level to NATS.
type LogMirror struct {
	next      slog.Handler
	pub       Publisher
	level     slog.Leveler
	process   string
	component string
	prefix    string
	attrs     map[string]any
}

// NewLogMirror wraps next. Records below level are only handled locally.
func NewLogMirror(next slog.Handler, pub Publisher, process, component string, level slog.Leveler) *LogMirror {
	if level == nil {
		level = slog.LevelInfo
	}
	return &LogMirror{
		next:      next,
		pub:       pub,
		level:     level,
		process:   process,
		component: component,
		attrs:     map[string]any{},
	}
}

// Enabled implements slog.Handler.
func (h *LogMirror) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level) || level >= h.level.Level()
}

// Handle implements slog.Handler. Publish failures never fail the local write.
func (h *LogMirror) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.next.Enabled(ctx, r.Level) {
		err = h.next.Handle(ctx, r)
	}
	if r.Level < h.level.Level() || h.pub == nil || ctx.Err() != nil {
		return err
	}

	entry := LogEntry{
		Timestamp: r.Time.UTC().Format(time.RFC3339Nano),
		Level:     r.Level.String(),
		Process:   h.process,
		Component: h.component,
		Message:   r.Message,
		Attrs:     make(map[string]any, len(h.attrs)+r.NumAttrs()),
	}
	for k, v := range h.attrs {
		entry.Attrs[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		entry.Attrs[h.prefix+a.Key] = a.Value.Resolve().Any()
		return true
	})
	for k, v := range entry.Attrs {
		if e, ok := v.(error); ok {
			entry.Attrs[k] = e.Error()
		}
	}

	data, mErr := json.Marshal(entry)
	if mErr != nil {
		return err
	}
	_ = h.pub.Publish(LogSubject(h.process, h.component), data)
	return err
}

// WithAttrs implements slog.Handler.
func (h *LogMirror) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := h.clone()
	clone.next = h.next.WithAttrs(attrs)
	for _, a := range attrs {
		clone.attrs[h.prefix+a.Key] = a.Value.Resolve().Any()
	}
	return clone
}

// WithGroup implements slog.Handler.
func (h *LogMirror) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := h.clone()
	clone.next = h.next.WithGroup(name)
	clone.prefix = h.prefix + name + "."
	return clone
}

func (h *LogMirror) clone() *LogMirror {
	c := *h
	c.attrs = make(map[string]any, len(h.attrs))
	for k, v := range h.attrs {
		c.attrs[k] = v
	}
	return &c
}
