package component

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu       sync.Mutex
	subjects []string
	entries  []LogEntry
	err      error
}

func (p *capturePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var entry LogEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return err
	}
	p.subjects = append(p.subjects, subject)
	p.entries = append(p.entries, entry)
	return p.err
}

func TestLogSubject(t *testing.T) {
	assert.Equal(t, "logs.plant.sine", LogSubject("plant", "sine"))
}

func TestLogMirror_PublishesAtOrAboveLevel(t *testing.T) {
	var local bytes.Buffer
	pub := &capturePublisher{}
	h := NewLogMirror(slog.NewTextHandler(&local, &slog.HandlerOptions{Level: slog.LevelDebug}),
		pub, "plant", "sine", slog.LevelInfo)
	logger := slog.New(h).With("component", "sine")

	logger.Debug("debug only local")
	logger.Info("cycle overrun", "period_ms", 10)
	logger.Error("bind failed", "error", errors.New("boom"))

	assert.Contains(t, local.String(), "debug only local")
	assert.Contains(t, local.String(), "cycle overrun")

	require.Len(t, pub.entries, 2)
	assert.Equal(t, []string{"logs.plant.sine", "logs.plant.sine"}, pub.subjects)

	info := pub.entries[0]
	assert.Equal(t, "INFO", info.Level)
	assert.Equal(t, "plant", info.Process)
	assert.Equal(t, "sine", info.Component)
	assert.Equal(t, "cycle overrun", info.Message)
	assert.Equal(t, "sine", info.Attrs["component"])
	assert.EqualValues(t, 10, info.Attrs["period_ms"])

	assert.Equal(t, "boom", pub.entries[1].Attrs["error"])
}

func TestLogMirror_GroupsPrefixKeys(t *testing.T) {
	pub := &capturePublisher{}
	h := NewLogMirror(slog.NewTextHandler(&bytes.Buffer{}, nil), pub, "p", "c", nil)
	slog.New(h).WithGroup("mailbox").Warn("queue full", "name", "c.Main.x")

	require.Len(t, pub.entries, 1)
	assert.Equal(t, "c.Main.x", pub.entries[0].Attrs["mailbox.name"])
}

func TestLogMirror_PublishErrorDoesNotFailLocal(t *testing.T) {
	var local bytes.Buffer
	pub := &capturePublisher{err: errors.New("nats down")}
	h := NewLogMirror(slog.NewTextHandler(&local, nil), pub, "p", "c", slog.LevelInfo)

	r := slog.NewRecord(testTime, slog.LevelInfo, "hello", 0)
	assert.NoError(t, h.Handle(context.Background(), r))
	assert.Contains(t, local.String(), "hello")
}

func TestLogMirror_EnabledFollowsEitherSide(t *testing.T) {
	local := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError})
	h := NewLogMirror(local, &capturePublisher{}, "p", "c", slog.LevelInfo)

	ctx := context.Background()
	assert.False(t, h.Enabled(ctx, slog.LevelDebug))
	assert.True(t, h.Enabled(ctx, slog.LevelInfo))
	assert.True(t, h.Enabled(ctx, slog.LevelError))
}
