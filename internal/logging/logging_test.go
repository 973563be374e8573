package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"ERROR", LevelError, false},
		{"invalid", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			if tt.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestLevelStringRoundTrip(t *testing.T) {
	for _, lvl := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		parsed, err := ParseLevel(LevelString(lvl))
		require.NoError(t, err)
		assert.Equal(t, lvl, parsed)
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, LevelInfo, cfg.Level)
	assert.Equal(t, FormatText, cfg.Format)
	assert.Equal(t, "stderr", cfg.Output)
	assert.Equal(t, "scrivener", cfg.Component)
	assert.Contains(t, cfg.FilePath, "scrivener")
}

func newBufferLogger(t *testing.T, format Format) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = format
	cfg.Level = LevelDebug
	cfg.Writer = &buf
	l, err := New(cfg)
	require.NoError(t, err)
	return l, &buf
}

func TestJSONOutputCarriesComponentAndRequestID(t *testing.T) {
	l, buf := newBufferLogger(t, FormatJSON)

	l.WithRequestID("req-1").Info("delivered", "app", "TextEdit")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "delivered", rec["msg"])
	assert.Equal(t, "req-1", rec["request_id"])
	assert.Equal(t, "TextEdit", rec["app"])
	assert.Equal(t, "scrivener", rec["component"])
}

func TestRedaction(t *testing.T) {
	l, buf := newBufferLogger(t, FormatJSON)

	l.Info("attempt",
		"payload", "secret words",
		"shaped_text", "more words",
		"clipboard", "copied",
		"api_token", "abc",
		"backend", "paste",
	)

	out := buf.String()
	assert.NotContains(t, out, "secret words")
	assert.NotContains(t, out, "more words")
	assert.NotContains(t, out, "copied")
	assert.NotContains(t, out, "abc")
	assert.Contains(t, out, `"backend":"paste"`)
	assert.Equal(t, 4, strings.Count(out, "[REDACTED]"))
}

func TestShouldRedact(t *testing.T) {
	assert.True(t, shouldRedact("Payload"))
	assert.True(t, shouldRedact("text"))
	assert.True(t, shouldRedact("CLIPBOARD_CONTENT"))
	assert.False(t, shouldRedact("app"))
	assert.False(t, shouldRedact("strategy"))
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Level = LevelWarn
	cfg.Writer = &buf
	l, err := New(cfg)
	require.NoError(t, err)

	l.Info("hidden")
	l.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestWithContext(t *testing.T) {
	l, buf := newBufferLogger(t, FormatText)

	ctx := ContextWithRequestID(context.Background(), "abc-123")
	assert.Equal(t, "abc-123", RequestIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(context.Background()))

	l.WithContext(ctx).Info("hello")
	assert.Contains(t, buf.String(), "request_id=abc-123")
}

func TestWithComponent(t *testing.T) {
	l, buf := newBufferLogger(t, FormatText)
	l.WithComponent("engine").Debug("state")
	assert.Contains(t, buf.String(), "component=engine")
}

func TestFileOutput(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Output = "file"
	cfg.FilePath = filepath.Join(dir, "logs", "scrivener.log")

	l, err := New(cfg)
	require.NoError(t, err)
	l.Info("to file")
	require.NoError(t, l.Sync())
	require.NoError(t, l.Close())

	data, err := os.ReadFile(cfg.FilePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestRotatorRollsOverAndCompresses(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.FilePath = filepath.Join(dir, "scrivener.log")
	cfg.MaxSize = 1
	cfg.MaxBackups = 3
	cfg.Compress = true

	r, err := NewFileRotator(cfg)
	require.NoError(t, err)

	tick := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	chunk := bytes.Repeat([]byte("x"), 600*1024)
	for i := 0; i < 3; i++ {
		_, err := r.Write(chunk)
		require.NoError(t, err)
	}
	require.NoError(t, r.Close())

	files, err := r.Files()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(files), 2)

	var gz int
	for _, f := range files[1:] {
		if strings.HasSuffix(f, ".gz") {
			gz++
		}
	}
	assert.Positive(t, gz)
}

func TestGuard(t *testing.T) {
	l, buf := newBufferLogger(t, FormatText)

	err := Guard(l, "script", func() error { panic("boom") })
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "script", pe.Op)
	assert.Contains(t, pe.Stack, "Guard")
	assert.Contains(t, buf.String(), "recovered panic")

	sentinel := errors.New("plain")
	assert.ErrorIs(t, Guard(nil, "ok", func() error { return sentinel }), sentinel)
	assert.NoError(t, Guard(nil, "ok", func() error { return nil }))
}
