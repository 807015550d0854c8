package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(t *testing.T, level slog.Level) (*Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	l := NewWithWriter(Config{Format: "json", Component: "test"}, buf, level)
	return l, buf
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &m))
	return m
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestWithContext(t *testing.T) {
	l, buf := newBufferLogger(t, slog.LevelInfo)

	ctx := ContextWithNodeID(context.Background(), "node-a")
	ctx = ContextWithItem(ctx, "q-1", "item-1")
	l.WithContext(ctx).Info("hello")

	m := lastLine(t, buf)
	assert.Equal(t, "test", m["component"])
	assert.Equal(t, "node-a", m["node_id"])
	assert.Equal(t, "q-1", m["queue_id"])
	assert.Equal(t, "item-1", m["item_id"])
}

func TestWithContext_Empty(t *testing.T) {
	l, _ := newBufferLogger(t, slog.LevelInfo)
	assert.Same(t, l, l.WithContext(context.Background()))
}

func TestWithError(t *testing.T) {
	l, buf := newBufferLogger(t, slog.LevelInfo)
	assert.Same(t, l, l.WithError(nil))

	l.WithError(errors.New("boom")).Warn("failed")
	m := lastLine(t, buf)
	assert.Equal(t, "boom", m["error"])
}

func TestStoreOpLog(t *testing.T) {
	l, buf := newBufferLogger(t, slog.LevelInfo)

	// 成功的操作为 debug 级别，不输出
	l.StoreOpLog("claim", "sync_queue_item", time.Millisecond, nil)
	assert.Empty(t, buf.String())

	l.StoreOpLog("claim", "sync_queue_item", time.Millisecond, errors.New("connection refused"))
	m := lastLine(t, buf)
	assert.Equal(t, "ERROR", m["level"])
	assert.Equal(t, "claim", m["operation"])
	assert.Equal(t, "connection refused", m["error"])
}

func TestClaimLog(t *testing.T) {
	l, buf := newBufferLogger(t, slog.LevelInfo)
	l.ClaimLog("claimed", "q-1", "item-1", Seq(7))

	m := lastLine(t, buf)
	assert.Equal(t, "claimed", m["action"])
	assert.Equal(t, "7", m["seq"])
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Error("not visible")
	assert.Equal(t, "discard", l.Component())
}
