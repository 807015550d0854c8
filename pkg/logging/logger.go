// Package logging 结构化日志
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// ContextKey 上下文键类型
type ContextKey string

const (
	TraceIDKey ContextKey = "trace_id"
	NodeIDKey  ContextKey = "node_id"
	QueueIDKey ContextKey = "queue_id"
	ItemIDKey  ContextKey = "item_id"
)

// Logger 结构化日志器
type Logger struct {
	*slog.Logger
	component string
}

// Config 日志配置
type Config struct {
	Level     string `json:"level" yaml:"level"`
	Format    string `json:"format" yaml:"format"` // json or text
	Output    string `json:"output" yaml:"output"` // stdout, stderr, or file path
	Component string `json:"component" yaml:"-"`
}

// New 创建新的日志器
func New(cfg Config) *Logger {
	level := ParseLevel(cfg.Level)

	var output io.Writer
	switch cfg.Output {
	case "stdout", "":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			output = os.Stdout
		} else {
			output = f
		}
	}

	return NewWithWriter(cfg, output, level)
}

// NewWithWriter 使用指定输出创建日志器（测试用）
func NewWithWriter(cfg Config, w io.Writer, level slog.Level) *Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger:    slog.New(handler).With(slog.String("component", cfg.Component)),
		component: cfg.Component,
	}
}

// ParseLevel 解析日志级别，未知值返回 info
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default 创建默认日志器
func Default(component string) *Logger {
	return New(Config{
		Level:     os.Getenv("LOG_LEVEL"),
		Format:    os.Getenv("LOG_FORMAT"),
		Output:    "stdout",
		Component: component,
	})
}

// Discard 丢弃所有输出的日志器
func Discard() *Logger {
	return NewWithWriter(Config{Component: "discard"}, io.Discard, slog.LevelError+4)
}

// Component 返回组件名
func (l *Logger) Component() string {
	return l.component
}

// Named 派生子组件日志器
func (l *Logger) Named(component string) *Logger {
	return &Logger{
		Logger:    l.Logger.With(slog.String("sub", component)),
		component: l.component + "." + component,
	}
}

// WithContext 从上下文提取追踪信息
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var attrs []any

	if traceID, ok := ctx.Value(TraceIDKey).(string); ok && traceID != "" {
		attrs = append(attrs, slog.String("trace_id", traceID))
	}
	if nodeID, ok := ctx.Value(NodeIDKey).(string); ok && nodeID != "" {
		attrs = append(attrs, slog.String("node_id", nodeID))
	}
	if queueID, ok := ctx.Value(QueueIDKey).(string); ok && queueID != "" {
		attrs = append(attrs, slog.String("queue_id", queueID))
	}
	if itemID, ok := ctx.Value(ItemIDKey).(string); ok && itemID != "" {
		attrs = append(attrs, slog.String("item_id", itemID))
	}
	if len(attrs) == 0 {
		return l
	}

	return &Logger{
		Logger:    l.Logger.With(attrs...),
		component: l.component,
	}
}

// WithNodeID 添加 Node ID
func (l *Logger) WithNodeID(nodeID string) *Logger {
	return &Logger{
		Logger:    l.Logger.With(slog.String("node_id", nodeID)),
		component: l.component,
	}
}

// WithQueueID 添加 Queue ID
func (l *Logger) WithQueueID(queueID string) *Logger {
	return &Logger{
		Logger:    l.Logger.With(slog.String("queue_id", queueID)),
		component: l.component,
	}
}

// WithItemID 添加 Item ID
func (l *Logger) WithItemID(itemID string) *Logger {
	return &Logger{
		Logger:    l.Logger.With(slog.String("item_id", itemID)),
		component: l.component,
	}
}

// WithError 添加错误信息
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{
		Logger:    l.Logger.With(slog.String("error", err.Error())),
		component: l.component,
	}
}

// WithDuration 添加持续时间
func (l *Logger) WithDuration(d time.Duration) *Logger {
	return &Logger{
		Logger:    l.Logger.With(slog.Float64("duration_ms", float64(d.Milliseconds()))),
		component: l.component,
	}
}

// ContextWithNodeID 将 Node ID 写入上下文
func ContextWithNodeID(ctx context.Context, nodeID string) context.Context {
	return context.WithValue(ctx, NodeIDKey, nodeID)
}

// ContextWithItem 将 Queue ID 与 Item ID 写入上下文
func ContextWithItem(ctx context.Context, queueID, itemID string) context.Context {
	ctx = context.WithValue(ctx, QueueIDKey, queueID)
	return context.WithValue(ctx, ItemIDKey, itemID)
}

// HTTPRequestLog HTTP 请求日志
func (l *Logger) HTTPRequestLog(method, path string, status int, duration time.Duration, clientIP string) {
	l.Logger.Info("HTTP request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
		slog.String("client_ip", clientIP),
	)
}

// StoreOpLog 共享存储操作日志
func (l *Logger) StoreOpLog(operation, table string, duration time.Duration, err error) {
	attrs := []any{
		slog.String("operation", operation),
		slog.String("table", table),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		l.Logger.Error("Store operation failed", attrs...)
	} else {
		l.Logger.Debug("Store operation", attrs...)
	}
}

// ClaimLog 队列项认领/完成日志
func (l *Logger) ClaimLog(action, queueID, itemID string, extra ...any) {
	attrs := []any{
		slog.String("action", action),
		slog.String("queue_id", queueID),
		slog.String("item_id", itemID),
	}
	attrs = append(attrs, extra...)
	l.Logger.Info("Queue item event", attrs...)
}

// HeartbeatLog 心跳日志
func (l *Logger) HeartbeatLog(nodeID, status string, latency time.Duration, err error) {
	attrs := []any{
		slog.String("node_id", nodeID),
		slog.String("status", status),
		slog.Float64("latency_ms", float64(latency.Milliseconds())),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		l.Logger.Warn("Heartbeat failed", attrs...)
	} else {
		l.Logger.Debug("Heartbeat sent", attrs...)
	}
}

// Seq 将序号格式化为日志字段值
func Seq(seq int64) slog.Attr {
	return slog.String("seq", strconv.FormatInt(seq, 10))
}
