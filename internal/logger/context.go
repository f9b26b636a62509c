package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds connection-scoped logging context. It is attached to the
// context.Context that flows through the connection handler so that every
// log line carries the session, client, and library it belongs to.
type LogContext struct {
	SessionID string    // Session id assigned at handshake
	ClientID  string    // Client certificate fingerprint
	ClientIP  string    // Client IP address (without port)
	Library   string    // Library id bound at handshake
	Command   string    // Command currently being processed
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext with the given client IP
func NewLogContext(clientIP string) *LogContext {
	return &LogContext{
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// Fields returns the non-empty context fields as alternating key/value args
// suitable for the structured logging functions.
func (lc *LogContext) Fields(args ...any) []any {
	if lc == nil {
		return args
	}
	out := make([]any, 0, 10+len(args))
	if lc.SessionID != "" {
		out = append(out, KeySessionID, lc.SessionID)
	}
	if lc.ClientID != "" {
		out = append(out, KeyClientID, lc.ClientID)
	}
	if lc.ClientIP != "" {
		out = append(out, KeyClientIP, lc.ClientIP)
	}
	if lc.Library != "" {
		out = append(out, KeyLibrary, lc.Library)
	}
	if lc.Command != "" {
		out = append(out, KeyCommand, lc.Command)
	}
	return append(out, args...)
}

// DebugCtx logs at debug level, prefixing the LogContext fields if present
func DebugCtx(ctx context.Context, msg string, args ...any) {
	if LevelDebug < Level(currentLevel.Load()) {
		return
	}
	getLogger().Debug(msg, FromContext(ctx).Fields(args...)...)
}

// InfoCtx logs at info level with context
func InfoCtx(ctx context.Context, msg string, args ...any) {
	if LevelInfo < Level(currentLevel.Load()) {
		return
	}
	getLogger().Info(msg, FromContext(ctx).Fields(args...)...)
}

// WarnCtx logs at warn level with context
func WarnCtx(ctx context.Context, msg string, args ...any) {
	if LevelWarn < Level(currentLevel.Load()) {
		return
	}
	getLogger().Warn(msg, FromContext(ctx).Fields(args...)...)
}

// ErrorCtx logs at error level with context
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	getLogger().Error(msg, FromContext(ctx).Fields(args...)...)
}
