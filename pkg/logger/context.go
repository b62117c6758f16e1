package logger

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type contextKey struct{}

// Field names shared by the HTTP and polling log lines.
const (
	FieldRequestID = "request_id"
	FieldOperation = "operation"
	FieldUserID    = "user_id"
	FieldMatchID   = "match_id"

	FieldPollName      = "poll_name"
	FieldSessionID     = "session_id"
	FieldAttempts      = "attempts"
	FieldFetchDuration = "fetch_duration_ms"
	FieldVisible       = "visible"
	FieldCoalesced     = "coalesced"
	FieldMessageCount  = "message_count"
)

// LogContext accumulates fields over one request so a single canonical line
// can be written at the end. A field added twice keeps its last value.
type LogContext struct {
	mu     sync.Mutex
	fields []zap.Field
	index  map[string]int
}

func NewLogContext() *LogContext {
	return &LogContext{
		fields: make([]zap.Field, 0, 8),
		index:  make(map[string]int),
	}
}

func (lc *LogContext) AddField(field zap.Field) {
	lc.AddFields(field)
}

func (lc *LogContext) AddFields(fields ...zap.Field) {
	if lc == nil {
		return
	}
	lc.mu.Lock()
	defer lc.mu.Unlock()
	for _, f := range fields {
		if i, ok := lc.index[f.Key]; ok {
			lc.fields[i] = f
			continue
		}
		lc.index[f.Key] = len(lc.fields)
		lc.fields = append(lc.fields, f)
	}
}

// Fields returns a copy of the accumulated fields in insertion order.
func (lc *LogContext) Fields() []zap.Field {
	if lc == nil {
		return nil
	}
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return append([]zap.Field(nil), lc.fields...)
}

func WithLogContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, contextKey{}, lc)
}

func GetLogContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(contextKey{}).(*LogContext)
	return lc
}

// AddToContext adds fields to the request's canonical line; without a
// LogContext in ctx it does nothing.
func AddToContext(ctx context.Context, fields ...zap.Field) {
	GetLogContext(ctx).AddFields(fields...)
}
