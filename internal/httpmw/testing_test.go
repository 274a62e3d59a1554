package httpmw

import (
	"context"
	"sync"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/siteedge/internal/log"
)

type logEntry struct {
	level string
	msg   string
	err   error
	kv    []any
}

// spyLogger records every call; With accumulates fields the way a real logger would.
type spyLogger struct {
	mu      *sync.Mutex
	entries *[]logEntry
	fields  []any
}

func newSpyLogger() *spyLogger {
	return &spyLogger{mu: &sync.Mutex{}, entries: &[]logEntry{}}
}

func (s *spyLogger) With(kv ...any) log.Logger {
	f := append(append([]any{}, s.fields...), kv...)
	return &spyLogger{mu: s.mu, entries: s.entries, fields: f}
}

func (s *spyLogger) add(level string, err error, msg string, kv []any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := append(append([]any{}, s.fields...), kv...)
	*s.entries = append(*s.entries, logEntry{level: level, msg: msg, err: err, kv: all})
}

func (s *spyLogger) Debug(_ context.Context, msg string, kv ...any) { s.add("debug", nil, msg, kv) }
func (s *spyLogger) Info(_ context.Context, msg string, kv ...any)  { s.add("info", nil, msg, kv) }
func (s *spyLogger) Warn(_ context.Context, msg string, kv ...any)  { s.add("warn", nil, msg, kv) }
func (s *spyLogger) Error(_ context.Context, err error, msg string, kv ...any) {
	s.add("error", err, msg, kv)
}
func (s *spyLogger) Sync() error { return nil }

func (s *spyLogger) all() []logEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]logEntry(nil), (*s.entries)...)
}

func (e logEntry) field(key string) (any, bool) {
	for i := 0; i+1 < len(e.kv); i += 2 {
		if k, _ := e.kv[i].(string); k == key {
			return e.kv[i+1], true
		}
	}
	return nil, false
}

// newRecordingSpan returns a context with a live recording span.
func newRecordingSpan(t *testing.T, name string) (context.Context, trace.Span, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), name)
	return ctx, span, sr
}
