package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/siteedge/internal/xerrors"
)

func newTestLogger(t *testing.T, buf *bytes.Buffer, opts Options) Logger {
	t.Helper()
	opts.Writer = buf
	opts.JSON = true
	l, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

// lastRecord decodes the last JSON line written to buf.
func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
		t.Fatalf("decode %q: %v", lines[len(lines)-1], err)
	}
	return m
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{" INFO ", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"Error", slog.LevelError, false},
		{"verbose", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseLevel(%q) err = %v", tt.in, err)
		}
		if !tt.wantErr && got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLogger_BaseAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "siteedge", Version: "1.2.3", Commit: "abc"})

	l.Info(context.Background(), "hello", "k", "v", 42, "dropped")

	m := lastRecord(t, &buf)
	for k, want := range map[string]any{"msg": "hello", "app": "siteedge", "version": "1.2.3", "commit": "abc", "k": "v"} {
		if m[k] != want {
			t.Errorf("%s = %v, want %v", k, m[k], want)
		}
	}
	if _, ok := m["source"]; !ok {
		t.Error("missing source attribute")
	}
	src, _ := m["source"].(map[string]any)
	if file, _ := src["file"].(string); !strings.HasSuffix(file, "log_test.go") {
		t.Errorf("source file = %v, want the test file", src["file"])
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "x", Level: slog.LevelWarn})

	l.Debug(context.Background(), "d")
	l.Info(context.Background(), "i")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below warn, got %s", buf.String())
	}
	l.Warn(context.Background(), "w")
	if m := lastRecord(t, &buf); m["level"] != "WARN" {
		t.Fatalf("level = %v", m["level"])
	}
}

func TestLogger_WithIsCopyOnWrite(t *testing.T) {
	var buf bytes.Buffer
	base := newTestLogger(t, &buf, Options{App: "x"})
	a := base.With("side", "a")
	b := base.With("side", "b")

	a.Info(context.Background(), "from a")
	if m := lastRecord(t, &buf); m["side"] != "a" {
		t.Fatalf("side = %v", m["side"])
	}
	b.Info(context.Background(), "from b")
	if m := lastRecord(t, &buf); m["side"] != "b" {
		t.Fatalf("side = %v", m["side"])
	}
	base.Info(context.Background(), "from base")
	if m := lastRecord(t, &buf); m["side"] != nil {
		t.Fatalf("base picked up child attrs: %v", m)
	}
}

type notFoundError struct{ name string }

func (e *notFoundError) Error() string { return e.name + " not found" }

func TestLogger_ErrorFields(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "x", IncludeErrorLinks: true})

	root := &notFoundError{name: "bundle"}
	err := xerrors.Wrap(fmt.Errorf("fetch: %w", root), "load content")
	l.Error(context.Background(), err, "content load failed")

	m := lastRecord(t, &buf)
	if m["err"] != "load content: fetch: bundle not found" {
		t.Errorf("err = %v", m["err"])
	}
	if m["error_type"] != "*log.notFoundError" {
		t.Errorf("error_type = %v", m["error_type"])
	}
	if m["cause_type"] != "*log.notFoundError" {
		t.Errorf("cause_type = %v", m["cause_type"])
	}
	chain, _ := m["error_chain"].([]any)
	if len(chain) != 3 {
		t.Errorf("error_chain = %v", m["error_chain"])
	}
	links, _ := m["error_links"].([]any)
	if len(links) == 0 {
		t.Fatalf("error_links missing")
	}
	first, _ := links[0].(map[string]any)
	if fn, _ := first["func"].(string); !strings.Contains(fn, "TestLogger_ErrorFields") {
		t.Errorf("first link func = %v", first["func"])
	}
	if _, ok := m["stack"]; !ok {
		t.Error("error record has no stack")
	}
}

func TestLogger_StackFromErrorPreferred(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "x", StacktraceLevel: slog.LevelWarn})

	err := xerrors.New("boom")
	l.Error(context.Background(), err, "failed")
	stack, _ := lastRecord(t, &buf)["stack"].(string)
	if !strings.Contains(stack, "TestLogger_StackFromErrorPreferred") {
		t.Fatalf("stack does not start at the error site:\n%s", stack)
	}

	l.Info(context.Background(), "below stack level")
	if _, ok := lastRecord(t, &buf)["stack"]; ok {
		t.Fatal("info record should not carry a stack")
	}
}

func TestPlumbing(t *testing.T) {
	const mod = "github.com/keithlinneman/siteedge/internal/"
	for fn, want := range map[string]bool{
		"log/slog.(*Logger).log":                       true,
		mod + "log.(*slogLogger).Error":                true,
		mod + "log.(*slogLogger).log":                  true,
		mod + "log.stackHandler.Handle":                true,
		mod + "log.traceHandler.Handle":                true,
		mod + "xerrors.New":                            true,
		mod + "xerrors.withStackSkip":                  true,
		mod + "log.TestLogger_StackFromErrorPreferred": false,
		mod + "log.TestLogger_ErrorFields.func1":       false,
		mod + "xerrors.TestWrap":                       false,
		mod + "content.(*Watcher).Poll":                false,
		mod + "logging.(*Sink).Write":                  false,
		"main.main":                                    false,
	} {
		if got := plumbing(fn); got != want {
			t.Errorf("plumbing(%q) = %v, want %v", fn, got, want)
		}
	}
}

func TestLogger_TraceIDs(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "x"})

	tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	l.Info(ctx, "traced")
	m := lastRecord(t, &buf)
	if m["trace_id"] != tid.String() || m["span_id"] != sid.String() {
		t.Fatalf("trace ids = %v / %v", m["trace_id"], m["span_id"])
	}
}

func TestErrorChain_Join(t *testing.T) {
	err := errors.Join(errors.New("a"), errors.New("b"))
	got := errorChain(err)
	if len(got) != 3 || got[1] != "a" || got[2] != "b" {
		t.Fatalf("errorChain = %q", got)
	}
}

func TestClassifyTypes_AllWrappers(t *testing.T) {
	surface, root := classifyTypes(xerrors.New("plain"))
	if surface != "*errors.errorString" || root != "*errors.errorString" {
		t.Fatalf("got %q / %q", surface, root)
	}
}

func TestContext(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext on empty ctx returned nil")
	}

	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "x"}).With("request_id", "r1")
	ctx := WithContext(context.Background(), l)
	FromContext(ctx).Info(ctx, "scoped")
	if m := lastRecord(t, &buf); m["request_id"] != "r1" {
		t.Fatalf("request_id = %v", m["request_id"])
	}

	ctx = WithContext(context.Background(), nil)
	nop := FromContext(ctx)
	nop.Error(ctx, errors.New("x"), "silent")
	if nop.With("a", 1) == nil || nop.Sync() != nil {
		t.Fatal("nop logger misbehaves")
	}
}
