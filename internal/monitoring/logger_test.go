package monitoring

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	Logf("test message")
	if !called {
		t.Error("custom logger was not called")
	}

	// nil installs a no-op logger.
	SetLogger(nil)
	Logf("test message")
}

func TestLogStreams(t *testing.T) {
	var ops, diag, trace bytes.Buffer
	SetLogWriters(LogWriters{Ops: &ops, Diag: &diag})
	defer SetLogWriters(LogWriters{})

	Opsf("change to lane %d", 2)
	Diagf("cycle %d", 7)
	Tracef("dropped")

	if !strings.Contains(ops.String(), "[planner] ") || !strings.Contains(ops.String(), "change to lane 2") {
		t.Errorf("ops stream = %q", ops.String())
	}
	if !strings.Contains(diag.String(), "cycle 7") {
		t.Errorf("diag stream = %q", diag.String())
	}
	if trace.Len() != 0 {
		t.Errorf("trace stream should be disabled, got %q", trace.String())
	}
	if TraceEnabled() {
		t.Error("TraceEnabled() = true with nil writer")
	}

	SetLogWriters(LogWriters{Trace: &trace})
	if !TraceEnabled() {
		t.Error("TraceEnabled() = false with writer")
	}
	Tracef("frame %s", "42[...]")
	if !strings.Contains(trace.String(), "frame 42[...]") {
		t.Errorf("trace stream = %q", trace.String())
	}
}
