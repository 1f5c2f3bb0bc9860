package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerWritesConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)
	l.Child("task", "data/abc").Info().Str("status", "running").Msg("task update")

	out := buf.String()
	for _, want := range []string{"task update", "data/abc", "running"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestDebugHiddenAtInfoLevel(t *testing.T) {
	defer SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	l := NewLogger(&buf)
	l.Debugf("hidden %d", 1)
	if buf.Len() != 0 {
		t.Errorf("debug output at info level: %q", buf.String())
	}

	SetGlobalLevel(zerolog.DebugLevel)
	l.Debugf("shown %d", 2)
	if !strings.Contains(buf.String(), "shown 2") {
		t.Errorf("debug output missing: %q", buf.String())
	}
}

func TestOrNop(t *testing.T) {
	l := OrNop(nil)
	l.Errorf("discarded")
	if l.Output() == nil {
		t.Error("nop logger should have a writer")
	}
}
