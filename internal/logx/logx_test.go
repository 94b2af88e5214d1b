package logx

import (
	"bytes"
	"strings"
	"testing"

	"github.com/statinf-otawa/otawa-sub004/internal/config"
)

func TestLogForFiltersByProcessorName(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, config.Options{LogLevel: config.LogProc, LogFor: "dom"})

	l.For("dom").Info().Msg("ran dominance")
	l.For("cache").Info().Msg("ran cache")

	out := buf.String()
	if !strings.Contains(out, "ran dominance") {
		t.Fatalf("expected the dom processor's line to be logged, got %q", out)
	}
	if strings.Contains(out, "ran cache") {
		t.Fatalf("expected the cache processor's line to be filtered out, got %q", out)
	}
}

func TestLogNoneDisablesOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, config.Options{LogLevel: config.LogNone})
	l.For("dom").Info().Msg("should not appear")
	if buf.Len() != 0 {
		t.Fatalf("expected no output at LOG_LEVEL=NONE, got %q", buf.String())
	}
}
