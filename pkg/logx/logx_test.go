package logx

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in, zerolog.InfoLevel); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	if got := truncate("hello", 10); got != "hello" {
		t.Fatalf("short string changed: %q", got)
	}
	long := strings.Repeat("x", 50)
	got := truncate(long, 20)
	if len(got) != 20 || !strings.HasSuffix(got, "...") {
		t.Fatalf("truncate = %q (len %d)", got, len(got))
	}
}

func TestFormatNotifyLine(t *testing.T) {
	t.Parallel()
	line := `{"level":"warn","time":"2025-01-01T00:00:00Z","message":"session evicted","phone":"+1555","reason":"SESSION_REVOKED"}`
	got := formatNotifyLine([]byte(line))
	if !strings.HasPrefix(got, "[WARN] session evicted") {
		t.Fatalf("unexpected prefix: %q", got)
	}
	if !strings.Contains(got, "phone=+1555") || !strings.Contains(got, "reason=SESSION_REVOKED") {
		t.Fatalf("fields missing: %q", got)
	}
	if strings.Contains(got, "time=") {
		t.Fatalf("time should be stripped: %q", got)
	}

	// Non-JSON input falls back to the raw line.
	if got := formatNotifyLine([]byte("plain text\n")); got != "plain text" {
		t.Fatalf("raw fallback = %q", got)
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var l Logger
	l.Info("should not panic")
	l.With(String("k", "v")).Error("still fine", Err(nil))
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
}
