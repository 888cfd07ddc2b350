package logger

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// helper to close non-nil closers and ignore errors
func closeIf(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

func TestWriters_WithDir(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir}
	outW, errW, err := cfg.Writers("chess-engine-2.9.0")
	if err != nil {
		t.Fatalf("Writers error: %v", err)
	}
	if outW == nil || errW == nil {
		t.Fatalf("expected both writers non-nil when Dir is set")
	}
	_, _ = outW.Write([]byte("hello-out\n"))
	_, _ = errW.Write([]byte("hello-err\n"))
	closeIf(outW)
	closeIf(errW)
	for _, p := range []string{"chess-engine-2.9.0.stdout.log", "chess-engine-2.9.0.stderr.log"} {
		if _, err := os.Stat(filepath.Join(dir, p)); err != nil {
			t.Fatalf("log not created at %s: %v", p, err)
		}
	}
}

func TestWriters_NoDir(t *testing.T) {
	outW, errW, err := Config{}.Writers("n")
	if err != nil || outW != nil || errW != nil {
		t.Fatalf("expected nil writers without Dir, got %v %v %v", outW, errW, err)
	}
}

func TestWriters_Defaults(t *testing.T) {
	outW, _, _ := Config{Dir: t.TempDir()}.Writers("n")
	ol, ok := outW.(*lj.Logger)
	if !ok {
		t.Fatalf("expected *lumberjack.Logger, got %T", outW)
	}
	if ol.MaxSize != DefaultMaxSizeMB || ol.MaxBackups != DefaultMaxBackups || ol.MaxAge != DefaultMaxAgeDays {
		t.Fatalf("defaults not applied: %+v", ol)
	}
	outW, _, _ = Config{Dir: t.TempDir(), MaxSizeMB: 1, MaxBackups: 9, MaxAgeDays: 2, Compress: true}.Writers("n")
	ol = outW.(*lj.Logger)
	if ol.MaxSize != 1 || ol.MaxBackups != 9 || ol.MaxAge != 2 || !ol.Compress {
		t.Fatalf("overrides not applied: %+v", ol)
	}
}

func TestWriters_RejectsPathLikeName(t *testing.T) {
	for _, name := range []string{"", "../x", "a/b", `a\b`} {
		if _, _, err := (Config{Dir: t.TempDir()}).Writers(name); err == nil {
			t.Fatalf("expected error for name %q", name)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug, "INFO": slog.LevelInfo, "warn": slog.LevelWarn,
		"warning": slog.LevelWarn, "error": slog.LevelError, "": slog.LevelInfo, "bogus": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestNew_Formats(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Format: "json"}, &buf).Info("hello", "k", "v")
	if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Fatalf("expected JSON output, got %q", buf.String())
	}

	buf.Reset()
	New(Config{NoColor: true, Level: "warn"}, &buf).Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info must be filtered at warn level, got %q", buf.String())
	}

	buf.Reset()
	New(Config{}, &buf).With("engine", "a").Warn("colored")
	out := buf.String()
	if !strings.Contains(out, "[33mWARN") || !strings.Contains(out, "engine=a") {
		t.Fatalf("expected colored WARN with attrs, got %q", out)
	}
}

func TestColorTextHandler_HideTime(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewColorTextHandler(&buf, nil, false)).Info("x")
	if strings.Contains(buf.String(), "time=") {
		t.Fatalf("time must be omitted, got %q", buf.String())
	}
}
