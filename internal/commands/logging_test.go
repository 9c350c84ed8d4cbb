package commands

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Lllllllleong/docmerge/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := NewLogger(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()
	logger.Debug("Hidden.")
	logger.Info("Shown.", "document", "a.pdf")

	out := buf.String()
	if strings.Contains(out, "Hidden.") {
		t.Error("debug record written at info level")
	}
	if !strings.Contains(out, `"msg":"Shown."`) || !strings.Contains(out, `"document":"a.pdf"`) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestNewLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "docmerge.log")
	logger, closer, err := NewLogger(config.LoggingConfig{Level: "debug", Format: "text", File: path}, os.Stderr)
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("Written to file.")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Written to file.") {
		t.Errorf("log file = %q", data)
	}
}
