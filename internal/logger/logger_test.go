package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for raw, want := range tests {
		if got := parseLevel(raw); got != want {
			t.Fatalf("parseLevel(%q)=%v, want %v", raw, got, want)
		}
	}
}

func TestNewWritesRotatingFile(t *testing.T) {
	dir := t.TempDir()
	log, err := New(Config{
		Level: "info",
		File:  FileConfig{Enabled: true, Path: dir, Name: "client.log"},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	log.Info("session ready")
	_ = log.Sync()

	data, err := os.ReadFile(filepath.Join(dir, "client.log"))
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"session ready"`) {
		t.Fatalf("log file=%s, want json entry", data)
	}
}

func TestNewFileWriterDefaults(t *testing.T) {
	dir := t.TempDir()
	w, err := newFileWriter(FileConfig{Path: dir, MaxBackups: -1, MaxAgeDays: -1})
	if err != nil {
		t.Fatalf("newFileWriter error: %v", err)
	}
	if w.Filename != filepath.Join(dir, "phoneai-client.log") {
		t.Fatalf("Filename=%q", w.Filename)
	}
	if w.MaxSize != 100 || w.MaxBackups != 0 || w.MaxAge != 0 {
		t.Fatalf("limits=%d/%d/%d, want 100/0/0", w.MaxSize, w.MaxBackups, w.MaxAge)
	}
}
