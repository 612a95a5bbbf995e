package observability

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_WritesToFileWhenQuiet(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "octo-runner.log")

	logger, cleanup, err := NewLogger(&Config{
		Level:   "debug",
		Format:  "json",
		LogFile: logPath,
		Quiet:   true,
		Command: "octo-runner serve",
	})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.Debug("reaped port", "port", 3000)

	if closeErr := cleanup(); closeErr != nil {
		t.Fatalf("cleanup() error = %v", closeErr)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile(%q) error = %v", logPath, err)
	}
	if !strings.Contains(string(data), `"port":3000`) {
		t.Fatalf("log file missing attribute, got %q", data)
	}
	if !strings.Contains(string(data), `"command.path":"octo-runner serve"`) {
		t.Fatalf("log file missing command path, got %q", data)
	}
}

func TestNewLogger_QuietWithoutFileDiscards(t *testing.T) {
	logger, cleanup, err := NewLogger(&Config{Quiet: true})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	defer cleanup()

	if logger.Enabled(context.Background(), slog.LevelError) {
		logger.Error("dropped")
	}
}

func TestNewLogger_InvalidFormat(t *testing.T) {
	if _, _, err := NewLogger(&Config{Format: "xml"}); err == nil {
		t.Fatal("NewLogger() with format xml: expected error")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseLevel(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLevel(%q) error = %v", tt.in, err)
			continue
		}
		if got.Level() != tt.want {
			t.Errorf("ParseLevel(%q) = %v; want %v", tt.in, got.Level(), tt.want)
		}
	}
}

func TestRedactAttr(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{ReplaceAttr: redactAttr}))

	logger.Info("spawn", "GITHUB_TOKEN", "ghp_abc", "npm_config_password", "hunter2", "port", 3000)

	out := buf.String()
	if strings.Contains(out, "ghp_abc") || strings.Contains(out, "hunter2") {
		t.Fatalf("secret leaked into log: %q", out)
	}
	if !strings.Contains(out, "port=3000") {
		t.Fatalf("non-secret attribute missing: %q", out)
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Fatal("FromContext without logger should return slog.Default()")
	}

	logger := Discard()
	if FromContext(WithLogger(context.Background(), logger)) != logger {
		t.Fatal("FromContext should return the stored logger")
	}
}
