package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestDefaultLogConfig(t *testing.T) {
	config := DefaultLogConfig()

	if config.Level != INFO || !config.EnableConsole || !config.RedactSensitive {
		t.Errorf("unexpected defaults: %+v", config)
	}
	if config.MaxFileSize != 100*1024*1024 {
		t.Errorf("MaxFileSize = %d, want 100 MiB", config.MaxFileSize)
	}
}

func TestNewLogger_Variants(t *testing.T) {
	tests := []struct {
		name    string
		console bool
		file    bool
		check   func(Logger) bool
	}{
		{"console only", true, false, func(l Logger) bool { _, ok := l.(*ConsoleLogger); return ok }},
		{"file only", false, true, func(l Logger) bool { _, ok := l.(*FileLogger); return ok }},
		{"console and file", true, true, func(l Logger) bool { _, ok := l.(*MultiLogger); return ok }},
		{"neither", false, false, func(l Logger) bool { _, ok := l.(*NoOpLogger); return ok }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := LogConfig{Level: INFO, EnableConsole: tt.console, Console: &bytes.Buffer{}, MaxFileSize: 1024}
			logPath := filepath.Join(t.TempDir(), "drivesync.log")
			if tt.file {
				config.OutputFile = logPath
			}

			logger, err := NewLogger(config)
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}
			t.Cleanup(func() { _ = logger.Close() })

			if !tt.check(logger) {
				t.Errorf("unexpected logger type %T", logger)
			}
			_, statErr := os.Stat(logPath)
			if tt.file && statErr != nil {
				t.Errorf("log file not created: %v", statErr)
			}
			if !tt.file && statErr == nil {
				t.Error("log file created without OutputFile")
			}
		})
	}
}

func TestNewLogger_InvalidPath(t *testing.T) {
	// a regular file cannot act as a parent directory, even for root
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := NewLogger(LogConfig{Level: INFO, OutputFile: filepath.Join(blocker, "nested", "drivesync.log")})
	if err == nil {
		t.Error("Expected error for invalid path, got nil")
	}
}

func TestNewLogger_DebugAndClock(t *testing.T) {
	var buf bytes.Buffer
	clock := clockwork.NewFakeClockAt(time.Date(2024, 7, 1, 9, 30, 0, 0, time.Local))

	logger, err := NewLogger(LogConfig{
		Level:           ERROR,
		EnableConsole:   true,
		EnableDebug:     true,
		EnableTimestamp: true,
		Console:         &buf,
		Clock:           clock,
	})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.Debug("Walking local tree")
	if !strings.HasPrefix(buf.String(), "2024-07-01 09:30:00 DEBUG Walking local tree") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", DEBUG, false},
		{"verbose", DEBUG, false},
		{"normal", INFO, false},
		{"", INFO, false},
		{"WARN", WARN, false},
		{"quiet", ERROR, false},
		{"loud", INFO, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
