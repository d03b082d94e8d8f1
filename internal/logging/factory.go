package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/jonboulle/clockwork"
)

// LogConfig selects and configures the loggers built by NewLogger
type LogConfig struct {
	Level           LogLevel
	OutputFile      string
	EnableConsole   bool
	EnableDebug     bool
	RedactSensitive bool
	EnableColor     bool
	EnableTimestamp bool
	MaxFileSize     int64

	// Console defaults to stderr; Clock to the wall clock.
	Console io.Writer
	Clock   clockwork.Clock
}

func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:           INFO,
		EnableConsole:   true,
		RedactSensitive: true,
		EnableColor:     true,
		EnableTimestamp: true,
		MaxFileSize:     100 * 1024 * 1024,
	}
}

// NewLogger returns a ConsoleLogger, a FileLogger, a MultiLogger over both,
// or a NoOpLogger when neither is enabled. EnableDebug forces DEBUG.
func NewLogger(config LogConfig) (Logger, error) {
	level := config.Level
	if config.EnableDebug {
		level = DEBUG
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}

	var loggers []Logger
	if config.EnableConsole {
		console := config.Console
		if console == nil {
			console = os.Stderr
		}
		loggers = append(loggers, NewConsoleLogger(ConsoleLoggerConfig{
			Writer:           console,
			Level:            level,
			Clock:            config.Clock,
			ColorEnabled:     config.EnableColor,
			TimestampEnabled: config.EnableTimestamp,
			RedactSensitive:  config.RedactSensitive,
		}))
	}
	if config.OutputFile != "" {
		fileLogger, err := NewFileLogger(FileLoggerConfig{
			FilePath:      config.OutputFile,
			Level:         level,
			MaxFileSize:   config.MaxFileSize,
			RotateEnabled: config.MaxFileSize > 0,
			Clock:         config.Clock,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create file logger: %w", err)
		}
		loggers = append(loggers, fileLogger)
	}

	switch len(loggers) {
	case 0:
		return NewNoOpLogger(), nil
	case 1:
		return loggers[0], nil
	default:
		return NewMultiLogger(loggers...), nil
	}
}
