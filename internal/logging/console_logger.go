package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
)

var levelColors = map[LogLevel]string{
	DEBUG: colorBlue,
	INFO:  colorReset,
	WARN:  colorYellow,
	ERROR: colorRed,
}

// consoleSink is the writer state shared by a logger and its traced copies
type consoleSink struct {
	mu     sync.Mutex
	writer io.Writer
	level  LogLevel
}

// consoleStyle is how lines are rendered; traced copies inherit it
type consoleStyle struct {
	color     bool
	timestamp bool
	redact    bool
}

// ConsoleLogger writes human-readable lines, by default to stderr
type ConsoleLogger struct {
	sink    *consoleSink
	clock   clockwork.Clock
	style   consoleStyle
	traceID string
}

type ConsoleLoggerConfig struct {
	Writer           io.Writer
	Level            LogLevel
	Clock            clockwork.Clock
	ColorEnabled     bool
	TimestampEnabled bool
	RedactSensitive  bool
}

func NewConsoleLogger(config ConsoleLoggerConfig) *ConsoleLogger {
	if config.Writer == nil {
		config.Writer = os.Stderr
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	return &ConsoleLogger{
		sink:  &consoleSink{writer: config.Writer, level: config.Level},
		clock: config.Clock,
		style: consoleStyle{
			color:     config.ColorEnabled,
			timestamp: config.TimestampEnabled,
			redact:    config.RedactSensitive,
		},
	}
}

type redaction struct {
	pattern     *regexp.Regexp
	replacement string
}

// Secrets that show up in auth and transport diagnostics: bearer headers,
// OAuth token responses, API keys and the two credential files we read.
var redactions = []redaction{
	{regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-._~+/]+=*`), "Bearer [REDACTED]"},
	{regexp.MustCompile(`(access_token|refresh_token|id_token)["']?\s*[:=]\s*["']?[A-Za-z0-9\-._~+/]+=*`), "$1=[REDACTED]"},
	{regexp.MustCompile(`(?i)(api[_-]?key|apikey)["']?\s*[:=]\s*["']?[A-Za-z0-9\-._~+/]+=*`), "$1=[REDACTED]"},
	{regexp.MustCompile(`(client_secret|private_key)["']?\s*[:=]\s*["']?[^\s"',}]+`), "$1=[REDACTED]"},
	{regexp.MustCompile(`(?i)authorization["']?\s*[:=]\s*["']?[^\s"']+`), "Authorization: [REDACTED]"},
}

func redactSensitiveData(s string) string {
	for _, r := range redactions {
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return s
}

func (l *ConsoleLogger) paint(sb *strings.Builder, color, text string) {
	if l.style.color {
		sb.WriteString(color)
		sb.WriteString(text)
		sb.WriteString(colorReset)
		return
	}
	sb.WriteString(text)
}

// format renders "[time ]LEVEL [trace] message k=v, k=v"
func (l *ConsoleLogger) format(level LogLevel, msg string, fields []Field) string {
	var sb strings.Builder

	if l.style.timestamp {
		l.paint(&sb, colorGray, l.clock.Now().Format("2006-01-02 15:04:05")+" ")
	}
	l.paint(&sb, levelColors[level], fmt.Sprintf("%-5s", level.String()))
	sb.WriteByte(' ')
	if l.traceID != "" {
		l.paint(&sb, colorGray, "["+shortTraceID(l.traceID)+"] ")
	}

	clean := func(s string) string {
		if l.style.redact {
			return redactSensitiveData(s)
		}
		return s
	}
	sb.WriteString(clean(msg))

	for i, field := range fields {
		if i == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(field.Key)
		sb.WriteByte('=')
		sb.WriteString(clean(fmt.Sprintf("%v", field.Value)))
	}
	return sb.String()
}

func shortTraceID(traceID string) string {
	if len(traceID) > 8 {
		return traceID[:8]
	}
	return traceID
}

func (l *ConsoleLogger) log(level LogLevel, msg string, fields ...Field) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if level < l.sink.level {
		return
	}
	_, _ = fmt.Fprintln(l.sink.writer, l.format(level, msg, fields))
}

func (l *ConsoleLogger) Debug(msg string, fields ...Field) { l.log(DEBUG, msg, fields...) }
func (l *ConsoleLogger) Info(msg string, fields ...Field)  { l.log(INFO, msg, fields...) }
func (l *ConsoleLogger) Warn(msg string, fields ...Field)  { l.log(WARN, msg, fields...) }
func (l *ConsoleLogger) Error(msg string, fields ...Field) { l.log(ERROR, msg, fields...) }

// WithTraceID returns a copy writing to the same sink with traceID prefixed
func (l *ConsoleLogger) WithTraceID(traceID string) Logger {
	traced := *l
	traced.traceID = traceID
	return &traced
}

func (l *ConsoleLogger) WithContext(ctx context.Context) Logger {
	if traceID := TraceIDFromContext(ctx); traceID != "" {
		return l.WithTraceID(traceID)
	}
	return l
}

func (l *ConsoleLogger) SetLevel(level LogLevel) {
	l.sink.mu.Lock()
	l.sink.level = level
	l.sink.mu.Unlock()
}

func (l *ConsoleLogger) Close() error {
	return nil
}
