package logging

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plainConsole(buf *bytes.Buffer, level LogLevel) *ConsoleLogger {
	return NewConsoleLogger(ConsoleLoggerConfig{Writer: buf, Level: level})
}

func TestMultiLoggerFansOut(t *testing.T) {
	var a, b bytes.Buffer
	multi := NewMultiLogger(plainConsole(&a, INFO), plainConsole(&b, WARN))

	multi.Info("Resolved destination", F("id", "xyz"))
	multi.Warn("Upload retried")

	assert.Contains(t, a.String(), "Resolved destination")
	assert.Contains(t, a.String(), "Upload retried")
	assert.NotContains(t, b.String(), "Resolved destination")
	assert.Contains(t, b.String(), "Upload retried")
}

func TestMultiLoggerSetLevel(t *testing.T) {
	var buf bytes.Buffer
	multi := NewMultiLogger(plainConsole(&buf, DEBUG))

	multi.Debug("first")
	multi.SetLevel(ERROR)
	multi.Debug("second")
	multi.Error("third")

	out := buf.String()
	assert.Contains(t, out, "first")
	assert.NotContains(t, out, "second")
	assert.Contains(t, out, "third")
}

func TestMultiLoggerTraceID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.log")
	file, err := NewFileLogger(FileLoggerConfig{FilePath: path, Level: INFO})
	require.NoError(t, err)

	multi := NewMultiLogger(file)
	assert.Same(t, multi, multi.WithContext(context.Background()))

	multi.WithContext(ContextWithTraceID(context.Background(), "run-7")).Info("traced")
	require.NoError(t, multi.Close())

	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	assert.Equal(t, "run-7", entries[0].TraceID)
}

type failingCloser struct {
	*NoOpLogger
	err error
}

func (f failingCloser) Close() error { return f.err }

func TestMultiLoggerCloseJoinsErrors(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	multi := NewMultiLogger(
		failingCloser{NoOpLogger: NewNoOpLogger(), err: errA},
		NewNoOpLogger(),
		failingCloser{NoOpLogger: NewNoOpLogger(), err: errB},
	)

	err := multi.Close()
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

func TestMultiLoggerFileAndConsole(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "both.log")
	file, err := NewFileLogger(FileLoggerConfig{FilePath: path, Level: INFO})
	require.NoError(t, err)

	multi := NewMultiLogger(file, plainConsole(&buf, INFO))
	multi.Info("Sync finished", F("uploaded", 3))
	require.NoError(t, multi.Close())

	assert.Contains(t, buf.String(), "Sync finished")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"uploaded":3`)
}
