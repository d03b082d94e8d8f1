package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dl-alexandre/drivesync/internal/types"
	"github.com/dl-alexandre/drivesync/internal/utils"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
)

// OutputWriter renders command results as a JSON envelope or a table.
// Status lines and warnings go to stderr so stdout stays parseable.
type OutputWriter struct {
	format   types.OutputFormat
	quiet    bool
	warnings []types.CLIWarning
	stdout   io.Writer
	stderr   io.Writer
}

func NewOutputWriter(format types.OutputFormat, quiet bool) *OutputWriter {
	return &OutputWriter{
		format:   format,
		quiet:    quiet,
		warnings: []types.CLIWarning{},
		stdout:   os.Stdout,
		stderr:   os.Stderr,
	}
}

// reportedError marks an error whose envelope was already written, so
// Execute only has to turn it into an exit code.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

func (w *OutputWriter) AddWarning(code, message, severity string) {
	w.warnings = append(w.warnings, types.CLIWarning{
		Code:     code,
		Message:  message,
		Severity: severity,
	})
}

func (w *OutputWriter) envelope(command string, data interface{}, errs ...types.CLIError) types.CLIOutput {
	if errs == nil {
		errs = []types.CLIError{}
	}
	return types.CLIOutput{
		SchemaVersion: utils.SchemaVersion,
		TraceID:       uuid.New().String(),
		Command:       command,
		Data:          data,
		Warnings:      w.warnings,
		Errors:        errs,
	}
}

// WriteSuccess writes data as JSON, or as a table when data knows how to
// render itself. Anything else falls back to JSON.
func (w *OutputWriter) WriteSuccess(command string, data interface{}) error {
	if w.format == types.OutputFormatJSON {
		return w.writeJSON(w.envelope(command, data))
	}

	var renderer types.TableRenderer
	switch v := data.(type) {
	case types.TableRenderable:
		renderer = v.AsTableRenderer()
	case types.TableRenderer:
		renderer = v
	default:
		return w.writeJSON(w.envelope(command, data))
	}
	w.flushWarnings()
	w.renderTable(renderer)
	return nil
}

func (w *OutputWriter) WriteError(command string, cliErr types.CLIError) error {
	if w.format == types.OutputFormatJSON {
		return w.writeJSON(w.envelope(command, nil, cliErr))
	}
	w.flushWarnings()
	fmt.Fprintf(w.stderr, "Error: %s\n", cliErr.Message)
	return nil
}

// Fail reports err for command and returns an error carrying its exit code
func (w *OutputWriter) Fail(command string, err error) error {
	cliErr := utils.AsCLIError(err)
	if writeErr := w.WriteError(command, cliErr); writeErr != nil {
		return writeErr
	}
	var appErr *utils.AppError
	if !errors.As(err, &appErr) && !utils.IsCancelled(err) {
		err = utils.WrapAppError(cliErr, err)
	}
	return &reportedError{err: err}
}

func (w *OutputWriter) writeJSON(output types.CLIOutput) error {
	encoder := json.NewEncoder(w.stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

// flushWarnings prints table-mode warnings once; JSON carries them in the envelope
func (w *OutputWriter) flushWarnings() {
	if !w.quiet {
		for _, warning := range w.warnings {
			fmt.Fprintf(w.stderr, "Warning: %s\n", warning.Message)
		}
	}
	w.warnings = w.warnings[:0]
}

func (w *OutputWriter) renderTable(renderer types.TableRenderer) {
	rows := renderer.Rows()
	if len(rows) == 0 {
		if !w.quiet {
			fmt.Fprintln(w.stdout, renderer.EmptyMessage())
		}
		return
	}

	table := tablewriter.NewWriter(w.stdout)
	table.SetHeader(renderer.Headers())
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.AppendBulk(rows)
	table.Render()
}

// Log writes an informational line to stderr unless quiet
func (w *OutputWriter) Log(format string, args ...interface{}) {
	if !w.quiet {
		fmt.Fprintf(w.stderr, format+"\n", args...)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
