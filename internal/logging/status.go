package logging

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
)

// StatusFunc receives already formatted, human-readable status lines.
// The sync engine reports progress exclusively through it.
type StatusFunc func(line string)

// Printf formats a status line and sends it to f. A nil f drops the line.
func (f StatusFunc) Printf(format string, args ...interface{}) {
	if f == nil {
		return
	}
	f(fmt.Sprintf(format, args...))
}

// DiscardStatus drops every line
func DiscardStatus(string) {}

// NewStatusWriter writes each line to w prefixed with a [HH:MM:SS] stamp.
// Multi-line input is stamped per line.
func NewStatusWriter(w io.Writer, clock clockwork.Clock) StatusFunc {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	var mu sync.Mutex
	return func(line string) {
		mu.Lock()
		defer mu.Unlock()
		stamp := clock.Now().Format("15:04:05")
		for _, part := range strings.Split(strings.TrimRight(line, "\n"), "\n") {
			fmt.Fprintf(w, "[%s] %s\n", stamp, part)
		}
	}
}

// StatusToLogger forwards status lines to a structured logger at INFO
func StatusToLogger(logger Logger) StatusFunc {
	if logger == nil {
		return DiscardStatus
	}
	return func(line string) {
		logger.Info(strings.TrimSpace(line), F("source", "status"))
	}
}

// TeeStatus sends each line to every non-nil sink
func TeeStatus(sinks ...StatusFunc) StatusFunc {
	active := make([]StatusFunc, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	return func(line string) {
		for _, s := range active {
			s(line)
		}
	}
}
