package verifier

import (
	"fmt"
	"io"
	"log/slog"
)

// Observer receives the human-readable progress lines of a run.
type Observer interface {
	Printf(format string, args ...any)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(format string, args ...any)

func (f ObserverFunc) Printf(format string, args ...any) { f(format, args...) }

// Discard drops every line.
var Discard Observer = ObserverFunc(func(string, ...any) {})

// ConsoleObserver writes one line per message to w.
func ConsoleObserver(w io.Writer) Observer {
	return ObserverFunc(func(format string, args ...any) {
		fmt.Fprintf(w, format+"\n", args...)
	})
}

// SlogObserver forwards progress lines to logger at debug level, tagged
// with the run ID.
func SlogObserver(logger *slog.Logger, runID string) Observer {
	return ObserverFunc(func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...), "run_id", runID)
	})
}
