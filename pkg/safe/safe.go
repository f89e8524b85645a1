package safe

import (
	"log/slog"
	"runtime/debug"
)

// Run executes fn and recovers from any panic, logging the stack trace.
// Used for best-effort goroutines (broadcast receive loop, debounced saves)
// that must never take the process down.
func Run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic recovered",
				slog.Any("recover", r),
				slog.String("component", "safe.Run"),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	fn()
}

// RunWithLog is a wrapper that executes fn and logs any panic with the
// component name attached.
func RunWithLog(fn func(), component string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic recovered",
				slog.Any("recover", r),
				slog.String("component", component),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	fn()
}
