// Package async provides panic-safe goroutine launching for the background
// workers the run manager spawns (its result/error drain loops) so a panic
// in one never takes down the process mid-run.
package async

import (
	"runtime/debug"

	"github.com/catface996/aiops-executor/internal/logging"
)

// Go runs fn in a goroutine guarded by panic recovery, tagging the recovered
// panic (if any) with name so the manager's log stream shows which
// background worker died.
func Go(logger logging.Logger, name string, fn func()) {
	go func() {
		defer Recover(logger, name)
		fn()
	}()
}

// Recover logs a panic recovered from a background worker without crashing
// the process; it is a no-op if there was nothing to recover.
func Recover(logger logging.Logger, name string) {
	r := recover()
	if r == nil {
		return
	}
	if logger == nil {
		return
	}
	if name == "" {
		logger.Error("background worker panicked: %v\n%s", r, debug.Stack())
		return
	}
	logger.Error("background worker %q panicked: %v\n%s", name, r, debug.Stack())
}
