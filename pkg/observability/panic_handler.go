package observability

import (
	"runtime/debug"
)

// RecoverPanic logs a recovered panic from a background goroutine and lets
// the goroutine end. Defer it first thing:
//
//	go func() {
//	    defer observability.RecoverPanic(logger, "invitation cleanup")
//	    ...
//	}()
//
// Request handlers are covered by middleware.Recovery instead.
func RecoverPanic(logger *Logger, task string) {
	r := recover()
	if r == nil {
		return
	}
	PanicsRecoveredTotal.WithLabelValues(task).Inc()
	logger.WithFields(map[string]interface{}{
		"panic": r,
		"stack": string(debug.Stack()),
		"task":  task,
	}).Error("Recovered panic in background task")
}
