package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic logs a recovered panic with its stack. It must be deferred
// directly; the panic is not re-raised.
//
//	defer observability.RecoverPanic(logger, "report export")
func RecoverPanic(logger *Logger, where string) {
	if r := recover(); r != nil {
		logPanic(logger, where, r)
	}
}

// RecoverPanicWithCallback is RecoverPanic followed by onPanic, which runs
// only when a panic was recovered.
func RecoverPanicWithCallback(logger *Logger, where string, onPanic func(recovered interface{})) {
	if r := recover(); r != nil {
		logPanic(logger, where, r)
		if onPanic != nil {
			onPanic(r)
		}
	}
}

// PanicError converts a recovered value into an error, or nil
func PanicError(r interface{}) error {
	if r == nil {
		return nil
	}
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}

func logPanic(logger *Logger, where string, r interface{}) {
	if logger == nil {
		logger = Default()
	}
	logger.WithFields(map[string]interface{}{
		"panic":   fmt.Sprint(r),
		"stack":   string(debug.Stack()),
		"context": where,
	}).Error("panic recovered")
}
