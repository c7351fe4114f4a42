package logging

import "log/slog"

// EnableTrace turns on per-message pipeline logging. Set from the -trace flag.
var EnableTrace = false

// Trace logs at DEBUG on logger when tracing is enabled.
func Trace(logger *slog.Logger, msg string, args ...any) {
	if !EnableTrace {
		return
	}
	logger.Debug(msg, args...)
}

// TraceDefault is Trace on the default logger.
func TraceDefault(msg string, args ...any) {
	Trace(slog.Default(), msg, args...)
}
