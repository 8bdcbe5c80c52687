package trendcore

import "log/slog"

// LevelTrace sits one step below slog.LevelDebug. The velocity updater logs
// its sub-second elapsed-time skips at this level so they can be filtered out
// of normal debug output.
const LevelTrace = slog.Level(-8)

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
