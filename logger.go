package nodegraph

import (
	"log/slog"

	"github.com/gogpu/nodegraph/internal/logger"
)

// SetLogger configures the logger for nodegraph and all its sub-packages.
// By default, nodegraph produces no log output. Pass nil to restore the
// silent default. SetLogger is safe for concurrent use.
//
// Log levels used by nodegraph:
//   - [slog.LevelDebug]: network sizes, substitution misses, kernel cache hits
//   - [slog.LevelInfo]: GPU adapter selected
//   - [slog.LevelWarn]: CPU fallback, unparsable field defaults
//
// Example:
//
//	nodegraph.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logger.Set(l)
}

// Logger returns the current logger.
func Logger() *slog.Logger {
	return logger.Get()
}
