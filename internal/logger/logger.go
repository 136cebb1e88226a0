// Package logger holds the process-wide slog logger shared by every
// nodegraph package. It is silent until a logger is installed.
package logger

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler discards all records. Enabled reports false so callers skip
// attribute formatting altogether.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var current atomic.Pointer[slog.Logger]

func init() {
	current.Store(slog.New(nopHandler{}))
}

// Get returns the active logger. Safe for concurrent use.
func Get() *slog.Logger { return current.Load() }

// Set installs l as the active logger. A nil logger restores the silent default.
func Set(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	current.Store(l)
}

// Silent reports whether l is the discarding default.
func Silent(l *slog.Logger) bool {
	_, ok := l.Handler().(nopHandler)
	return ok
}
