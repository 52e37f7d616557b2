package flint

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Workers log while recording, so it is
// read and replaced atomically.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for flint and its sub-packages.
// By default flint produces no log output. Pass nil to restore that.
//
// Log levels used by flint:
//   - [slog.LevelDebug]: resource creation and destruction, pipeline cache
//     hits and misses, per-frame statistics
//   - [slog.LevelInfo]: instance, device and render target lifecycle
//   - [slog.LevelWarn]: non-fatal issues (suboptimal surfaces, cache files
//     that could not be written during Terminate)
//
// Example:
//
//	flint.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger used by flint.
// Sub-packages (shaderc) call this to share the same configuration.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
