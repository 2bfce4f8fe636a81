package particles

import (
	"log/slog"

	"github.com/gogpu/particles/internal/logging"
)

// SetLogger configures the logger for particles and all its sub-packages.
// By default, particles produces no log output. Call SetLogger to enable
// logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by particles:
//   - [slog.LevelDebug]: per-frame diagnostics (acquired image, fence waits,
//     frames per second, echoed particle records)
//   - [slog.LevelInfo]: lifecycle events (adapter selected, swapchain
//     rebuilt, simulation closed)
//   - [slog.LevelWarn]: dropped frames and stale presents
//
// Example:
//
//	// Enable info-level logging to stderr:
//	particles.SetLogger(slog.Default())
//
//	// Enable debug-level logging for full diagnostics:
//	particles.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logging.Set(l)
}

// Logger returns the current logger used by particles.
// Sub-packages read the same logger, so a logger set after a Simulation
// was created still takes effect.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return logging.Logger()
}
