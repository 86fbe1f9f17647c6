// Package allocctl implements the allocctl commands: offline passes over YAML
// snapshots, snapshot validation and generation, result verification, and
// pushing snapshots to a running server.
package allocctl

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/seatalloc/pkg/logger"
)

// SetupLogging configures the global logger. Logs go to stderr so that results
// written to stdout stay machine readable.
func SetupLogging(format string, verbose bool) error {
	return SetupLoggingTo(os.Stderr, format, verbose)
}

// SetupLoggingTo is SetupLogging with an explicit sink.
func SetupLoggingTo(w io.Writer, format string, verbose bool) error {
	if err := logger.InitWith(w, format); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	level := "info"
	if verbose {
		level = "debug"
	}
	return logger.SetLevelString(level)
}
