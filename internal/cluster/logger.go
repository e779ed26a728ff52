package cluster

import (
	"io"
	"log"
	"log/slog"

	"github.com/hashicorp/go-hclog"
)

// newNoOpHCLogger creates a no-op hclog.Logger for Raft to avoid excessive logging.
func newNoOpHCLogger() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "raft",
		Level:  hclog.Off,
		Output: io.Discard,
	})
}

// newHCLogger creates an hclog.Logger from a standard log.Logger.
func newHCLogger(stdLogger *log.Logger, level hclog.Level) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "raft",
		Level:  level,
		Output: stdLogger.Writer(),
	})
}

// raftLogger returns the logger handed to Raft. Raft output is forwarded to
// logger at debug level when verbose is set and discarded otherwise.
func raftLogger(logger *slog.Logger, verbose bool) hclog.Logger {
	if !verbose {
		return newNoOpHCLogger()
	}
	return newHCLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug), hclog.Debug)
}
