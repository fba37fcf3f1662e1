// Package telemetry configures process-wide structured logging.
package telemetry

import (
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

// Setup configures the standard logrus logger. format is "json" or "text".
func Setup(level, format string) error {
	return configure(log.StandardLogger(), os.Stderr, level, format)
}

func configure(logger *log.Logger, out io.Writer, level, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	switch format {
	case "", "json":
		logger.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	case "text":
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("log format %q: want json or text", format)
	}

	logger.SetOutput(out)
	logger.SetLevel(lvl)
	return nil
}
