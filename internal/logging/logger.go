package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/writer"
)

// New builds the process logger. Errors and warnings go to stderr, everything
// else to stdout; when logFile is set every entry is also appended to it.
func New(level, logFile string) (*log.Logger, error) {
	logger := log.New()
	logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(lvl)

	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger.SetOutput(io.MultiWriter(file, os.Stdout))
		return logger, nil
	}

	logger.SetOutput(io.Discard)
	logger.AddHook(&writer.Hook{
		Writer:    os.Stderr,
		LogLevels: []log.Level{log.PanicLevel, log.FatalLevel, log.ErrorLevel, log.WarnLevel},
	})
	logger.AddHook(&writer.Hook{
		Writer:    os.Stdout,
		LogLevels: []log.Level{log.InfoLevel, log.DebugLevel, log.TraceLevel},
	})
	return logger, nil
}

// ParseLevel accepts logrus level names; empty means info
func ParseLevel(level string) (log.Level, error) {
	if strings.TrimSpace(level) == "" {
		return log.InfoLevel, nil
	}
	lvl, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return log.InfoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}

// Component returns logger scoped to one component
func Component(logger log.FieldLogger, name string) log.FieldLogger {
	return logger.WithField("component", name)
}
