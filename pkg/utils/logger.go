package utils

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// ServiceName tags every entry produced through NewSublogger
const ServiceName = "pdr-utils"

const logTimestampFormat = "2006-01-02T15:04:05.000Z07:00"

var Logger *logrus.Logger

// InitLogger initializes the global logger. format is json or text; output is
// stdout, stderr or file (file then names the path).
func InitLogger(level, format, output, file string) error {
	logger, err := newLogger(level, format, output, file)
	if err != nil {
		return err
	}
	Logger = logger
	return nil
}

func newLogger(level, format, output, file string) (*logrus.Logger, error) {
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetLevel(logLevel)

	switch strings.ToLower(format) {
	case "json", "":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: logTimestampFormat})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: logTimestampFormat})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	out, err := logOutput(output, file)
	if err != nil {
		return nil, err
	}
	logger.SetOutput(out)
	return logger, nil
}

func logOutput(output, file string) (io.Writer, error) {
	switch strings.ToLower(output) {
	case "stdout", "":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "file":
		if file == "" {
			return nil, fmt.Errorf("log output file requires a path")
		}
		return os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	default:
		return nil, fmt.Errorf("unknown log output %q", output)
	}
}

// GetLogger returns the global logger, creating a json stdout logger at info level on first use
func GetLogger() *logrus.Logger {
	if Logger == nil {
		Logger, _ = newLogger("info", "json", "stdout", "")
	}
	return Logger
}

// NewSublogger returns an entry tagged with the service and component names
func NewSublogger(component string) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"service":   ServiceName,
		"component": component,
	})
}
