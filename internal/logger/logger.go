// Package logger wraps a process-wide logrus instance configured from the
// environment. Output can go to the console, a file, or both.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/indralab/dblite/internal/config"
)

// Logger is the global log instance.
var Logger *logrus.Logger

// DefaultConfig returns the logging defaults used when no environment
// settings are present.
func DefaultConfig() *config.LogConfig {
	return &config.LogConfig{
		Level:    "info",
		Format:   "text",
		Output:   "console",
		FilePath: "logs/dblite.log",
	}
}

// Init initialises the logging system. A nil config selects the defaults.
func Init(cfg *config.LogConfig) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	Logger = logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
		Logger.Warnf("invalid log level %q, falling back to info", cfg.Level)
	}
	Logger.SetLevel(level)

	switch cfg.Format {
	case "json":
		Logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	case "text", "":
		Logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	default:
		Logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
		Logger.Warnf("invalid log format %q, falling back to text", cfg.Format)
	}

	return setupOutput(cfg)
}

// setupOutput selects the log destination.
func setupOutput(cfg *config.LogConfig) error {
	switch cfg.Output {
	case "console", "":
		Logger.SetOutput(os.Stdout)
	case "file":
		logFile, err := openLogFile(cfg.FilePath)
		if err != nil {
			return err
		}
		Logger.SetOutput(logFile)
	case "both":
		logFile, err := openLogFile(cfg.FilePath)
		if err != nil {
			return err
		}
		Logger.SetOutput(io.MultiWriter(os.Stdout, logFile))
	default:
		Logger.SetOutput(os.Stdout)
		Logger.Warnf("invalid log output %q, falling back to console", cfg.Output)
	}
	return nil
}

// openLogFile creates the log directory and opens the log file for append.
func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
}

// GetLogger returns the global log instance, initialising it with defaults
// if Init has not been called yet.
func GetLogger() *logrus.Logger {
	if Logger == nil {
		if err := Init(nil); err != nil {
			logrus.Error("log initialisation failed, using the standard logger")
			return logrus.StandardLogger()
		}
	}
	return Logger
}

// Debug logs at debug level.
func Debug(args ...interface{}) {
	GetLogger().Debug(args...)
}

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...interface{}) {
	GetLogger().Debugf(format, args...)
}

// Info logs at info level.
func Info(args ...interface{}) {
	GetLogger().Info(args...)
}

// Infof logs a formatted message at info level.
func Infof(format string, args ...interface{}) {
	GetLogger().Infof(format, args...)
}

// Warn logs at warning level.
func Warn(args ...interface{}) {
	GetLogger().Warn(args...)
}

// Warnf logs a formatted message at warning level.
func Warnf(format string, args ...interface{}) {
	GetLogger().Warnf(format, args...)
}

// Error logs at error level.
func Error(args ...interface{}) {
	GetLogger().Error(args...)
}

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...interface{}) {
	GetLogger().Errorf(format, args...)
}

// Fatal logs at fatal level and exits.
func Fatal(args ...interface{}) {
	GetLogger().Fatal(args...)
}

// Fatalf logs a formatted message at fatal level and exits.
func Fatalf(format string, args ...interface{}) {
	GetLogger().Fatalf(format, args...)
}

// WithField returns an entry with one extra field.
func WithField(key string, value interface{}) *logrus.Entry {
	return GetLogger().WithField(key, value)
}

// WithFields returns an entry with extra fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return GetLogger().WithFields(fields)
}
