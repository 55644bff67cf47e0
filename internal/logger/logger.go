package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// TimestampFormat is used for the "timestamp" field of every entry.
const TimestampFormat = "2006-01-02 15:04:05"

// LoggerConfig controls where compression logs go and how much is kept.
type LoggerConfig struct {
	Level string
	// FilePath enables a rotated JSON log file. Rotation limits are in
	// megabytes (MaxSize) and days (MaxAge).
	FilePath   string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
	// Console mirrors entries to ConsoleWriter, or os.Stderr when unset.
	// Without a file the console is always used.
	Console       bool
	ConsoleWriter io.Writer
}

// NewLogger builds a JSON logrus.Logger for config.
func NewLogger(config LoggerConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}
	out, err := config.output()
	if err != nil {
		return nil, err
	}

	log := logrus.New()
	log.SetLevel(level)
	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: TimestampFormat,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
			logrus.FieldKeyFunc:  "function",
		},
	})
	log.SetOutput(out)
	return log, nil
}

func (c LoggerConfig) output() (io.Writer, error) {
	var writers []io.Writer
	if c.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(c.FilePath), 0755); err != nil {
			return nil, err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   c.FilePath,
			MaxSize:    c.MaxSize,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAge,
			Compress:   c.Compress,
		})
	}

	// Progress bars own stdout.
	if c.Console || len(writers) == 0 {
		console := c.ConsoleWriter
		if console == nil {
			console = os.Stderr
		}
		writers = append(writers, console)
	}

	if len(writers) == 1 {
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

// LevelFromFlags maps the CLI verbosity flags onto a level. Verbose wins
// over quiet; with neither the configured level stays.
func LevelFromFlags(configured string, verbose, quiet bool) string {
	switch {
	case verbose:
		return "debug"
	case quiet:
		return "error"
	}
	return configured
}

// WithFile tags entries with the file they are about.
func WithFile(logger logrus.FieldLogger, filePath string) *logrus.Entry {
	return logger.WithField("file", filePath)
}

// WithOperation tags entries with the step that produced them, such as
// extract, select, compress or copy.
func WithOperation(logger logrus.FieldLogger, operation string) *logrus.Entry {
	return logger.WithField("operation", operation)
}

// WithFileOperation combines WithFile and WithOperation.
func WithFileOperation(logger logrus.FieldLogger, filePath, operation string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"file":      filePath,
		"operation": operation,
	})
}

// WithRun tags entries with a compression run id.
func WithRun(logger logrus.FieldLogger, runID string) *logrus.Entry {
	return logger.WithField("run_id", runID)
}

// DefaultConfig logs at info level to a rotated file only.
func DefaultConfig() LoggerConfig {
	return LoggerConfig{
		Level:      "info",
		FilePath:   "photo-compresser.log",
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   true,
	}
}
