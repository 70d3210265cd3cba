// Package logger configures the zerolog logger shared by the keystone
// packages. Output goes to a log file by default so the operator console only
// shows conversation traffic.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration
type Config struct {
	Level   string // debug, info, warn, error
	File    string // log file path, empty disables file output
	Console bool   // also write to stderr
	Pretty  bool   // human readable console format
}

// Logger wraps zerolog.Logger and owns the log file.
type Logger struct {
	logger    zerolog.Logger
	file      *os.File
	baseLevel zerolog.Level
}

// New creates a logger and installs it as the zerolog global logger.
func New(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer
	if cfg.Console {
		var w io.Writer = os.Stderr
		if cfg.Pretty {
			w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		}
		writers = append(writers, w)
	}

	var file *os.File
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, errors.Wrapf(err, "failed to create log directory")
		}
		file, err = os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open log file %s", cfg.File)
		}
		writers = append(writers, file)
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = io.MultiWriter(writers...)
	}

	// The global level is the single switch for every derived logger, which
	// is what lets /debug take effect in components created earlier.
	zerolog.SetGlobalLevel(level)
	l := zerolog.New(writer).With().Timestamp().Logger()
	log.Logger = l

	return &Logger{logger: l, file: file, baseLevel: level}, nil
}

// Nop returns a logger that discards everything. Used by tests and by
// components constructed without a logger.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// Zerolog returns the underlying zerolog.Logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.logger
}

// SetDebug raises every logger derived from this one to debug level, or
// restores the configured level.
func (l *Logger) SetDebug(on bool) {
	if on {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(l.baseLevel)
}

// Level reports the current effective level.
func (l *Logger) Level() zerolog.Level {
	return zerolog.GlobalLevel()
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
