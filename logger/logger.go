// Package logger provides centralized logging for the application.
// File: logger/logger.go
package logger

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// ------------------- global logger -------------------

// Log is the process-wide logger. Request handlers should prefer Ctx so that
// the request id travels with every line.
var Log zerolog.Logger

// Info, Warn, Error and Debug start an event on the process-wide logger.
func Info() *zerolog.Event  { return Log.Info() }
func Warn() *zerolog.Event  { return Log.Warn() }
func Error() *zerolog.Event { return Log.Error() }
func Debug() *zerolog.Event { return Log.Debug() }

// ------------------- logger initialization -------------------

// InitLogger creates or reinitializes the logging system. It:
// - Ensures dir exists.
// - Creates a timestamped log file in dir.
// - Writes logs to both the file and stdout.
func InitLogger(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	logFileName := filepath.Join(dir, time.Now().Format("2006-01-02_15-04-05")+".log")
	file, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) // #nosec
	if err != nil {
		return err
	}

	configure(io.MultiWriter(os.Stdout, file), Log.GetLevel())
	return nil
}

// SetLogLevel adjusts the level depending on environment. Production drops
// debug output entirely; every other environment keeps it.
func SetLogLevel(env string) {
	if env == "production" {
		Log = Log.Level(zerolog.InfoLevel)
		return
	}
	Log = Log.Level(zerolog.DebugLevel)
}

// SetOutput redirects the logger, mostly useful in tests.
func SetOutput(w io.Writer) {
	configure(w, Log.GetLevel())
}

// Ctx returns the logger attached to ctx, or the process-wide logger.
func Ctx(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &Log
}

func configure(w io.Writer, level zerolog.Level) {
	Log = zerolog.New(w).Level(level).With().Timestamp().Caller().Logger()
}

// init sets up a stdout logger so packages can log before main runs.
func init() {
	configure(os.Stdout, zerolog.DebugLevel)
}
