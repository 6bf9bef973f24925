package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	logger  zerolog.Logger
	logFile *os.File
	mu      sync.Mutex
	isSetup bool
)

func init() {
	// Console-only logger until Setup runs, so early failures are never silent.
	logger = newLogger(consoleWriter(), zerolog.InfoLevel)
}

func consoleWriter() io.Writer {
	return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
}

func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Setup initializes the package logger. An empty path keeps console-only
// output; otherwise events are written to both the console and the file.
func Setup(logPath string, verbose bool) error {
	mu.Lock()
	defer mu.Unlock()

	if isSetup {
		return nil
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	w := consoleWriter()
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("failed to open log file: %v", err)
		}
		logFile = f
		w = zerolog.MultiLevelWriter(consoleWriter(), f)
	}

	logger = newLogger(w, level)
	logger.Debug().Str("log_file", logPath).Msg("logger initialized")
	isSetup = true
	return nil
}

// Close closes the log file if one was opened.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	isSetup = false
}

// Debug logs a debug-level message.
func Debug(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	logger.Debug().Msgf(format, args...)
}

// Info logs an informational message.
func Info(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	logger.Info().Msgf(format, args...)
}

// Warning logs a warning message.
func Warning(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	logger.Warn().Msgf(format, args...)
}

// Error logs an error message.
func Error(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	logger.Error().Msgf(format, args...)
}

// ImageProcessed records the outcome of processing a single image.
func ImageProcessed(path string, success bool, errMsg string) {
	mu.Lock()
	defer mu.Unlock()

	if success {
		logger.Debug().Str("image", path).Msg("processed")
	} else {
		logger.Warn().Str("image", path).Str("error", errMsg).Msg("failed")
	}
}
