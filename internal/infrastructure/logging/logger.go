package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nerrad567/fancontrol-core/internal/infrastructure/config"
)

// Logger wraps slog.Logger with fancontrold-specific functionality.
//
// It provides structured logging with default fields, level-based filtering
// and an optional rotating companion file.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger

	file *lumberjack.Logger
}

// New creates a new Logger with the specified configuration.
//
// It configures:
//   - Output format (JSON or text)
//   - Log level filtering
//   - Default fields (service name, version)
//   - Output destination, teed into a rotating file when cfg.File.Path is set
//
// A companion file that cannot be rotated is reported on stderr and
// appended to instead; logging never blocks startup.
//
// Parameters:
//   - cfg: Logging configuration
//   - version: Application version for default field
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = os.Stdout
	case "none":
		output = io.Discard
	default:
		output = os.Stderr
	}

	var file *lumberjack.Logger
	if cfg.File.Path != "" {
		file = newFileWriter(cfg.File)
		output = io.MultiWriter(output, file)
	}

	l := newWithWriter(output, cfg, version)
	l.file = file
	return l
}

// newFileWriter opens the rotating companion log file.
func newFileWriter(cfg config.FileLoggingConfig) *lumberjack.Logger {
	file := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	if cfg.RotateOnStart {
		if err := file.Rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "log file %s: rotate: %v\n", cfg.Path, err)
		}
	}
	return file
}

func newWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "fancontrold"),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error
// Defaults to error if unrecognised, matching the daemon's quiet default.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	regLogger := logger.With("component", "hardware")
//	regLogger.Info("registry built") // Includes component=hardware
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
		file:   l.file,
	}
}

// Close closes the companion log file, if any. Loggers derived with With
// share the file, so only the root logger should be closed.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Default creates a default logger for use before configuration is loaded.
//
// This logger writes text to stderr at error level.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "error",
		Format: "text",
		Output: "stderr",
	}, "dev")
}
