package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects where engine logs go and how verbose they are. The
// engine is a library, so file logging is opt-in: an embedding host that
// already owns the process's log sinks leaves FilePath empty and wires
// slog itself.
type Config struct {
	// Level is the minimum level emitted: debug, info, warn, or error.
	Level string
	// FilePath is the log file destination; empty disables file output.
	FilePath string
	// MaxSizeMB is the file size ceiling before the writer rotates.
	MaxSizeMB int
	// MaxFiles bounds how many rotated files are kept on disk.
	MaxFiles int
	// WriteToStderr mirrors every record to stderr as well.
	WriteToStderr bool
}

// DefaultConfig logs at info level to the per-user engine log with a
// 10 MB / 5-file rotation budget, mirrored to stderr.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// DebugConfig is DefaultConfig lowered to debug level, used by the
// operator CLI's --debug flag.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = "debug"
	return cfg
}

// Setup builds a JSON slog.Logger writing through a rotating file
// writer. The returned cleanup flushes and closes the file; callers run
// it once the logger is no longer in use.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	if cfg.FilePath == "" {
		var sink io.Writer = io.Discard
		if cfg.WriteToStderr {
			sink = os.Stderr
		}
		handler := slog.NewJSONHandler(sink, &slog.HandlerOptions{Level: parseLevel(cfg.Level)})
		return slog.New(handler), func() {}, nil
	}
	if err := EnsureLogDir(); err != nil {
		return nil, nil, err
	}

	rot, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, nil, err
	}

	var sink io.Writer = rot
	if cfg.WriteToStderr {
		sink = io.MultiWriter(rot, os.Stderr)
	}

	handler := slog.NewJSONHandler(sink, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})

	cleanup := func() {
		_ = rot.Sync()
		_ = rot.Close()
	}
	return slog.New(handler), cleanup, nil
}

// SetupDefault installs a debug-level logger as the process default and
// returns its cleanup function.
func SetupDefault() (func(), error) {
	logger, cleanup, err := Setup(DebugConfig())
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cleanup, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LevelFromString maps a config-file level name to its slog.Level;
// unrecognized names fall back to info.
func LevelFromString(level string) slog.Level {
	return parseLevel(level)
}
