package utils

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/amirphl/wedding-automations/config"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the process logger. Output "file" and "both" write through a rolling file.
func NewLogger(cfg config.LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.ErrorFieldName = "err"

	var stdout io.Writer = os.Stdout
	if cfg.Format == "console" {
		stdout = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02T15:04:05.000Z07:00"}
	}

	var out io.Writer
	switch cfg.Output {
	case "file":
		out = rollingFile(cfg)
	case "both":
		out = zerolog.MultiLevelWriter(stdout, rollingFile(cfg))
	default:
		out = stdout
	}

	return zerolog.New(out).
		Level(ParseLogLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()
}

func rollingFile(cfg config.LoggingConfig) io.Writer {
	return &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
}

// ParseLogLevel maps debug/info/warn/error to zerolog levels, defaulting to info
func ParseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
