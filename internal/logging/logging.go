// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Rorqualx/proxydl/internal/config"
)

// Setup points the global logger at a console writer on stdout and, when
// cfg.LogFile is set, a rotating JSON file. The returned closer flushes the
// file and must be closed on shutdown.
func Setup(cfg *config.Config) (io.Closer, error) {
	return setup(cfg, os.Stdout)
}

func setup(cfg *config.Config, stdout io.Writer) (io.Closer, error) {
	zerolog.SetGlobalLevel(ParseLevel(cfg.LogLevel))

	console := zerolog.ConsoleWriter{
		Out:        stdout,
		TimeFormat: time.RFC3339,
	}
	if cfg.LogFile == "" {
		log.Logger = log.Output(console)
		return nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return nil, err
	}
	file := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAgeDays,
		Compress:   true,
	}
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(console, file)).With().Timestamp().Logger()
	return file, nil
}

// ParseLevel maps a configured level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
