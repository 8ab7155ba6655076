// Package logger builds the application's slog logger: masking of sensitive
// attributes, optional rotating file output and Sentry forwarding.
package logger

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Proton-105/himera-shop/pkg/config"
)

// New builds the root logger. level is shared so the caller can change it at
// runtime. The returned closer flushes the log file, if any.
func New(cfg config.LoggerConfig, sentryEnabled bool, level *slog.LevelVar) (*slog.Logger, io.Closer) {
	if level == nil {
		level = new(slog.LevelVar)
	}
	level.Set(config.ParseLevel(cfg.Level))

	var out io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}

	if cfg.File.Enabled {
		file := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}
		out = io.MultiWriter(os.Stdout, file)
		closer = file
	}

	opts := &slog.HandlerOptions{Level: level}

	var base slog.Handler
	if cfg.Format == "text" {
		base = slog.NewTextHandler(out, opts)
	} else {
		base = slog.NewJSONHandler(out, opts)
	}

	var sinks []slog.Handler
	if sentryEnabled {
		sinks = append(sinks, slogsentry.Option{Level: slog.LevelError}.NewSentryHandler())
	}

	return slog.New(fanout(base, sinks...)), closer
}

// fanout masks records once and hands them to base and every extra sink that
// accepts their level.
func fanout(base slog.Handler, sinks ...slog.Handler) slog.Handler {
	if len(sinks) == 0 {
		return NewMaskingHandler(base)
	}
	return NewMaskingHandler(slogmulti.Fanout(append([]slog.Handler{base}, sinks...)...))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
