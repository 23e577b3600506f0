package app

import (
	"fmt"
	"log/slog"
	"os"

	"go.uber.org/zap/zapcore"

	"service-dispatch/internal/config"
	"service-dispatch/internal/logx"
)

// NewLogger builds the process logger from the Log section: slog JSON or text, or zap.
func NewLogger(cfg *config.Config) (logx.Logger, error) {
	switch cfg.Log.Format {
	case config.LogFormatZap:
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
			return nil, fmt.Errorf("zap level %q: %w", cfg.Log.Level, err)
		}
		return logx.NewZapProduction(lvl)
	case config.LogFormatText:
		return logx.NewSlogAdapter(slog.New(slog.NewTextHandler(os.Stdout, slogOptions(cfg.Log.Level)))), nil
	default:
		return logx.NewSlogAdapter(slog.New(slog.NewJSONHandler(os.Stdout, slogOptions(cfg.Log.Level)))), nil
	}
}

func slogOptions(level string) *slog.HandlerOptions {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return &slog.HandlerOptions{Level: lvl}
}
