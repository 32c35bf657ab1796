package cmd

import (
	"io"
	"log/slog"
	"os"

	"github.com/nextlevelbuilder/devlink/internal/config"
)

// setupLogging installs the default slog logger and returns its level so
// a config reload can change it.
func setupLogging(lc config.LogConfig) *slog.LevelVar {
	level := new(slog.LevelVar)
	level.Set(parseLevel(lc.Level))
	if verbose {
		level.Set(slog.LevelDebug)
	}

	opts := &slog.HandlerOptions{Level: level}
	var w io.Writer = os.Stderr
	var h slog.Handler
	if lc.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
	return level
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
