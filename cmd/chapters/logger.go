package main

import (
	"log/slog"
	"os"
	"strings"
	"time"
)

// configureLogger sets the process-wide slog handler. Level and format are
// driven by CHAPTERS_LOG_LEVEL and CHAPTERS_LOG_FORMAT.
func configureLogger() {
	level := parseLogLevel(os.Getenv("CHAPTERS_LOG_LEVEL"))
	options := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey {
				if ts, ok := attr.Value.Any().(time.Time); ok {
					attr.Value = slog.StringValue(ts.UTC().Format(time.RFC3339))
				}
			}
			return attr
		},
	}

	var handler slog.Handler
	format := strings.ToLower(strings.TrimSpace(os.Getenv("CHAPTERS_LOG_FORMAT")))
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, options)
	} else {
		handler = slog.NewTextHandler(os.Stderr, options)
	}

	slog.SetDefault(slog.New(handler))
}

func parseLogLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
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
