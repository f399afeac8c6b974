package app

import (
	"io"
	"os"
	"time"

	"github.com/adrian-cabangis/taskboard/internal/config"

	"github.com/rs/zerolog"
)

// NewLogger builds the process logger. Local/dev gets a console writer
// at debug level; everything else logs JSON at info.
func NewLogger(cfg config.AppConfig) zerolog.Logger {
	zerolog.TimestampFieldName = "timestamp"

	level := zerolog.InfoLevel
	w := io.Writer(os.Stdout)
	if cfg.Env == "dev" || cfg.Env == "local" {
		level = zerolog.DebugLevel
		console := zerolog.NewConsoleWriter()
		console.TimeFormat = time.DateTime
		console.Out = os.Stdout
		w = console
	}

	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Int("pid", os.Getpid()).
		Logger()
}
