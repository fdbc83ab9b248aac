package logger

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/f0rbit/media-timeline/internal/config"
)

// New returns a configured zerolog.Logger. Development mode logs to a
// human-readable console writer at debug level; otherwise JSON at info.
func New(cfg *config.Config) zerolog.Logger {
	var out zerolog.ConsoleWriter
	lvl := zerolog.InfoLevel
	if cfg.IsDevelopment() {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
		lvl = zerolog.DebugLevel
		zerolog.SetGlobalLevel(lvl)
		return zerolog.New(out).With().Timestamp().Logger()
	}
	zerolog.SetGlobalLevel(lvl)
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
