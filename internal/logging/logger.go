// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EnvLevel names the variable that overrides the configured level.
const EnvLevel = "STORYIMAGER_LOG_LEVEL"

// ParseLevel maps debug, info, warn and error onto zerolog levels.
// Anything else is info.
func ParseLevel(level string) zerolog.Level {
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

// Init sets the global level and writes human-readable logs to stderr.
// STORYIMAGER_LOG_LEVEL, when set, wins over level.
func Init(level string) {
	InitWriter(level, os.Stderr)
}

// InitWriter is Init with a custom destination.
func InitWriter(level string, out io.Writer) {
	if env := os.Getenv(EnvLevel); env != "" {
		level = env
	}
	zerolog.SetGlobalLevel(ParseLevel(level))
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, NoColor: true})
}
