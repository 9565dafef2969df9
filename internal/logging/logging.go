// Package logging configures the process-wide zerolog logger from the
// daemon's logLevel/logAnsiColors config fields.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger writing to stderr. level follows spec.md §6's
// 0..3 scale (0=error, 1=warn, 2=info, 3=debug); ansiColors toggles the
// console writer's color output, matching the config's logAnsiColors flag.
func New(level int, ansiColors bool) zerolog.Logger {
	writer := zerolog.ConsoleWriter{Out: os.Stderr, NoColor: !ansiColors, TimeFormat: "15:04:05"}
	return zerolog.New(writer).Level(levelFromInt(level)).With().Timestamp().Logger()
}

func levelFromInt(level int) zerolog.Level {
	switch level {
	case 0:
		return zerolog.ErrorLevel
	case 1:
		return zerolog.WarnLevel
	case 2:
		return zerolog.InfoLevel
	case 3:
		return zerolog.DebugLevel
	default:
		return zerolog.WarnLevel
	}
}
