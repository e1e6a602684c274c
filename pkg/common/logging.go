package common

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the global zerolog logger. Pretty mode uses the
// console writer, which is easier on the eyes but slower than the
// default JSON output.
func InitLogger(debugMode bool, pretty bool) {
	level := zerolog.InfoLevel
	if debugMode {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if pretty {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05",
		}).With().Timestamp().Logger()
	}
}
