package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var Logger zerolog.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Init configures the global logger. Pretty output goes through the console
// writer; otherwise log lines are JSON on stderr.
func Init(level string, pretty bool) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stderr
	if pretty {
		output = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	Logger = zerolog.New(output).With().Timestamp().Logger()
	return nil
}
