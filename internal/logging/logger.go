// Package logging builds the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
)

// Format selects the log encoding.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Options configures New.
type Options struct {
	Level  string
	Format string
	// Out defaults to a colour-capable stderr.
	Out io.Writer
}

// New returns a logger writing to opts.Out at opts.Level.
func New(opts Options) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	out := opts.Out
	switch opts.Format {
	case "", FormatConsole:
		noColor := out != nil
		if out == nil {
			out = colorable.NewColorableStderr()
		}
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly, NoColor: noColor}
	case FormatJSON:
		if out == nil {
			out = colorable.NewNonColorable(colorable.NewColorableStderr())
		}
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q (want console or json)", opts.Format)
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// ForJob returns a logger scoped to one job.
func ForJob(logger zerolog.Logger, jobID, identifier string) zerolog.Logger {
	return logger.With().Str("job", jobID).Str("url", identifier).Logger()
}
