package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

type Options struct {
	Level  string
	Format string // "json", "console" or "" to detect from the terminal
	Out    io.Writer
}

var log = zerolog.New(os.Stderr).With().Timestamp().Logger()

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Setup replaces the process logger. Console output is used when requested or
// when writing to a terminal.
func Setup(opts Options) {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	format := strings.ToLower(opts.Format)
	if format == "" {
		format = "json"
		if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			format = "console"
		}
	}
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	log = zerolog.New(out).With().Timestamp().Str("service", "reelsub").Logger()
}

// Logger returns the process logger for components that take a zerolog.Logger.
func Logger() zerolog.Logger {
	return log
}

func Info() *zerolog.Event  { return log.Info() }
func Warn() *zerolog.Event  { return log.Warn() }
func Error() *zerolog.Event { return log.Error() }
func Debug() *zerolog.Event { return log.Debug() }

// Job returns a child logger tagged with the job id.
func Job(id string) *zerolog.Logger {
	l := log.With().Str("job_id", id).Logger()
	return &l
}
