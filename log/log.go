// Package log provides a leveled, structured logger for the whole SDK, backed
// by zerolog. It is initialized once via Init and used through package-level
// helpers so callers never carry a logger around.
package log

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

var log zerolog.Logger

// The invalid chars check is relatively expensive, and it could be a source of
// panics in production, so it is only enabled when the environment variable
// LOG_PANIC_ON_INVALIDCHARS is set to true.
var panicOnInvalidChars = os.Getenv("LOG_PANIC_ON_INVALIDCHARS") == "true"

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	logTestWriterName = "logtestwriter"
)

// logTestWriter is the writer used when Init is called with output
// logTestWriterName. Used by tests and benchmarks.
var logTestWriter io.Writer

// Logger returns the global logger.
func Logger() *zerolog.Logger { return &log }

// Init initializes the global logger with the given level ("debug", "info",
// "warn" or "error") and output ("stdout", "stderr" or a file path). If
// errorOutput is not nil, a copy of every error-level (and above) entry is
// also written to it.
func Init(level, output string, errorOutput io.Writer) {
	var out io.Writer
	switch output {
	case "stdout":
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339Nano}
	case "stderr":
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339Nano}
	case logTestWriterName:
		out = logTestWriter
	default:
		f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			panic(fmt.Sprintf("cannot create log output: %v", err))
		}
		out = f
	}
	if errorOutput != nil {
		out = zerolog.MultiLevelWriter(out, errorLevelWriter{errorOutput})
	}
	log = zerolog.New(out).With().Timestamp().Caller().Logger()
	switch level {
	case LogLevelDebug:
		log = log.Level(zerolog.DebugLevel)
	case LogLevelInfo:
		log = log.Level(zerolog.InfoLevel)
	case LogLevelWarn:
		log = log.Level(zerolog.WarnLevel)
	case LogLevelError:
		log = log.Level(zerolog.ErrorLevel)
	default:
		panic(fmt.Sprintf("invalid log level: %q", level))
	}
	log.Info().Msgf("logger construction succeeded at level %s with output %s", level, output)
}

// errorLevelWriter forwards only error-level (and above) entries.
type errorLevelWriter struct{ w io.Writer }

func (w errorLevelWriter) Write(p []byte) (int, error) { return w.w.Write(p) }

func (w errorLevelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < zerolog.ErrorLevel {
		return len(p), nil
	}
	return w.w.Write(p)
}

func checkInvalidChars(args ...any) {
	if !panicOnInvalidChars {
		return
	}
	for _, arg := range args {
		if s, ok := arg.(string); ok && !utf8.ValidString(s) {
			panic(fmt.Sprintf("invalid char in log message: %q", s))
		}
	}
}

func formatf(template string, args ...any) string {
	s := fmt.Sprintf(template, args...)
	if panicOnInvalidChars && !utf8.ValidString(s) {
		panic(fmt.Sprintf("invalid char in log message: %q", s))
	}
	return s
}

// Debug logs a debug message.
func Debug(args ...any) {
	checkInvalidChars(args...)
	log.Debug().CallerSkipFrame(1).Msg(fmt.Sprint(args...))
}

// Info logs an info message.
func Info(args ...any) {
	checkInvalidChars(args...)
	log.Info().CallerSkipFrame(1).Msg(fmt.Sprint(args...))
}

// Warn logs a warning message.
func Warn(args ...any) {
	checkInvalidChars(args...)
	log.Warn().CallerSkipFrame(1).Msg(fmt.Sprint(args...))
}

// Error logs an error message.
func Error(args ...any) {
	checkInvalidChars(args...)
	log.Error().CallerSkipFrame(1).Msg(fmt.Sprint(args...))
}

// Fatal logs a fatal message and exits with code 1.
func Fatal(args ...any) {
	log.Fatal().CallerSkipFrame(1).Msg(fmt.Sprint(args...))
}

// Debugf logs a debug message with printf-style formatting.
func Debugf(template string, args ...any) {
	log.Debug().CallerSkipFrame(1).Msg(formatf(template, args...))
}

// Infof logs an info message with printf-style formatting.
func Infof(template string, args ...any) {
	log.Info().CallerSkipFrame(1).Msg(formatf(template, args...))
}

// Warnf logs a warning message with printf-style formatting.
func Warnf(template string, args ...any) {
	log.Warn().CallerSkipFrame(1).Msg(formatf(template, args...))
}

// Errorf logs an error message with printf-style formatting.
func Errorf(template string, args ...any) {
	log.Error().CallerSkipFrame(1).Msg(formatf(template, args...))
}

// Fatalf logs a fatal message with printf-style formatting and exits with
// code 1.
func Fatalf(template string, args ...any) {
	log.Fatal().CallerSkipFrame(1).Msg(formatf(template, args...))
}

func withFields(ev *zerolog.Event, keyvalues ...any) *zerolog.Event {
	for i := 0; i+1 < len(keyvalues); i += 2 {
		key, ok := keyvalues[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keyvalues[i])
		}
		switch v := keyvalues[i+1].(type) {
		case string:
			ev = ev.Str(key, v)
		case int:
			ev = ev.Int(key, v)
		case int64:
			ev = ev.Int64(key, v)
		case uint64:
			ev = ev.Uint64(key, v)
		case bool:
			ev = ev.Str(key, strconv.FormatBool(v))
		case error:
			ev = ev.AnErr(key, v)
		case time.Duration:
			ev = ev.Dur(key, v)
		case time.Time:
			ev = ev.Time(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	return ev
}

// Debugw logs a debug message with key-value fields.
func Debugw(msg string, keyvalues ...any) {
	checkInvalidChars(msg)
	withFields(log.Debug().CallerSkipFrame(1), keyvalues...).Msg(msg)
}

// Infow logs an info message with key-value fields.
func Infow(msg string, keyvalues ...any) {
	checkInvalidChars(msg)
	withFields(log.Info().CallerSkipFrame(1), keyvalues...).Msg(msg)
}

// Warnw logs a warning message with key-value fields.
func Warnw(msg string, keyvalues ...any) {
	checkInvalidChars(msg)
	withFields(log.Warn().CallerSkipFrame(1), keyvalues...).Msg(msg)
}

// Errorw logs an error with an accompanying message.
func Errorw(err error, msg string) {
	log.Error().CallerSkipFrame(1).Err(err).Msg(msg)
}
