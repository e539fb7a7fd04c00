// logengine/pkg/logging/logging.go

package logging

import (
	"fmt"
	"os"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

var Logger zerolog.Logger

func init() {
	logLevel := zerolog.InfoLevel // Default log level
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		if level, err := zerolog.ParseLevel(envLevel); err == nil {
			logLevel = level
		}
	}

	zerolog.SetGlobalLevel(logLevel)
	Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// ConfigureLogger reconfigures the package logger for -verbose/-debug and
// the requested output sink. logOutput is "console" or "file"; rotateEvery
// rotates the file sink on that interval instead of writing to a single
// static file (used for long -forever tail runs).
func ConfigureLogger(logLevel, logOutput string, rotateEvery time.Duration) error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	zerolog.SetGlobalLevel(level)

	switch logOutput {
	case "", "console":
		Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
	case "file":
		if rotateEvery > 0 {
			writer, err := rotatelogs.New(
				"logengine.%Y%m%d%H%M.log",
				rotatelogs.WithRotationTime(rotateEvery),
				rotatelogs.WithMaxAge(7*24*time.Hour),
			)
			if err != nil {
				return fmt.Errorf("failed to open rotating log: %w", err)
			}
			Logger = zerolog.New(writer).With().Timestamp().Logger()
		} else {
			file, err := os.Create("logs.txt")
			if err != nil {
				return fmt.Errorf("failed to create log file: %w", err)
			}
			Logger = zerolog.New(file).With().Timestamp().Logger()
		}
	default:
		return fmt.Errorf("invalid log output option %q", logOutput)
	}

	log.Logger = Logger
	return nil
}
