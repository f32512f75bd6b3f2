package tsc

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// PromCollectors exposes the metrics of the modules. The caller is
// responsible for registering them to a prometheus registry.
var PromCollectors []prometheus.Collector

var logout = zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.RFC3339,
}

// EnvLogLevel is the name of the environment variable to change the logging
// level.
const EnvLogLevel = "TSC_LLVL"

// Logger is a globally available logger instance.
var Logger = zerolog.New(logout).
	With().Timestamp().Logger().
	With().Caller().Logger().
	Level(logLevel())

func logLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(os.Getenv(EnvLogLevel))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.DebugLevel
	}

	return level
}
