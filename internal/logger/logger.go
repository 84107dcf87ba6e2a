package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the process-wide logger. Call Initialize before use.
var Log zerolog.Logger

// Initialize configures the global logger.
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().
		Str("service", "studio-orchestrator").
		Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("logger initialized")
}

// GetLogger returns the global logger instance.
func GetLogger() *zerolog.Logger {
	return &Log
}

// Substrate creates a logger scoped to substrate driver operations.
func Substrate() *zerolog.Logger {
	l := Log.With().Str("component", "substrate").Logger()
	return &l
}

// Environment creates a logger scoped to the project environment manager.
func Environment() *zerolog.Logger {
	l := Log.With().Str("component", "environment").Logger()
	return &l
}

// Agent creates a logger scoped to the agent turn engine.
func Agent() *zerolog.Logger {
	l := Log.With().Str("component", "agent").Logger()
	return &l
}

// TaskBus creates a logger scoped to the task and event bus.
func TaskBus() *zerolog.Logger {
	l := Log.With().Str("component", "taskbus").Logger()
	return &l
}

// Tools creates a logger scoped to tool registry and execution.
func Tools() *zerolog.Logger {
	l := Log.With().Str("component", "tools").Logger()
	return &l
}

// WebSocket creates a logger scoped to WebSocket hubs (browser and agent).
func WebSocket() *zerolog.Logger {
	l := Log.With().Str("component", "websocket").Logger()
	return &l
}

// Database creates a logger scoped to the metadata store.
func Database() *zerolog.Logger {
	l := Log.With().Str("component", "database").Logger()
	return &l
}

// HTTP creates a logger scoped to HTTP request handling.
func HTTP() *zerolog.Logger {
	l := Log.With().Str("component", "http").Logger()
	return &l
}
