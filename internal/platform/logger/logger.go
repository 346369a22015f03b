// Package logger builds the process-wide zerolog logger. Call Init once at
// startup; packages that are not handed a logger explicitly use Get.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Options struct {
	Level   string
	Pretty  bool
	Output  io.Writer
	Service string
}

var (
	mu       sync.RWMutex
	instance = zerolog.Nop()
)

func Init(opts Options) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	service := opts.Service
	if service == "" {
		service = "hrportal"
	}

	l := zerolog.New(out).
		Level(ParseLevel(opts.Level)).
		With().
		Timestamp().
		Str("service", service).
		Logger()

	mu.Lock()
	instance = l
	mu.Unlock()
	return l
}

// Get returns a copy of the logger installed by Init, or a no-op logger
// before Init.
func Get() *zerolog.Logger {
	mu.RLock()
	l := instance
	mu.RUnlock()
	return &l
}

func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
