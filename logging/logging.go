// Package logging sets up the package-scoped *zap.Logger instances the
// pipeline stages use, following the teacher's pattern of named loggers per
// concern (decoder/*.go's decoderLog, decoder/stream/tcpConnection.go's
// streamLog and reassemblyLog).
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is shared by every logger this package creates so config.Watch can
// adjust verbosity for the whole pipeline at once.
var Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// New builds a *zap.Logger for component, named the way the teacher names
// its package-level loggers (e.g. "decoder", "stream", "reassembly").
func New(component string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = Level
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		// Logger construction failing means the process cannot observe
		// itself; there is nothing sensible left to do but fall back to a
		// no-op logger so callers never have to nil-check.
		logger = zap.NewNop()
	}

	return logger.Named(component)
}

// Pipeline, Fsm and Ingress are the module's package-scoped loggers, used
// the same way decoderLog/streamLog/reassemblyLog are used directly at call
// sites throughout the teacher rather than threaded through every function
// call.
var (
	Pipeline = New("pipeline")
	Fsm      = New("fsm")
	Ingress  = New("ingress")
)
