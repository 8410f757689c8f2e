// Package logging builds the zap loggers handed to engines and workers.
//
// Libraries never reach for a global logger. Every constructor takes a
// *zap.Logger through an option and falls back to zap.NewNop().
package logging

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the encoder and level.
type Options struct {
	// Verbose enables debug-level output.
	Verbose bool
	// JSON selects the production JSON encoder instead of the console one.
	JSON bool
	// Writer receives log output. Required.
	Writer io.Writer
}

// New builds a logger writing to opts.Writer.
func New(opts Options) *zap.Logger {
	level := zap.InfoLevel
	if opts.Verbose {
		level = zap.DebugLevel
	}

	var encoder zapcore.Encoder
	if opts.JSON {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.TimeKey = ""
		encoder = zapcore.NewConsoleEncoder(cfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(opts.Writer), level)
	return zap.New(core)
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
