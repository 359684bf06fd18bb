package logging

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

// instrumentationName is the otel logger scope.
const instrumentationName = "github.com/fyrsmithlabs/vectorindex"

// newCore tees the console and OTEL outputs and applies sampling.
func newCore(cfg *Config, otelProvider log.LoggerProvider, console zapcore.WriteSyncer) (zapcore.Core, error) {
	cores := make([]zapcore.Core, 0, 2)

	if cfg.Output.Console {
		encoder, err := NewRedactingEncoder(newEncoder(cfg.Format), cfg.Redaction)
		if err != nil {
			return nil, fmt.Errorf("failed to create redacting encoder: %w", err)
		}
		cores = append(cores, zapcore.NewCore(encoder, console, cfg.Level))
	}
	if cfg.Output.OTEL && otelProvider != nil {
		cores = append(cores, otelzap.NewCore(instrumentationName, otelzap.WithLoggerProvider(otelProvider)))
	}
	if len(cores) == 0 {
		return nil, errors.New("no output available: enable console or provide an otel logger provider")
	}

	core := cores[0]
	if len(cores) > 1 {
		core = zapcore.NewTee(cores...)
	}
	return newSampledCore(core, cfg.Sampling), nil
}
