package logging

import (
	"regexp"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

// maxPatternLen bounds redaction patterns.
const maxPatternLen = 200

// Config holds logging configuration.
type Config struct {
	Level      zapcore.Level     `koanf:"level" json:"level"`
	Format     string            `koanf:"format" json:"format"`
	Output     OutputConfig      `koanf:"output" json:"output"`
	Sampling   SamplingConfig    `koanf:"sampling" json:"sampling"`
	Caller     CallerConfig      `koanf:"caller" json:"caller"`
	Stacktrace StacktraceConfig  `koanf:"stacktrace" json:"stacktrace"`
	Fields     map[string]string `koanf:"fields" json:"fields,omitempty"`
	Redaction  RedactionConfig   `koanf:"redaction" json:"redaction"`
}

// OutputConfig selects the sinks. Console output goes to stderr so
// command output on stdout stays machine readable.
type OutputConfig struct {
	Console bool `koanf:"console" json:"console"`
	OTEL    bool `koanf:"otel" json:"otel"`
}

// SamplingConfig caps the volume of entries below Error per tick.
type SamplingConfig struct {
	Enabled    bool          `koanf:"enabled" json:"enabled"`
	Tick       time.Duration `koanf:"tick" json:"tick"`
	Initial    int           `koanf:"initial" json:"initial"`
	Thereafter int           `koanf:"thereafter" json:"thereafter"`
}

type CallerConfig struct {
	Enabled bool `koanf:"enabled" json:"enabled"`
	Skip    int  `koanf:"skip" json:"skip"`
}

type StacktraceConfig struct {
	Level zapcore.Level `koanf:"level" json:"level"`
}

// RedactionConfig lists field names and value patterns to mask.
type RedactionConfig struct {
	Enabled  bool     `koanf:"enabled" json:"enabled"`
	Fields   []string `koanf:"fields" json:"fields"`
	Patterns []string `koanf:"patterns" json:"patterns"`
}

// NewDefaultConfig returns JSON console logging at info level.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Output: OutputConfig{Console: true},
		Sampling: SamplingConfig{
			Enabled:    true,
			Tick:       time.Second,
			Initial:    100,
			Thereafter: 10,
		},
		Caller:     CallerConfig{Enabled: true, Skip: 1},
		Stacktrace: StacktraceConfig{Level: zapcore.ErrorLevel},
		Fields:     map[string]string{"service": "vectorindex"},
		Redaction: RedactionConfig{
			Enabled: true,
			Fields: []string{
				"password", "secret", "token", "api_key",
				"authorization", "bearer", "credential",
			},
			Patterns: []string{
				`(?i)bearer\s+\S+`,
				`(?i)api[_-]?key[=:]\s*\S+`,
			},
		},
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return vecerr.Config("logging.format", "must be json or console, got %q", c.Format)
	}
	if !c.Output.Console && !c.Output.OTEL {
		return vecerr.Config("logging.output", "at least one of console or otel must be enabled")
	}
	if c.Sampling.Enabled {
		if c.Sampling.Tick <= 0 {
			return vecerr.Config("logging.sampling.tick", "must be positive when sampling is enabled")
		}
		if c.Sampling.Initial <= 0 {
			return vecerr.Config("logging.sampling.initial", "must be positive, got %d", c.Sampling.Initial)
		}
		if c.Sampling.Thereafter < 0 {
			return vecerr.Config("logging.sampling.thereafter", "must not be negative, got %d", c.Sampling.Thereafter)
		}
	}
	if c.Caller.Enabled && c.Caller.Skip < 0 {
		return vecerr.Config("logging.caller.skip", "must not be negative, got %d", c.Caller.Skip)
	}
	if c.Redaction.Enabled {
		for _, p := range c.Redaction.Patterns {
			if len(p) > maxPatternLen {
				return vecerr.Config("logging.redaction.patterns", "pattern longer than %d characters", maxPatternLen)
			}
			if _, err := regexp.Compile(p); err != nil {
				return vecerr.Config("logging.redaction.patterns", "invalid pattern %q: %v", p, err)
			}
		}
	}
	for k, v := range c.Fields {
		if k == "" {
			return vecerr.Config("logging.fields", "field key must not be empty")
		}
		if v == "" {
			return vecerr.Config("logging.fields", "field %q has an empty value", k)
		}
	}
	return nil
}
