package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger records every entry for assertions.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger returns a logger that keeps all entries at TraceLevel and
// above.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger:   &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		observed: observed,
	}
}

func (t *TestLogger) All() []observer.LoggedEntry {
	return t.observed.All()
}

func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessage(msg)
}

func (t *TestLogger) Reset() {
	t.observed.TakeAll()
}

// AssertLogged fails tb unless an entry at level contains msg.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	for _, e := range t.observed.All() {
		if e.Level == level && strings.Contains(e.Message, msg) {
			return
		}
	}
	tb.Errorf("expected log at %v containing %q, got %+v", level, msg, t.observed.All())
}

// AssertField fails tb unless an entry with message msg has key=expected.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, expected any) {
	tb.Helper()
	for _, e := range t.observed.FilterMessage(msg).All() {
		if v, ok := e.ContextMap()[key]; ok && v == expected {
			return
		}
	}
	tb.Errorf("field %q=%v not found in message %q", key, expected, msg)
}

// AssertNotContains fails tb if any message or string field contains s.
func (t *TestLogger) AssertNotContains(tb testing.TB, s string) {
	tb.Helper()
	for _, e := range t.observed.All() {
		if strings.Contains(e.Message, s) {
			tb.Errorf("message %q contains %q", e.Message, s)
		}
		for _, f := range e.Context {
			if f.Type == zapcore.StringType && strings.Contains(f.String, s) {
				tb.Errorf("field %q contains %q", f.Key, s)
			}
		}
	}
}
