package logging

import (
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger is a Logger that keeps every entry in memory, down to TraceLevel.
type TestLogger struct {
	*Logger
	logs *observer.ObservedLogs
}

// NewTestLogger returns a recording logger with the default config.
func NewTestLogger() *TestLogger {
	core, logs := observer.New(TraceLevel)
	return &TestLogger{
		Logger: &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		logs:   logs,
	}
}

// All returns the recorded entries.
func (t *TestLogger) All() []observer.LoggedEntry {
	return t.logs.All()
}

// Reset drops the recorded entries.
func (t *TestLogger) Reset() {
	t.logs.TakeAll()
}

func (t *TestLogger) matching(level zapcore.Level, msg string) int {
	return t.logs.Filter(func(e observer.LoggedEntry) bool {
		return e.Level == level && strings.Contains(e.Message, msg)
	}).Len()
}

func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	if t.matching(level, msg) == 0 {
		tb.Errorf("no %s entry containing %q among %d entries", level, msg, t.logs.Len())
	}
}

func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	if n := t.matching(level, msg); n > 0 {
		tb.Errorf("%d unexpected %s entries containing %q", n, level, msg)
	}
}

// AssertField checks that some entry with message msg carries key=want.
// Integer fields compare as int64.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, want any) {
	tb.Helper()
	for _, e := range t.logs.FilterMessage(msg).All() {
		if got, ok := e.ContextMap()[key]; ok && reflect.DeepEqual(got, want) {
			return
		}
	}
	tb.Errorf("no %q entry with %s=%v", msg, key, want)
}

// AssertNoSecrets applies the default redaction rules to what was recorded:
// no message or string field may match a secret pattern, and string fields
// under a sensitive key must already be redacted.
func (t *TestLogger) AssertNoSecrets(tb testing.TB) {
	tb.Helper()
	rules, err := NewRedactingEncoder(nil, NewDefaultConfig().Redaction)
	if err != nil {
		tb.Fatalf("redaction rules: %v", err)
	}
	check := func(where, s string) {
		for _, re := range rules.redactRegex {
			if re.MatchString(s) {
				tb.Errorf("secret pattern %s in %s: %q", re, where, s)
			}
		}
	}

	for _, e := range t.logs.All() {
		check("message", e.Message)
		for key, v := range e.ContextMap() {
			s, ok := v.(string)
			if !ok {
				continue
			}
			check("field "+key, s)
			if s != "" && rules.shouldRedactKey(key) && !strings.HasPrefix(s, "[REDACTED") {
				tb.Errorf("sensitive field %q not redacted", key)
			}
		}
	}
}
