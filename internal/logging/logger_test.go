package logging

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fyrsmithlabs/todorun/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLevelFromString(t *testing.T) {
	lvl, err := LevelFromString("trace")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, lvl)

	lvl, err = LevelFromString("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, lvl)

	_, err = LevelFromString("loud")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		logger, err := NewLogger(NewDefaultConfig(), nil)
		require.NoError(t, err)
		assert.True(t, logger.Enabled(zapcore.InfoLevel))
		assert.False(t, logger.Enabled(zapcore.DebugLevel))
	})

	t.Run("invalid format", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Format = "xml"
		_, err := NewLogger(cfg, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "format")
	})

	t.Run("no outputs", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Output.Stream = ""
		_, err := NewLogger(cfg, nil)
		assert.Error(t, err)
	})
}

func TestFromSettings(t *testing.T) {
	cfg, err := FromSettings(config.LoggingConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)

	_, err = FromSettings(config.LoggingConfig{Level: "shouting"})
	assert.Error(t, err)
}

func TestContextFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ContextFields(ctx))

	ctx = WithSessionID(ctx, "8a1f-session")
	ctx = WithRequestID(ctx, "req_42")
	ctx = WithTaskID(ctx, 3)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx = trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	keys := map[string]bool{}
	for _, f := range ContextFields(ctx) {
		keys[f.Key] = true
	}
	for _, want := range []string{"trace_id", "span_id", "session.id", "request.id", "task.id"} {
		assert.True(t, keys[want], "missing %s", want)
	}
}

func TestWithRequestID_DropsInvalid(t *testing.T) {
	ctx := WithRequestID(context.Background(), "bad id\nwith newline")
	assert.Empty(t, RequestIDFromContext(ctx))

	ctx = WithSessionID(context.Background(), "")
	assert.Empty(t, SessionIDFromContext(ctx))
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Info(ctx, "from ctx")
	tl.AssertLogged(t, zapcore.InfoLevel, "from ctx")
}

func TestRedactingEncoder(t *testing.T) {
	enc, err := NewRedactingEncoder(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "call"}, []zapcore.Field{
		zap.String("api_key", "sk-abcdefabcdefabcdef12"),
		zap.String("header", "Bearer abc.def"),
		zap.String("model", "gpt-4o-mini"),
	})
	require.NoError(t, err)

	out := buf.String()
	assert.NotContains(t, out, "sk-abcdef")
	assert.NotContains(t, out, "abc.def")
	assert.Contains(t, out, `"api_key":"[REDACTED]"`)
	assert.Contains(t, out, `"header":"[REDACTED:pattern]"`)
	assert.Contains(t, out, `"model":"gpt-4o-mini"`)
}

func TestSecretField(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	logger := &Logger{zap: zap.New(core), config: NewDefaultConfig()}

	logger.Info(context.Background(), "configured", Secret("api_key", config.Secret("sk-123456")))

	entries := observed.All()
	require.Len(t, entries, 1)
	m := zapcore.NewMapObjectEncoder()
	for _, f := range entries[0].Context {
		f.AddTo(m)
	}
	assert.Equal(t, map[string]interface{}{"api_key": "[REDACTED:9]"}, m.Fields["api_key"])
}

func TestSampledCore_ErrorsNeverSampled(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	cfg := NewDefaultConfig().Sampling
	cfg.Initial = 1
	cfg.Thereafter = 0

	logger := zap.New(newSampledCore(core, cfg))
	for i := 0; i < 5; i++ {
		logger.Info("repeated")
		logger.Error("boom")
	}

	assert.Equal(t, 1, observed.FilterMessage("repeated").Len())
	assert.Equal(t, 5, observed.FilterMessage("boom").Len())
}

func TestTestLogger(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithSessionID(context.Background(), "s1")

	tl.Trace(ctx, "very verbose")
	tl.Info(ctx, "run finished", zap.String("exit_reason", "completed"))

	tl.AssertLogged(t, TraceLevel, "very verbose")
	tl.AssertField(t, "run finished", "exit_reason", "completed")
	tl.AssertField(t, "run finished", "session.id", "s1")
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "run finished")
	tl.AssertNoSecrets(t)

	tl.Reset()
	assert.Empty(t, tl.All())
}

type recordingTB struct {
	testing.TB
	failures []string
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Errorf(format string, args ...any) {
	r.failures = append(r.failures, fmt.Sprintf(format, args...))
}

func TestTestLogger_ReportsFailures(t *testing.T) {
	tl := NewTestLogger()
	tl.Info(context.Background(), "connecting with sk-abcdefghijklmnopqrstu",
		zap.String("api_key", "plain"),
		zap.Int("attempt", 2),
	)

	rec := &recordingTB{TB: t}
	tl.AssertField(rec, "connecting", "attempt", int64(2))
	tl.AssertLogged(rec, zapcore.InfoLevel, "connecting")
	require.Empty(t, rec.failures)

	tl.AssertLogged(rec, zapcore.ErrorLevel, "connecting")
	tl.AssertNotLogged(rec, zapcore.InfoLevel, "connecting")
	tl.AssertField(rec, "connecting", "attempt", int64(3))
	assert.Len(t, rec.failures, 3)

	rec.failures = nil
	tl.AssertNoSecrets(rec)
	require.Len(t, rec.failures, 2)
	assert.Contains(t, rec.failures[0], "in message")
	assert.Contains(t, rec.failures[1], `sensitive field "api_key" not redacted`)
}

func TestConfig_SamplingTick(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.Equal(t, time.Second, cfg.Sampling.Tick)

	cfg.Sampling.Tick = 0
	assert.Error(t, cfg.Validate())

	cfg.Sampling.Enabled = false
	assert.NoError(t, cfg.Validate())
}
