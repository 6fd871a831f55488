package logging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	apperrors "github.com/turtacn/torsion-fragmenter/pkg/errors"
)

func newTestLogger(t *testing.T) (Logger, *zaptest.Buffer) {
	t.Helper()
	buf := &zaptest.Buffer{}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), buf, zapcore.DebugLevel)
	return &zapLogger{z: zap.New(core)}, buf
}

func TestNewLogger_Formats(t *testing.T) {
	for _, format := range []string{"json", "console", ""} {
		l, err := NewLogger(LogConfig{Level: LevelDebug, Format: format, OutputPaths: []string{"stdout"}})
		require.NoError(t, err, format)
		assert.NotNil(t, l)
	}
}

func TestNewLogger_RejectsEmptyOutputs(t *testing.T) {
	l, err := NewLogger(LogConfig{OutputPaths: []string{}})
	assert.Error(t, err)
	assert.Nil(t, l)
}

func TestNewLogger_RejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"":        LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestZapLogger_LevelsAndFields(t *testing.T) {
	l, buf := newTestLogger(t)
	l.Debug("tagging", Int("rings", 2))
	l.Warn("skipping molecule", Molecule("aspirin"))

	out := buf.String()
	assert.Contains(t, out, `"level":"debug"`)
	assert.Contains(t, out, `"rings":2`)
	assert.Contains(t, out, `"molecule":"aspirin"`)
}

func TestZapLogger_WithContext(t *testing.T) {
	l, buf := newTestLogger(t)
	ctx := WithJobID(WithRequestID(context.Background(), "req-1"), "job-9")
	l.WithContext(ctx).Info("msg")
	assert.Contains(t, buf.String(), `"request_id":"req-1"`)
	assert.Contains(t, buf.String(), `"job_id":"job-9"`)

	assert.Same(t, l, l.WithContext(context.Background()))
}

func TestZapLogger_WithError(t *testing.T) {
	l, buf := newTestLogger(t)
	l.WithError(apperrors.New(apperrors.ErrCodeFragMissingBondOrder, "no weights")).Warn("skip")
	assert.Contains(t, buf.String(), `"error_code":"FRAG_001"`)

	buf.Reset()
	l.WithError(errors.New("plain")).Error("msg")
	assert.Contains(t, buf.String(), `"error":"plain"`)
	assert.NotContains(t, buf.String(), "error_code")

	assert.Same(t, l, l.WithError(nil))
}

func TestSetLevel(t *testing.T) {
	l, err := NewLogger(LogConfig{Level: LevelInfo})
	require.NoError(t, err)
	assert.True(t, SetLevel(l, LevelDebug))
	assert.True(t, SetLevel(l.Named("child"), LevelWarn))
	assert.False(t, SetLevel(NewNopLogger(), LevelDebug))
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	l.Debug("x")
	l.Info("x")
	l.Warn("x")
	l.Error("x")
	assert.Equal(t, l, l.With(String("k", "v")))
	assert.Equal(t, l, l.Named("n"))
	assert.NoError(t, l.Sync())
}

func TestDefault(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	l := NewNopLogger()
	SetDefault(l)
	assert.Equal(t, l, Default())

	SetDefault(nil)
	assert.Equal(t, l, Default())
}
