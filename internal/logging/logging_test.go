package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rollbar/rollbar-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dusk-indust/lessonforge/internal/config"
)

func TestNew_WritesJSONToOutputPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, flush, err := New(config.LogConfig{Level: "debug", Encoding: "json", OutputPath: path}, config.RollbarConfig{}, "test")
	require.NoError(t, err)

	logger.Named("orchestrator").Debug("phase started", zap.String("phase", "tos"))
	flush()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"phase started"`)
	assert.Contains(t, string(data), `"logger":"orchestrator"`)
	assert.Contains(t, string(data), `"level":"DEBUG"`)
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, flush, err := New(config.LogConfig{Level: "chatty", OutputPath: path}, config.RollbarConfig{}, "test")
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("shown")
	flush()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestRollbarHook_ReportsOnlyErrorsAndAbove(t *testing.T) {
	type report struct {
		level string
		msg   string
	}
	var got []report
	hook := RollbarHook(func(level string, args ...interface{}) {
		got = append(got, report{level: level, msg: args[0].(string)})
	})

	require.NoError(t, hook(zapcore.Entry{Level: zapcore.InfoLevel, Message: "ok"}))
	require.NoError(t, hook(zapcore.Entry{Level: zapcore.WarnLevel, Message: "meh"}))
	require.NoError(t, hook(zapcore.Entry{Level: zapcore.ErrorLevel, Message: "persist failed"}))
	require.NoError(t, hook(zapcore.Entry{Level: zapcore.DPanicLevel, Message: "bad"}))

	assert.Equal(t, []report{
		{level: rollbar.ERR, msg: "persist failed"},
		{level: rollbar.CRIT, msg: "bad"},
	}, got)
}
