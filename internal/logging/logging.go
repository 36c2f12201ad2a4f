// Package logging builds the service's zap logger and optionally forwards
// error-level entries to Rollbar.
package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/rollbar/rollbar-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dusk-indust/lessonforge/internal/config"
)

// New builds a logger from cfg. When rb.Token is set, entries at error level
// and above are also reported to Rollbar. The returned func flushes both and
// should be deferred by the caller.
func New(cfg config.LogConfig, rb config.RollbarConfig, version string) (*zap.Logger, func(), error) {
	level := zap.NewAtomicLevel()
	name := strings.ToLower(cfg.Level)
	if name == "" {
		name = "info"
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q, using info: %v\n", cfg.Level, err)
		level.SetLevel(zap.InfoLevel)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	encoding := strings.ToLower(cfg.Encoding)
	if encoding != "console" && encoding != "json" {
		encoding = "json"
	}

	output := cfg.OutputPath
	if output == "" {
		output = "stderr"
	}

	zapCfg := zap.Config{
		Level:             level,
		DisableCaller:     true,
		DisableStacktrace: true,
		Encoding:          encoding,
		EncoderConfig:     encoderCfg,
		OutputPaths:       []string{output},
		ErrorOutputPaths:  []string{"stderr"},
	}

	var opts []zap.Option
	if rb.Token != "" {
		rollbar.SetToken(rb.Token)
		rollbar.SetEnvironment(rb.Environment)
		rollbar.SetCodeVersion(version)
		rollbar.SetEnabled(true)
		opts = append(opts, zap.Hooks(RollbarHook(rollbar.Log)))
	}

	logger, err := zapCfg.Build(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: build logger: %w", err)
	}

	flush := func() {
		_ = logger.Sync()
		if rb.Token != "" {
			rollbar.Wait()
		}
	}
	return logger, flush, nil
}

// ReportFunc matches rollbar.Log.
type ReportFunc func(level string, interfaces ...interface{})

// RollbarHook returns a zap hook that reports error, panic and fatal
// entries through report.
func RollbarHook(report ReportFunc) func(zapcore.Entry) error {
	return func(e zapcore.Entry) error {
		if e.Level < zapcore.ErrorLevel {
			return nil
		}
		level := rollbar.ERR
		if e.Level > zapcore.ErrorLevel {
			level = rollbar.CRIT
		}
		report(level, e.Message, map[string]interface{}{
			"logger": e.LoggerName,
			"time":   e.Time,
		})
		return nil
	}
}
