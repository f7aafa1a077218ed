package logger

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Service     string
	Environment string
	Version     string
	Level       string
	Format      string

	// Debug adds caller and error stack traces.
	Debug bool

	// Sampling keeps the first N entries per message each second, then every Mth.
	SampleFirst      int
	SampleThereafter int
}

func (c Config) encoder() zapcore.Encoder {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	if strings.EqualFold(c.Format, "console") {
		return zapcore.NewConsoleEncoder(enc)
	}
	return zapcore.NewJSONEncoder(enc)
}

// New builds the process logger, installs it as the zap global and flushes it on stop.
func New(lc fx.Lifecycle, cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	first, thereafter := cfg.SampleFirst, cfg.SampleThereafter
	if first <= 0 {
		first = 100
	}
	if thereafter <= 0 {
		thereafter = 100
	}
	core := zapcore.NewSamplerWithOptions(
		zapcore.NewCore(cfg.encoder(), zapcore.Lock(os.Stdout), level),
		time.Second, first, thereafter,
	)

	service := strings.TrimSpace(cfg.Service)
	if service == "" {
		service = "referral"
	}
	opts := []zap.Option{
		zap.ErrorOutput(zapcore.Lock(os.Stderr)),
		zap.Fields(
			zap.String("service", service),
			zap.String("env", cfg.Environment),
			zap.String("version", cfg.Version),
		),
	}
	if cfg.Debug {
		opts = append(opts, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	}

	log := zap.New(core, opts...)
	zap.ReplaceGlobals(log)

	if lc != nil {
		lc.Append(fx.StopHook(func(context.Context) error {
			// stdout sync fails on some terminals; nothing to do about it
			_ = log.Sync()
			return nil
		}))
	}
	return log, nil
}
