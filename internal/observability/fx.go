package observability

import (
	"github.com/smallbiznis/referral/internal/observability/logger"
	"github.com/smallbiznis/referral/internal/observability/metrics"
	"github.com/smallbiznis/referral/internal/observability/otlp"
	"github.com/smallbiznis/referral/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	gormlogger "gorm.io/gorm/logger"
)

// Module provides the zap logger, the gorm logger, the tracer and meter
// providers, the Prometheus instruments used by the domain services and the
// optional remote_write pusher.
var Module = fx.Module("observability",
	fx.Provide(
		NewConfig,
		func(c Config) logger.Config { return c.logger() },
		func(c Config) tracing.Config { return c.tracing() },
		func(c Config) metrics.Config { return c.metrics() },
		func(c Config) gormlogger.Interface { return c.gormLogger() },
		func(c Config) metrics.RemoteWriteConfig {
			return metrics.RemoteWriteConfig{URL: c.RemoteWriteURL, Token: c.RemoteWriteToken}
		},
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.NewHTTPMetrics,
		metrics.ProvideReferral,
		metrics.ProvideScheduler,
		metrics.NewRemoteWriter,
	),
	// the tracer provider has no consumers in the graph; force it so the
	// global provider and propagator are installed
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)

func (c Config) target() otlp.Target {
	return otlp.Target{Endpoint: c.OTLPEndpoint, Protocol: c.OTLPProtocol}
}

func (c Config) logger() logger.Config {
	return logger.Config{
		Service:     c.ServiceName,
		Environment: c.Environment,
		Version:     c.Version,
		Level:       c.LogLevel,
		Format:      c.LogFormat,
		Debug:       c.Debug(),
	}
}

func (c Config) tracing() tracing.Config {
	return tracing.Config{
		Enabled:       c.OtelEnabled,
		Service:       c.ServiceName,
		Version:       c.Version,
		Environment:   c.Environment,
		Target:        c.target(),
		SamplingRatio: c.SamplingRatio,
	}
}

func (c Config) metrics() metrics.Config {
	return metrics.Config{
		Enabled:     c.OtelEnabled,
		Service:     c.ServiceName,
		Environment: c.Environment,
		Target:      c.target(),
	}
}

func (c Config) gormLogger() gormlogger.Interface {
	level := gormlogger.Warn
	if c.LogLevel == "debug" {
		level = gormlogger.Info
	}
	return logger.NewGormLogger(level, c.SlowQuery)
}
