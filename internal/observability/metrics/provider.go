package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/referral/internal/observability/otlp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const exportInterval = 10 * time.Second

type Config struct {
	Enabled     bool
	Service     string
	Environment string
	Target      otlp.Target
}

// NewProvider installs the global meter provider. Request instruments are
// pushed over OTLP; domain counters live on the Prometheus registry instead.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := otlp.MetricExporter(context.Background(), cfg.Target)
	if err != nil {
		return nil, fmt.Errorf("metric exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(
		sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval)),
	))
	otel.SetMeterProvider(provider)
	if lc != nil {
		lc.Append(fx.StopHook(provider.Shutdown))
	}

	log.Info("metrics export enabled",
		zap.String("endpoint", cfg.Target.Endpoint),
		zap.String("protocol", cfg.Target.Protocol),
	)
	return provider, nil
}
