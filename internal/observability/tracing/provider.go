package tracing

import (
	"context"
	"fmt"

	"github.com/smallbiznis/referral/internal/observability/otlp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	Enabled       bool
	Service       string
	Version       string
	Environment   string
	Target        otlp.Target
	SamplingRatio float64
}

// sampler keeps the upstream decision and samples new roots by ratio.
// Out-of-range ratios sample everything.
func (c Config) sampler() sdktrace.Sampler {
	if !c.Enabled {
		return sdktrace.NeverSample()
	}
	ratio := c.SamplingRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

func (c Config) resource() *resource.Resource {
	return resource.NewSchemaless(
		attribute.String("service.name", c.Service),
		attribute.String("service.version", c.Version),
		attribute.String("deployment.environment", c.Environment),
	)
}

// NewProvider installs the global tracer provider and W3C propagation. With
// tracing disabled spans are still created for log correlation but never sampled.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (*sdktrace.TracerProvider, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(cfg.resource()),
		sdktrace.WithSampler(cfg.sampler()),
	}
	if cfg.Enabled {
		exporter, err := otlp.TraceExporter(context.Background(), cfg.Target)
		if err != nil {
			return nil, fmt.Errorf("trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)

	if cfg.Enabled {
		if lc != nil {
			lc.Append(fx.StopHook(provider.Shutdown))
		}
		log.Info("tracing enabled",
			zap.String("endpoint", cfg.Target.Endpoint),
			zap.String("protocol", cfg.Target.Protocol),
		)
	}
	return provider, nil
}

// ExtractContext pulls upstream trace context out of carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

var blockedAttributeKeys = map[attribute.Key]struct{}{
	"referred_identity": {},
	"referral_code":     {},
	"authorization":     {},
}

// SafeAttributes drops attributes that could carry personal data or secrets.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, blocked := blockedAttributeKeys[attr.Key]; blocked {
			continue
		}
		out = append(out, attr)
	}
	return out
}

type redactedError struct {
	kind string
}

func (e redactedError) Error() string { return e.kind }

// SafeError keeps the error class but strips its message, which may embed user input.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	return redactedError{kind: fmt.Sprintf("%T", err)}
}

func Tracer(name string) trace.Tracer {
	return otel.Tracer("referral/" + name)
}
