// Package otlp builds trace and metric exporters for a single collector target.
package otlp

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Target is the collector both signals are shipped to.
type Target struct {
	Endpoint string
	Protocol string
}

// overHTTP reports whether the target speaks OTLP/HTTP. Empty means gRPC.
func (t Target) overHTTP() (bool, error) {
	switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
	case "", "grpc", "grpc/protobuf":
		return false, nil
	case "http", "http/protobuf":
		return true, nil
	}
	return false, fmt.Errorf("unsupported OTLP protocol %q", t.Protocol)
}

func (t Target) endpoint() string {
	return strings.TrimSpace(t.Endpoint)
}

func TraceExporter(ctx context.Context, t Target) (sdktrace.SpanExporter, error) {
	useHTTP, err := t.overHTTP()
	if err != nil {
		return nil, err
	}
	if useHTTP {
		opts := []otlptracehttp.Option{otlptracehttp.WithInsecure()}
		if ep := t.endpoint(); ep != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(ep))
		}
		return otlptracehttp.New(ctx, opts...)
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithInsecure()}
	if ep := t.endpoint(); ep != "" {
		opts = append(opts, otlptracegrpc.WithEndpoint(ep))
	}
	return otlptracegrpc.New(ctx, opts...)
}

func MetricExporter(ctx context.Context, t Target) (sdkmetric.Exporter, error) {
	useHTTP, err := t.overHTTP()
	if err != nil {
		return nil, err
	}
	if useHTTP {
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if ep := t.endpoint(); ep != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(ep))
		}
		return otlpmetrichttp.New(ctx, opts...)
	}
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
	if ep := t.endpoint(); ep != "" {
		opts = append(opts, otlpmetricgrpc.WithEndpoint(ep))
	}
	return otlpmetricgrpc.New(ctx, opts...)
}
