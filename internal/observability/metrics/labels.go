package metrics

import (
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
)

var allowedLabelKeys = map[attribute.Key]struct{}{
	"method":      {},
	"route":       {},
	"status_code": {},
	"tier":        {},
	"mode":        {},
	"channel":     {},
	"reason":      {},
}

// FilterAttributes strips labels outside the allow list. Identities and ids
// never become metric labels.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; ok {
			filtered = append(filtered, attr)
		}
	}
	return filtered
}

func serviceName(cfg Config) string {
	if name := strings.TrimSpace(cfg.Service); name != "" {
		return name
	}
	return "referral"
}

func constLabels(cfg Config) prometheus.Labels {
	env := strings.TrimSpace(cfg.Environment)
	if env == "" {
		env = "unknown"
	}
	return prometheus.Labels{"service": serviceName(cfg), "env": env}
}

// register adds c to r, or returns the collector already registered under the
// same descriptor. Several fx apps in one process share the default registry.
func register[T prometheus.Collector](r prometheus.Registerer, c T) T {
	if r == nil {
		r = prometheus.DefaultRegisterer
	}
	err := r.Register(c)
	if err == nil {
		return c
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(T); ok {
			return existing
		}
	}
	panic(err)
}
