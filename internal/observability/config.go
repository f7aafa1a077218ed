package observability

import (
	"strings"
	"time"

	"github.com/smallbiznis/referral/internal/config"
)

// Config is the observability view of the application config, with the
// service identity stamped on every log line, span and metric.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string
	SlowQuery time.Duration

	OtelEnabled   bool
	OTLPEndpoint  string
	OTLPProtocol  string
	SamplingRatio float64

	RemoteWriteURL   string
	RemoteWriteToken string
}

func NewConfig(cfg config.Config) Config {
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = "referral"
	}
	obs := cfg.Observability
	return Config{
		ServiceName:   name,
		Environment:   strings.TrimSpace(cfg.Environment),
		Version:       strings.TrimSpace(cfg.AppVersion),
		LogLevel:      obs.LogLevel,
		LogFormat:     obs.LogFormat,
		SlowQuery:     obs.SlowQuery,
		OtelEnabled:   obs.OtelEnabled,
		OTLPEndpoint:  obs.OTLPEndpoint,
		OTLPProtocol:  obs.OTLPProtocol,
		SamplingRatio: obs.SamplingRatio,

		RemoteWriteURL:   obs.RemoteWriteURL,
		RemoteWriteToken: obs.RemoteWriteToken,
	}
}

// Debug reports whether verbose request logging and stack traces are on.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}
