package config

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/otel/attribute"
)

const defaultOTLPEndpoint = "localhost:4318"

// OTELConfig holds the standard OTEL_* exporter variables.
type OTELConfig struct {
	ServiceName        string `env:"OTEL_SERVICE_NAME" envDefault:"atop-lifetimes"`
	ResourceAttributes string `env:"OTEL_RESOURCE_ATTRIBUTES"`
	ExporterEndpoint   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TracesEndpoint     string `env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"`
	// Insecure applies to endpoints given without a scheme.
	Insecure bool              `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	Headers  map[string]string `env:"OTEL_EXPORTER_OTLP_HEADERS" envKeyValSeparator:"="`
}

// Exporter is the resolved OTLP/HTTP destination.
type Exporter struct {
	Host     string
	URLPath  string // empty keeps the exporter default, /v1/traces
	Insecure bool
}

// ParseOTELConfig reads the OTEL_* variables.
func ParseOTELConfig() (*OTELConfig, error) {
	var cfg OTELConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse OTEL config: %w", err)
	}
	return &cfg, nil
}

// Exporter resolves the trace endpoint. The traces endpoint wins over the
// generic one and is used verbatim; a path on the generic endpoint gets
// v1/traces appended.
func (c *OTELConfig) Exporter() (Exporter, error) {
	raw, signal := c.TracesEndpoint, true
	if raw == "" {
		raw, signal = c.ExporterEndpoint, false
	}
	if raw == "" {
		return Exporter{Host: defaultOTLPEndpoint, Insecure: c.Insecure}, nil
	}
	if !strings.Contains(raw, "://") {
		return Exporter{Host: raw, Insecure: c.Insecure}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Exporter{}, fmt.Errorf("invalid OTLP endpoint %q: %w", raw, err)
	}
	exp := Exporter{Host: u.Host}
	switch u.Scheme {
	case "http":
		exp.Insecure = true
	case "https":
	default:
		return Exporter{}, fmt.Errorf("invalid OTLP endpoint %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.Path != "" && u.Path != "/" {
		exp.URLPath = u.Path
		if !signal {
			exp.URLPath = path.Join(u.Path, "v1/traces")
		}
	}
	return exp, nil
}

// Resource parses OTEL_RESOURCE_ATTRIBUTES (key1=value1,key2=value2).
// Malformed pairs are skipped.
func (c *OTELConfig) Resource() []attribute.KeyValue {
	if c.ResourceAttributes == "" {
		return nil
	}

	var attrs []attribute.KeyValue
	for _, pair := range strings.Split(c.ResourceAttributes, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		attrs = append(attrs, attribute.String(key, strings.TrimSpace(value)))
	}
	return attrs
}
