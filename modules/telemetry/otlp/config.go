package otlp

import (
	"fmt"
	"net/url"
	"strings"
)

const defaultServiceName = "snapkeep"

// Config holds the telemetry.otlp module configuration.
type Config struct {
	// Endpoint is the OTLP/HTTP collector URL, e.g. "http://localhost:4318".
	// Empty disables export.
	Endpoint string `yaml:"endpoint"`

	// AuthToken is sent as a Basic authorization header when set.
	AuthToken string `yaml:"auth_token"`

	// SampleRate is the fraction of traces kept. 0 never samples, 1 or
	// more always samples. Defaults to 1.
	SampleRate *float64 `yaml:"sample_rate"`

	// ServiceName is reported as service.name. Defaults to "snapkeep".
	ServiceName string `yaml:"service_name"`
}

func (c *Config) defaults() {
	if c.SampleRate == nil {
		r := 1.0
		c.SampleRate = &r
	}
	if c.ServiceName == "" {
		c.ServiceName = defaultServiceName
	}
}

func (c *Config) validate() error {
	if c.SampleRate != nil && *c.SampleRate < 0 {
		return fmt.Errorf("otlp: sample_rate must be non-negative, got %v", *c.SampleRate)
	}
	if c.Endpoint == "" {
		return nil
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("otlp: parse endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("otlp: endpoint scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("otlp: endpoint %q has no host", c.Endpoint)
	}
	return nil
}

// endpoint is the parsed collector address.
type endpoint struct {
	host     string
	basePath string
	insecure bool
	headers  map[string]string
}

func parseEndpoint(cfg Config) (endpoint, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return endpoint{}, fmt.Errorf("otlp: parse endpoint: %w", err)
	}
	headers := make(map[string]string)
	if cfg.AuthToken != "" {
		headers["Authorization"] = "Basic " + cfg.AuthToken
	}
	return endpoint{
		host:     u.Host,
		basePath: strings.TrimSuffix(u.Path, "/"),
		insecure: u.Scheme == "http",
		headers:  headers,
	}, nil
}
