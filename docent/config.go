package docent

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the YAML-loadable bootstrap configuration. Apply wires it
// into the process-wide defaults, which keeps application startup to a
// config file plus one call:
//
//	uri: mem://local/blog
//	slow_query_ms: 250
//	trace_queries: true
type Config struct {
	// URI is the connection string, e.g. "mem://local/blog" or
	// "file:///var/data/blog".
	URI string `yaml:"uri"`

	// Alias names the connection; empty means the default alias.
	Alias string `yaml:"alias"`

	// SlowQueryMS logs a warning for operations at or above this many
	// milliseconds. Zero disables slow-query logging.
	SlowQueryMS int `yaml:"slow_query_ms"`

	// TraceQueries debug-logs every store operation.
	TraceQueries bool `yaml:"trace_queries"`

	// CaptureEvents buffers query events on the default tracer.
	CaptureEvents bool `yaml:"capture_events"`

	// EncryptionKey is the base64 field-encryption key. Leave empty to
	// keep encryption disabled.
	EncryptionKey string `yaml:"encryption_key"`
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read config: %v", Err, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config: %v", Err, err)
	}
	return &cfg, nil
}

// Apply connects and configures the process-wide defaults from the
// configuration.
func (c *Config) Apply(ctx context.Context) error {
	if c.EncryptionKey != "" {
		if err := defaultEncryption.SetKey(c.EncryptionKey); err != nil {
			return err
		}
	}
	defaultTracer.SetSlowThreshold(time.Duration(c.SlowQueryMS) * time.Millisecond)
	defaultTracer.SetTraceAll(c.TraceQueries)
	defaultTracer.SetCapture(c.CaptureEvents)

	if c.URI != "" {
		alias := c.Alias
		if alias == "" {
			alias = DefaultAlias
		}
		if err := defaultConns.ConnectAlias(ctx, alias, c.URI); err != nil {
			return err
		}
	}
	return nil
}
