package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pithecene-io/askstream/adapter/redis"
	"github.com/pithecene-io/askstream/client"
	"github.com/pithecene-io/askstream/store"
	"github.com/pithecene-io/askstream/types"
)

// Config represents an askstream.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	APIBase        string                `yaml:"api_base"`
	Timeout        Duration              `yaml:"timeout"`
	FetchTimeout   Duration              `yaml:"fetch_timeout"`
	LogLevel       string                `yaml:"log_level"`
	KnowledgeBase  string                `yaml:"knowledge_base"`
	KnowledgeBases []types.KnowledgeBase `yaml:"knowledge_bases"`
	Storage        StorageConfig         `yaml:"storage"`
	Adapter        AdapterConfig         `yaml:"adapter"`
}

// StorageConfig holds attachment storage defaults.
type StorageConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds stream_completed notification defaults.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Codec   string            `yaml:"codec,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Adapter types.
const (
	AdapterWebhook = "webhook"
	AdapterRedis   = "redis"
)

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML renders the duration in its string form.
func (d Duration) MarshalYAML() (any, error) {
	if d.Duration == 0 {
		return "", nil
	}
	return d.String(), nil
}

// DefaultKnowledgeBases is the routing table used when the config file
// defines none.
var DefaultKnowledgeBases = []types.KnowledgeBase{
	{
		ID:          "general",
		Name:        "General",
		Description: "Server default corpus",
	},
	{
		ID:          "uploads",
		Name:        "Uploaded documents",
		Description: "Documents attached to earlier questions",
	},
}

// ResolveAPIBase picks the API base: flag, then config file, then the
// ASKSTREAM_API_BASE environment variable, then the built-in default.
func (c *Config) ResolveAPIBase(flag string) string {
	if flag != "" {
		return flag
	}
	if c != nil && c.APIBase != "" {
		return c.APIBase
	}
	if env := os.Getenv(client.APIBaseEnv); env != "" {
		return env
	}
	return client.DefaultAPIBase
}

// KnowledgeBaseTable returns the configured routing targets, or the
// defaults when none are configured.
func (c *Config) KnowledgeBaseTable() []types.KnowledgeBase {
	if c == nil || len(c.KnowledgeBases) == 0 {
		return DefaultKnowledgeBases
	}
	return c.KnowledgeBases
}

// FindKnowledgeBase looks up a routing target by id (case-insensitive).
func (c *Config) FindKnowledgeBase(id string) (types.KnowledgeBase, bool) {
	for _, kb := range c.KnowledgeBaseTable() {
		if strings.EqualFold(kb.ID, id) {
			return kb, true
		}
	}
	return types.KnowledgeBase{}, false
}

// BackendConfig converts storage settings for the store package.
func (s StorageConfig) BackendConfig() store.BackendConfig {
	return store.BackendConfig{
		Backend:      s.Backend,
		Path:         s.Path,
		Region:       s.Region,
		Endpoint:     s.Endpoint,
		UsePathStyle: s.S3PathStyle,
	}
}

// Validate checks cross-field constraints that YAML decoding cannot.
func (c *Config) Validate() error {
	var errs []error

	seen := make(map[string]bool)
	for i, kb := range c.KnowledgeBases {
		id := strings.ToLower(kb.ID)
		switch {
		case id == "":
			errs = append(errs, fmt.Errorf("knowledge_bases[%d]: id is required", i))
		case seen[id]:
			errs = append(errs, fmt.Errorf("knowledge_bases[%d]: duplicate id %q", i, kb.ID))
		}
		seen[id] = true
	}

	if c.Storage != (StorageConfig{}) {
		bc := c.Storage.BackendConfig()
		if err := bc.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	switch c.Adapter.Type {
	case "":
	case AdapterWebhook, AdapterRedis:
		if c.Adapter.URL == "" {
			errs = append(errs, fmt.Errorf("adapter: url is required for %s", c.Adapter.Type))
		}
		if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
			errs = append(errs, errors.New("adapter: retries must be >= 0"))
		}
		if _, err := redis.ParseCodec(c.Adapter.Codec); err != nil {
			errs = append(errs, fmt.Errorf("adapter: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("adapter: unknown type %q (want webhook or redis)", c.Adapter.Type))
	}

	return errors.Join(errs...)
}
