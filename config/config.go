// Package config contains the configuration file of the maven resolver.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"sigs.k8s.io/yaml"

	"ocm.software/open-component-model/bindings/go/maven/cache/persistent"
	"ocm.software/open-component-model/bindings/go/maven/checksum"
	"ocm.software/open-component-model/bindings/go/maven/fetch"
	"ocm.software/open-component-model/bindings/go/maven/repository"
)

var (
	DefaultNegativeTTL  = Duration(time.Minute)
	DefaultMetadataTTL  = Duration(time.Minute)
	DefaultMetadataSize = 256
	DefaultConcurrency  = 16
	DefaultAlgorithm    = checksum.DefaultAlgorithm
	DefaultLogLevel     = "warn"
	DefaultLogFormat    = "text"
)

// LogLevels and LogFormats are the accepted values of the log section.
var (
	LogLevels  = []string{"warn", "debug", "info", "error"}
	LogFormats = []string{"text", "json"}
)

// Duration is a time.Duration that is written as a Go duration string such as "30s" or "168h".
// Plain numbers are read as nanoseconds.
type Duration time.Duration

// NewDuration returns a pointer to d.
func NewDuration(d time.Duration) *Duration {
	v := Duration(d)
	return &v
}

// Value returns the duration, or 0 for nil.
func (d *Duration) Value() time.Duration {
	if d == nil {
		return 0
	}
	return time.Duration(*d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("failed to parse duration: %w", err)
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: must be a duration like 30s, 5m, or nanoseconds number: %w", value, err)
		}
		*d = Duration(tmp)
		return nil
	default:
		return fmt.Errorf("duration must be a duration string or nanoseconds number, got %T", v)
	}
}

// Config is the resolver configuration.
type Config struct {
	// LocalRepository is the root directory of the local file repository.
	// Defaults to the bin directory next to the executable.
	LocalRepository string `json:"localRepository,omitempty"`

	// Repositories are the remote repository base URLs in priority order.
	Repositories []string `json:"repositories,omitempty"`

	Cache    Cache    `json:"cache"`
	HTTP     HTTP     `json:"http"`
	Checksum Checksum `json:"checksum"`
	Log      Log      `json:"log"`
	Metrics  Metrics  `json:"metrics"`

	// Concurrency limits the number of concurrent fetches. 0 means unlimited.
	Concurrency int `json:"concurrency,omitempty"`
}

// Cache configures the resolution caches.
type Cache struct {
	// Path of the persistent cache database.
	Path string `json:"path,omitempty"`
	// Disabled turns off the persistent cache.
	Disabled bool `json:"disabled,omitempty"`
	// TTL of persistent entries.
	TTL *Duration `json:"ttl,omitempty"`
	// NegativeTTL is how long a failed resolution is remembered in memory.
	NegativeTTL *Duration `json:"negativeTTL,omitempty"`
	// MetadataTTL is how long snapshot metadata documents are kept in memory.
	MetadataTTL *Duration `json:"metadataTTL,omitempty"`
	// MetadataSize bounds the number of metadata documents kept in memory.
	MetadataSize int `json:"metadataSize,omitempty"`
}

// HTTP configures the fetch client.
type HTTP struct {
	DialTimeout           *Duration `json:"dialTimeout,omitempty"`
	ResponseHeaderTimeout *Duration `json:"responseHeaderTimeout,omitempty"`
	MaxRedirects          *int      `json:"maxRedirects,omitempty"`
	MaxRetries            *int      `json:"maxRetries,omitempty"`
	UserAgent             string    `json:"userAgent,omitempty"`
}

// Checksum configures artifact verification.
type Checksum struct {
	// Algorithm is the digest algorithm used to verify artifacts.
	Algorithm string `json:"algorithm,omitempty"`
}

// Log configures the logger of the command line tool.
type Log struct {
	Level  string `json:"level,omitempty"`
	Format string `json:"format,omitempty"`
}

// Metrics configures the export of resolver metrics.
type Metrics struct {
	// File receives all metrics in the prometheus text format when a command finishes.
	// Empty disables the export.
	File string `json:"file,omitempty"`
}

// Default returns the configuration used without a configuration file.
func Default() *Config {
	maxRedirects := fetch.DefaultMaxRedirects
	maxRetries := fetch.DefaultMaxRetries
	return &Config{
		Repositories: append([]string(nil), repository.DefaultRemotes...),
		Cache: Cache{
			Path:         DefaultCachePath(),
			TTL:          NewDuration(persistent.DefaultTTL),
			NegativeTTL:  NewDuration(DefaultNegativeTTL.Value()),
			MetadataTTL:  NewDuration(DefaultMetadataTTL.Value()),
			MetadataSize: DefaultMetadataSize,
		},
		HTTP: HTTP{
			DialTimeout:           NewDuration(fetch.DefaultTimeout),
			ResponseHeaderTimeout: NewDuration(fetch.DefaultTimeout),
			MaxRedirects:          &maxRedirects,
			MaxRetries:            &maxRetries,
		},
		Checksum:    Checksum{Algorithm: DefaultAlgorithm},
		Log:         Log{Level: DefaultLogLevel, Format: DefaultLogFormat},
		Concurrency: DefaultConcurrency,
	}
}

// DefaultCachePath returns the location of the persistent cache in the user cache directory.
func DefaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "ocm", "maven", "resolution.db")
}

// Load reads the configuration file at path on top of Default. An empty path yields Default.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML or JSON configuration on top of Default. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs []error
	if c.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency))
	}
	if c.Cache.MetadataSize < 0 {
		errs = append(errs, fmt.Errorf("cache.metadataSize must not be negative, got %d", c.Cache.MetadataSize))
	}
	for name, d := range map[string]*Duration{
		"cache.ttl":                  c.Cache.TTL,
		"cache.negativeTTL":          c.Cache.NegativeTTL,
		"cache.metadataTTL":          c.Cache.MetadataTTL,
		"http.dialTimeout":           c.HTTP.DialTimeout,
		"http.responseHeaderTimeout": c.HTTP.ResponseHeaderTimeout,
	} {
		if d.Value() < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", name, d))
		}
	}
	if _, err := checksum.NewHash(c.Checksum.Algorithm); err != nil {
		errs = append(errs, fmt.Errorf("checksum.algorithm: %w", err))
	}
	if !slices.Contains(LogLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of %v, got %q", LogLevels, c.Log.Level))
	}
	if !slices.Contains(LogFormats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of %v, got %q", LogFormats, c.Log.Format))
	}
	if c.HTTP.MaxRedirects != nil && *c.HTTP.MaxRedirects < 0 {
		errs = append(errs, fmt.Errorf("http.maxRedirects must not be negative, got %d", *c.HTTP.MaxRedirects))
	}
	if c.HTTP.MaxRetries != nil && *c.HTTP.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("http.maxRetries must not be negative, got %d", *c.HTTP.MaxRetries))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
