package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"redfish-mockup-creator/internal/links"
	"redfish-mockup-creator/internal/sanitize"
)

// Auth modes accepted by the service transport.
const (
	AuthNone    = "None"
	AuthBasic   = "Basic"
	AuthSession = "Session"
)

// DefaultDir is the mockup directory used when none is given.
const DefaultDir = "rfMockUpDfltDir"

// Config captures everything a mockup run needs.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Transport TransportConfig `yaml:"transport"`
	Mockup    MockupConfig    `yaml:"mockup"`
	Catalog   SQLConfig       `yaml:"catalog"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServiceConfig identifies the Redfish service and how to authenticate.
type ServiceConfig struct {
	Host      string `yaml:"rhost"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Secure    bool   `yaml:"secure"`
	Auth      string `yaml:"auth"`
	VerifyTLS bool   `yaml:"verify_tls"`
}

// TransportConfig controls HTTP behaviour towards the service.
type TransportConfig struct {
	UserAgent    string            `yaml:"user_agent"`
	Headers      map[string]string `yaml:"headers"`
	Timeout      Duration          `yaml:"timeout"`
	MaxRetries   int               `yaml:"max_retries"`
	RetryBackoff Duration          `yaml:"retry_backoff"`
	MaxBodyBytes int64             `yaml:"max_body_bytes"`
	RateLimit    RateLimitConfig   `yaml:"rate_limit"`
	ProxyURL     string            `yaml:"proxy_url"`
}

// RateLimitConfig applies a token bucket to requests against the service.
type RateLimitConfig struct {
	Requests int      `yaml:"requests"`
	Window   Duration `yaml:"window"`
	Delay    Duration `yaml:"delay"`
}

// MockupConfig controls what is written and how.
type MockupConfig struct {
	Dir               string   `yaml:"dir"`
	Description       string   `yaml:"description"`
	Copyright         string   `yaml:"copyright"`
	Headers           bool     `yaml:"headers"`
	Time              bool     `yaml:"time"`
	MaxLogEntries     int      `yaml:"max_log_entries"`
	ForceFolderRename bool     `yaml:"force_folder_rename"`
	ForbiddenChars    string   `yaml:"forbidden_chars"`
	ExceptionList     []string `yaml:"exception_list"`
	ScrapeMetadata    bool     `yaml:"scrape_metadata"`
	CommandLine       string   `yaml:"-"`
}

// SQLConfig describes the optional catalog database.
type SQLConfig struct {
	Driver          string   `yaml:"driver"`
	DSN             string   `yaml:"dsn"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool     `yaml:"auto_migrate"`
	CreateIfMissing bool     `yaml:"create_if_missing"`
}

// Enabled reports whether a catalog is configured.
func (c SQLConfig) Enabled() bool {
	return c.Driver != "" && c.DSN != ""
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Structured bool   `yaml:"structured"`
	// Quiet suppresses the console summary table.
	Quiet bool `yaml:"quiet"`
}

// Default returns a Config populated with the tool defaults.
func Default() Config {
	return Config{
		Service: ServiceConfig{
			Auth: AuthBasic,
		},
		Transport: TransportConfig{
			UserAgent:    "redfishMockupCreator/1.0",
			Headers:      map[string]string{},
			Timeout:      DurationFrom(20 * time.Second),
			MaxRetries:   2,
			RetryBackoff: DurationFrom(5 * time.Second),
			MaxBodyBytes: 64 * 1024 * 1024,
		},
		Mockup: MockupConfig{
			Dir:            DefaultDir,
			ForbiddenChars: sanitize.DefaultForbidden,
			ExceptionList:  append([]string(nil), links.DefaultExceptions...),
			ScrapeMetadata: true,
		},
		Catalog: SQLConfig{
			AutoMigrate: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads, normalises and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read decodes and normalises a YAML file over the defaults without
// validating it, so callers can layer command line values on top first.
func Read(path string) (*Config, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expand config path: %w", err)
	}
	fh, err := os.Open(expanded)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()

	cfg := Default()
	if err := decodeYAML(fh, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalise(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalise(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// Validate enforces the invariants a run depends on.
func (c Config) Validate() error {
	if c.Service.Host == "" {
		return errors.New("service.rhost must be set")
	}
	if c.Service.User == "" {
		return errors.New("service.user must be set")
	}
	if c.Service.Password == "" {
		return errors.New("service.password must be set")
	}
	switch c.Service.Auth {
	case AuthNone, AuthBasic, AuthSession:
	default:
		return fmt.Errorf("service.auth must be one of %s, %s, %s (got %q)", AuthNone, AuthBasic, AuthSession, c.Service.Auth)
	}
	if c.Mockup.Dir == "" {
		return errors.New("mockup.dir must be set")
	}
	if c.Mockup.MaxLogEntries < 0 {
		return fmt.Errorf("mockup.max_log_entries must be >= 0 (got %d)", c.Mockup.MaxLogEntries)
	}
	if c.Transport.MaxRetries < 0 {
		return fmt.Errorf("transport.max_retries must be >= 0 (got %d)", c.Transport.MaxRetries)
	}
	if c.Transport.MaxBodyBytes <= 0 {
		return fmt.Errorf("transport.max_body_bytes must be > 0 (got %d)", c.Transport.MaxBodyBytes)
	}
	if rl := c.Transport.RateLimit; rl.Requests < 0 {
		return fmt.Errorf("transport.rate_limit.requests must be >= 0 (got %d)", rl.Requests)
	}
	if strings.TrimSpace(c.Transport.UserAgent) == "" {
		return errors.New("transport.user_agent must be set")
	}
	switch c.Catalog.Driver {
	case "", "postgres", "sqlite":
	default:
		return fmt.Errorf("catalog.driver must be postgres or sqlite (got %q)", c.Catalog.Driver)
	}
	if c.Catalog.Driver != "" && c.Catalog.DSN == "" {
		return errors.New("catalog.dsn must be set when catalog.driver is set")
	}
	return nil
}

// Normalise trims values, canonicalises the auth mode and expands the output
// directory.
func (c *Config) Normalise() error {
	c.Service.Host = strings.TrimSpace(c.Service.Host)
	c.Service.User = strings.TrimSpace(c.Service.User)
	c.Service.Auth = canonicalAuth(c.Service.Auth)
	c.Transport.UserAgent = strings.TrimSpace(c.Transport.UserAgent)
	if c.Transport.Headers == nil {
		c.Transport.Headers = make(map[string]string)
	}
	c.Catalog.Driver = strings.ToLower(strings.TrimSpace(c.Catalog.Driver))
	switch c.Catalog.Driver {
	case "postgresql", "pq":
		c.Catalog.Driver = "postgres"
	case "sqlite3":
		c.Catalog.Driver = "sqlite"
	}

	dir, err := homedir.Expand(strings.TrimSpace(c.Mockup.Dir))
	if err != nil {
		return fmt.Errorf("expand mockup.dir: %w", err)
	}
	c.Mockup.Dir = dir
	c.Mockup.ExceptionList = dedupe(c.Mockup.ExceptionList)
	return nil
}

func canonicalAuth(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "none":
		return AuthNone
	case "basic", "":
		return AuthBasic
	case "session":
		return AuthSession
	default:
		return raw
	}
}

// dedupe keeps the first occurrence of each non-empty value in order; the
// exception list is matched by substring so order does not matter, but the
// log output stays stable.
func dedupe(values []string) []string {
	unique := make(map[string]struct{}, len(values))
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := unique[v]; ok {
			continue
		}
		unique[v] = struct{}{}
		cleaned = append(cleaned, v)
	}
	return cleaned
}

// Enabled reports whether request pacing is active.
func (r RateLimitConfig) Enabled() bool {
	return (r.Requests > 0 && !r.Window.IsZero()) || !r.Delay.IsZero()
}
