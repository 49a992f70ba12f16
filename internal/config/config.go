// Package config loads the agent configuration from a YAML file with
// optional environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/soofff/boofi/internal/validate"
)

const (
	DefaultListen          = "127.0.0.1:3000"
	DefaultTokenExpiration = 24 * 60 * 60
	DefaultServiceName     = "localhost"
	EnvListen              = "BOOFI_LISTEN"
	EnvTokenTTL            = "BOOFI_TOKEN_TTL"
	EnvJournal             = "BOOFI_JOURNAL"
)

const configFileMode os.FileMode = 0o600

type ServiceType string

const (
	ServiceLocal ServiceType = "local"
	ServiceSSH   ServiceType = "ssh"
)

// Service is one managed endpoint. Its name becomes the first path segment
// of every HTTP route serving it.
type Service struct {
	Name       string      `yaml:"name"`
	Type       ServiceType `yaml:"type"`
	Address    string      `yaml:"address,omitempty"`     // ssh only, host or host:port
	KnownHosts string      `yaml:"known_hosts,omitempty"` // ssh only, empty disables host key checks
}

// SSL names the PEM files used to serve HTTPS.
type SSL struct {
	Certificate string `yaml:"certificate"`
	PrivateKey  string `yaml:"private_key"`
}

type Config struct {
	Listen             string    `yaml:"listen"`
	MaxTokenExpiration int64     `yaml:"max_token_expiration"` // seconds
	SSL                *SSL      `yaml:"ssl,omitempty"`
	Journal            string    `yaml:"journal,omitempty"` // sqlite path, empty disables the journal
	Services           []Service `yaml:"services"`
}

// ValidationError reports a configuration value that cannot be used.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Default returns the configuration written on first start: one local
// service listening on loopback.
func Default() *Config {
	return &Config{
		Listen:             DefaultListen,
		MaxTokenExpiration: DefaultTokenExpiration,
		Services:           []Service{{Name: DefaultServiceName, Type: ServiceLocal}},
	}
}

// Load reads and validates the configuration at path. Keys missing from
// the file keep their defaults; unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrCreate loads path, writing the default configuration there first
// when the file does not exist.
func LoadOrCreate(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		if err := cfg.Save(path); err != nil {
			return nil, err
		}
		log.Printf("[Config] default configuration written to %s", path)
		return cfg, nil
	}
	return Load(path)
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	if err := os.WriteFile(path, data, configFileMode); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// LoadEnvFile exports the variables of a dotenv file that are not already
// set in the process environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load env file %s: %w", path, err)
	}
	log.Printf("[Config] environment loaded from %s", path)
	return nil
}

// ApplyEnv overrides file values with BOOFI_* variables found by lookup,
// usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvListen); ok && v != "" {
		c.Listen = v
	}
	if v, ok := lookup(EnvTokenTTL); ok && v != "" {
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return ValidationError{Field: EnvTokenTTL, Reason: fmt.Sprintf("not a number of seconds: %q", v)}
		}
		c.MaxTokenExpiration = secs
	}
	if v, ok := lookup(EnvJournal); ok {
		c.Journal = v
	}
	return c.Validate()
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.MaxTokenExpiration) * time.Second
}

// Validate checks the listen address, the token lifetime, TLS material
// and every service.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return ValidationError{Field: "listen", Reason: "must not be empty"}
	}
	if c.MaxTokenExpiration <= 0 {
		return ValidationError{Field: "max_token_expiration", Reason: "must be a positive number of seconds"}
	}
	if c.SSL != nil && (c.SSL.Certificate == "" || c.SSL.PrivateKey == "") {
		return ValidationError{Field: "ssl", Reason: "certificate and private_key are both required"}
	}
	if len(c.Services) == 0 {
		return ValidationError{Field: "services", Reason: "at least one service is required"}
	}

	seen := map[string]bool{}
	for i, s := range c.Services {
		field := fmt.Sprintf("services[%d]", i)
		if !validate.Ident(s.Name) {
			return ValidationError{Field: field + ".name", Reason: fmt.Sprintf("invalid service name %q", s.Name)}
		}
		if seen[s.Name] {
			return ValidationError{Field: field + ".name", Reason: fmt.Sprintf("duplicate service name %q", s.Name)}
		}
		seen[s.Name] = true

		switch s.Type {
		case ServiceLocal:
			if s.Address != "" {
				return ValidationError{Field: field + ".address", Reason: "local services take no address"}
			}
		case ServiceSSH:
			if s.Address == "" {
				return ValidationError{Field: field + ".address", Reason: "ssh services need an address"}
			}
		default:
			return ValidationError{Field: field + ".type", Reason: fmt.Sprintf("unknown type %q, want local or ssh", s.Type)}
		}
	}
	return nil
}
