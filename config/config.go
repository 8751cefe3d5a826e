// Package config resolves the client's build-profile configuration at
// startup. The production profile's type simply has no insecure options:
// the TLS-bypass and server-picker escape hatches exist only on DevOptions,
// which a prod config cannot carry.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile selects the build profile resolved at startup.
type Profile string

const (
	ProfileProd Profile = "prod"
	ProfileDev  Profile = "dev"
)

// ErrInvalid marks any configuration that fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Config is the client's startup configuration.
type Config struct {
	Profile Profile `yaml:"profile"`

	Server  Server      `yaml:"server"`
	Session Session     `yaml:"session"`
	Dev     *DevOptions `yaml:"dev,omitempty"`
}

// Server locates the remote auth service.
type Server struct {
	URL string `yaml:"url"`
}

// Session holds user-facing session preferences.
type Session struct {
	// IdleTimeoutMinutes is the inactivity threshold in whole minutes
	// before the session locks. Zero selects the default.
	IdleTimeoutMinutes int `yaml:"idle_timeout_minutes"`
	// BiometricsEnabled is the biometric re-login opt-in default for a
	// fresh install; once a session exists, the persisted flag wins.
	BiometricsEnabled bool `yaml:"biometrics_enabled"`
}

// DevOptions are development-only escape hatches. They are rejected
// outright under the prod profile rather than hidden behind a flag.
type DevOptions struct {
	// InsecureSkipTLSVerify disables certificate verification for
	// self-signed internal servers.
	InsecureSkipTLSVerify bool `yaml:"insecure_skip_tls_verify"`
	// ServerPicker lists alternative server URLs for the debug chooser.
	ServerPicker []string `yaml:"server_picker"`
}

// IdleTimeout returns the configured idle threshold as a duration.
func (s Session) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutMinutes) * time.Minute
}

// Load reads and validates the YAML configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse validates raw YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Profile {
	case "":
		c.Profile = ProfileProd
	case ProfileProd, ProfileDev:
	default:
		return fmt.Errorf("%w: unknown profile %q", ErrInvalid, c.Profile)
	}

	if c.Profile == ProfileProd && c.Dev != nil {
		return fmt.Errorf("%w: dev options are not allowed under the prod profile", ErrInvalid)
	}
	if c.Server.URL == "" {
		return fmt.Errorf("%w: server.url is required", ErrInvalid)
	}
	if c.Session.IdleTimeoutMinutes < 0 {
		return fmt.Errorf("%w: session.idle_timeout_minutes must not be negative", ErrInvalid)
	}
	return nil
}
