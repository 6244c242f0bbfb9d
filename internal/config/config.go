// Package config provides YAML configuration loading and validation for the
// notifyd server.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure for notifyd.
type Config struct {
	// HTTPAddr is the listen address of the REST API and change stream.
	// Defaults to "127.0.0.1:8080".
	HTTPAddr string `yaml:"http_addr"`

	// LogLevel sets the minimum log severity: "debug", "info", "warn", or
	// "error". Defaults to "info" when omitted.
	LogLevel string `yaml:"log_level"`

	Preferences PreferencesConfig `yaml:"preferences"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Grouping    GroupingConfig    `yaml:"grouping"`

	// JournalPath is the mutation journal file. Empty disables the journal.
	JournalPath string `yaml:"journal_path"`

	Auth AuthConfig `yaml:"auth"`
}

// PreferencesConfig selects where the preference document lives.
type PreferencesConfig struct {
	// Backend is one of "memory", "file", "sqlite" or "postgres". Defaults
	// to "memory".
	Backend string `yaml:"backend"`

	// Path is the directory of the file backend or the database file of
	// the sqlite backend.
	Path string `yaml:"path"`

	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn"`

	// Key overrides the storage key of the document.
	Key string `yaml:"key"`
}

// IngestConfig selects and tunes the ingestion channel. Zero values select
// the channel's own defaults.
type IngestConfig struct {
	// Mode is "simulated" (timer-driven demo feed) or "hub" (events pushed
	// through POST /api/v1/notifications). Defaults to "simulated".
	Mode string `yaml:"mode"`

	EventInterval       time.Duration `yaml:"event_interval"`
	HealthInterval      time.Duration `yaml:"health_interval"`
	HiccupProbability   *float64      `yaml:"hiccup_probability"`
	RecoveryProbability *float64      `yaml:"recovery_probability"`
	MaxFailedChecks     int           `yaml:"max_failed_checks"`

	// Gate holds events back while the channel is not live.
	Gate bool `yaml:"gate"`

	// BacklogSize bounds the events a gate holds per subscriber. Defaults
	// to 256.
	BacklogSize int `yaml:"backlog_size"`

	// Seed loads the demo notification list at startup. Defaults to true.
	Seed *bool `yaml:"seed"`
}

// SeedEnabled reports whether the demo list is loaded.
func (c IngestConfig) SeedEnabled() bool {
	return c.Seed == nil || *c.Seed
}

// GroupingConfig tunes the grouping engine. Zero selects the defaults.
type GroupingConfig struct {
	Window  time.Duration `yaml:"window"`
	MinSize int           `yaml:"min_size"`
}

// AuthConfig enables RS256 JWT validation on the API. An empty
// PublicKeyPath disables it.
type AuthConfig struct {
	PublicKeyPath string `yaml:"public_key_path"`
	Issuer        string `yaml:"issuer"`
	Audience      string `yaml:"audience"`
}

// Accepted enumerated values.
var (
	validLogLevels = map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	validBackends = map[string]bool{
		"memory":   true,
		"file":     true,
		"sqlite":   true,
		"postgres": true,
	}
	validModes = map[string]bool{
		"simulated": true,
		"hub":       true,
	}
)

// LoadConfig reads the YAML file at path, unmarshals it into Config, applies
// defaults, and validates all fields. Every validation failure is reported.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %q: %w", path, err)
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: cannot parse %q: %w", path, err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed for %q: %w", path, err)
	}

	return cfg, nil
}

// parse decodes a YAML document whose root must be a mapping. Unknown keys
// are rejected. An empty document yields a zero Config.
func parse(data []byte) (*Config, error) {
	var root yaml.Node
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return &Config{}, nil
		}
		return nil, err
	}
	if len(root.Content) == 0 {
		return &Config{}, nil
	}
	if doc := root.Content[0]; doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: top level must be a mapping of settings", doc.Line)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// applyDefaults fills in zero-value optional fields.
func applyDefaults(cfg *Config) {
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = "127.0.0.1:8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Preferences.Backend == "" {
		cfg.Preferences.Backend = "memory"
	}
	if cfg.Ingest.Mode == "" {
		cfg.Ingest.Mode = "simulated"
	}
	if cfg.Ingest.BacklogSize == 0 {
		cfg.Ingest.BacklogSize = 256
	}
}

// validate checks enumerated fields, backend requirements and numeric
// ranges.
func validate(cfg *Config) error {
	var errs []error

	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q must be one of: debug, info, warn, error", cfg.LogLevel))
	}

	p := cfg.Preferences
	switch {
	case !validBackends[p.Backend]:
		errs = append(errs, fmt.Errorf("preferences.backend %q must be one of: memory, file, sqlite, postgres", p.Backend))
	case (p.Backend == "file" || p.Backend == "sqlite") && p.Path == "":
		errs = append(errs, fmt.Errorf("preferences.path is required for the %s backend", p.Backend))
	case p.Backend == "postgres" && p.DSN == "":
		errs = append(errs, errors.New("preferences.dsn is required for the postgres backend"))
	}

	in := cfg.Ingest
	if !validModes[in.Mode] {
		errs = append(errs, fmt.Errorf("ingest.mode %q must be one of: simulated, hub", in.Mode))
	}
	if in.HealthInterval < 0 {
		errs = append(errs, fmt.Errorf("ingest.health_interval %s must not be negative", in.HealthInterval))
	}
	if p := in.HiccupProbability; p != nil && (*p < 0 || *p > 1) {
		errs = append(errs, fmt.Errorf("ingest.hiccup_probability %v must be within [0, 1]", *p))
	}
	if p := in.RecoveryProbability; p != nil && (*p < 0 || *p > 1) {
		errs = append(errs, fmt.Errorf("ingest.recovery_probability %v must be within [0, 1]", *p))
	}
	if in.BacklogSize < 0 {
		errs = append(errs, fmt.Errorf("ingest.backlog_size %d must not be negative", in.BacklogSize))
	}

	if cfg.Grouping.Window < 0 {
		errs = append(errs, fmt.Errorf("grouping.window %s must not be negative", cfg.Grouping.Window))
	}
	if cfg.Grouping.MinSize < 0 || cfg.Grouping.MinSize == 1 {
		errs = append(errs, fmt.Errorf("grouping.min_size %d must be 0 (default) or at least 2", cfg.Grouping.MinSize))
	}

	if cfg.Auth.PublicKeyPath == "" && (cfg.Auth.Issuer != "" || cfg.Auth.Audience != "") {
		errs = append(errs, errors.New("auth.public_key_path is required when issuer or audience is set"))
	}

	return errors.Join(errs...)
}
