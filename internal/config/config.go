package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// RootDir is the confinement boundary: every served or promoted asset
	// lives under it, and every untrusted path is validated against it.
	RootDir    string `yaml:"root_dir"`
	StagingDir string `yaml:"staging_dir"`
	ListenAddr string `yaml:"listen_addr"`

	Redis   RedisConfig   `yaml:"redis"`
	API     APIConfig     `yaml:"api"`
	APIAuth APIAuthConfig `yaml:"api_auth"`
	Serve   ServeConfig   `yaml:"serve"`
	Source  *SourceConfig `yaml:"source,omitempty"`
	Staging StagingConfig `yaml:"staging"`
	Audit   AuditConfig   `yaml:"audit"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type APIConfig struct {
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
	// TrustProxy enables honoring X-Forwarded-For / X-Real-IP without
	// checking the direct peer IP. Prefer leaving this false and relying
	// on private/loopback proxy checks.
	TrustProxy bool `yaml:"trust_proxy"`
}

type APIAuthConfig struct {
	Token       string `yaml:"token"`
	TokenHeader string `yaml:"token_header"`
	// WriteSecret signs the bearer tokens required by mutating endpoints.
	// Leaving it empty disables the write API entirely.
	WriteSecret   string        `yaml:"write_secret"`
	WriteIssuer   string        `yaml:"write_issuer"`
	WriteTokenTTL time.Duration `yaml:"write_token_ttl"`
}

// ServeConfig restricts which validated relative paths may be served.
// Patterns use doublestar globs; deny wins over allow, and an empty allow
// list permits everything not denied.
type ServeConfig struct {
	Allow []string `yaml:"allow,omitempty"`
	Deny  []string `yaml:"deny,omitempty"`
}

type SourceConfig struct {
	URL      string         `yaml:"url"`
	Branch   string         `yaml:"branch"`
	Schedule string         `yaml:"schedule,omitempty"`
	Auth     *GitAuthConfig `yaml:"auth,omitempty"`
}

type GitAuthConfig struct {
	Type                     string `yaml:"type"`
	SSHKeyPath               string `yaml:"ssh_key_path"`
	SSHKeyEnv                string `yaml:"ssh_key_env"`
	SSHKeyPassphraseEnv      string `yaml:"ssh_key_passphrase_env"`
	SSHKnownHostsPath        string `yaml:"ssh_known_hosts_path"`
	SSHInsecureIgnoreHostKey bool   `yaml:"ssh_insecure_ignore_host_key"`
	HTTPSToken               string `yaml:"https_token"`
	HTTPSTokenEnv            string `yaml:"https_token_env"`
	HTTPSUsername            string `yaml:"https_username"`
}

type StagingConfig struct {
	SweepSchedule string        `yaml:"sweep_schedule,omitempty"`
	MaxAge        time.Duration `yaml:"max_age"`
}

type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxEntries int  `yaml:"max_entries"`
}

const minSweepMaxAge = time.Minute

func Load(path string) (*Config, error) {
	cfg := &Config{
		RootDir:    "./assets",
		StagingDir: "./staging",
		ListenAddr: ":8080",
		Redis: RedisConfig{
			Addr: "localhost:6379",
			DB:   0,
		},
		Staging: StagingConfig{
			MaxAge: 24 * time.Hour,
		},
	}

	if path == "" {
		return applyDefaults(cfg)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// A typo'd path must not silently start the server with default
			// (wide-open) serve rules.
			log.Printf("Config file %s not found, using defaults", path)
			return applyDefaults(cfg)
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return applyDefaults(cfg)
}

func applyDefaults(cfg *Config) (*Config, error) {
	if cfg.RootDir == "" {
		return nil, fmt.Errorf("root_dir must not be empty")
	}
	if cfg.StagingDir == "" {
		cfg.StagingDir = "./staging"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.API.RateLimitPerMinute == 0 {
		cfg.API.RateLimitPerMinute = 60
	}
	if cfg.APIAuth.TokenHeader == "" {
		cfg.APIAuth.TokenHeader = "X-API-Token"
	}
	if cfg.APIAuth.WriteIssuer == "" {
		cfg.APIAuth.WriteIssuer = "assetgate"
	}
	if cfg.APIAuth.WriteTokenTTL == 0 {
		cfg.APIAuth.WriteTokenTTL = time.Hour
	}
	if cfg.Staging.MaxAge == 0 {
		cfg.Staging.MaxAge = 24 * time.Hour
	}
	if cfg.Staging.MaxAge < minSweepMaxAge {
		return nil, fmt.Errorf("staging.max_age must be at least %s", minSweepMaxAge)
	}
	if cfg.Audit.MaxEntries <= 0 {
		cfg.Audit.MaxEntries = 1000
	}
	if cfg.Source != nil && cfg.Source.URL == "" {
		return nil, fmt.Errorf("source.url required when source is configured")
	}

	// The validators need caller-resolved bases; resolve them once at
	// startup rather than on every request.
	rootDir, err := filepath.Abs(cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve root_dir: %w", err)
	}
	cfg.RootDir = rootDir

	stagingDir, err := filepath.Abs(cfg.StagingDir)
	if err != nil {
		return nil, fmt.Errorf("resolve staging_dir: %w", err)
	}
	cfg.StagingDir = stagingDir

	if cfg.StagingDir == cfg.RootDir {
		return nil, fmt.Errorf("staging_dir must differ from root_dir")
	}

	return cfg, nil
}
