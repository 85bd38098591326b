package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v2"
)

type App struct {
	Port      int    `yaml:"port"`
	Debug     bool   `yaml:"debug,omitempty"`
	DebugHTTP bool   `yaml:"debug_http,omitempty"` // Log full request/response bodies
	LogLevel  string `yaml:"log_level,omitempty"`  // debug, info, warn, error (default: info)
	LogFile   string `yaml:"log_file,omitempty"`
}

type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	MaxConnectionLifetime        time.Duration `yaml:"max_connection_lifetime"`
	MaxConnectionPoolSize        int           `yaml:"max_connection_pool_size"`
	ConnectionAcquisitionTimeout time.Duration `yaml:"connection_acquisition_timeout"`
	ConnectionTimeout            time.Duration `yaml:"connection_timeout"`
	MaxTransactionRetryTime      time.Duration `yaml:"max_transaction_retry_time"`

	// InitialConnectionAttempts is how many times Open tries the configured
	// credentials. Zero means 2 in debug mode and 8 otherwise.
	InitialConnectionAttempts int           `yaml:"initial_connection_attempts"`
	RetryBackoff              time.Duration `yaml:"retry_backoff"`
	FallbackToDefault         bool          `yaml:"fallback_to_default"`
}

// GetDefaults returns Neo4jConfig with default values applied
func (c *Neo4jConfig) GetDefaults(debug bool) Neo4jConfig {
	result := *c
	if result.URI == "" {
		result.URI = "bolt://localhost:7687"
	}
	if result.MaxConnectionLifetime == 0 {
		result.MaxConnectionLifetime = time.Hour
	}
	if result.MaxConnectionPoolSize == 0 {
		result.MaxConnectionPoolSize = 50
	}
	if result.ConnectionAcquisitionTimeout == 0 {
		result.ConnectionAcquisitionTimeout = 60 * time.Second
	}
	if result.ConnectionTimeout == 0 {
		result.ConnectionTimeout = 15 * time.Second
	}
	if result.MaxTransactionRetryTime == 0 {
		result.MaxTransactionRetryTime = 15 * time.Second
	}
	if result.InitialConnectionAttempts == 0 {
		if debug {
			result.InitialConnectionAttempts = 2
		} else {
			result.InitialConnectionAttempts = 8
		}
	}
	if result.RetryBackoff == 0 {
		result.RetryBackoff = time.Second
	}
	return result
}

type OGMConfig struct {
	// CreatePropertyIfNotFound lets Update write a property the instance
	// does not carry yet. When false such updates only log a warning.
	CreatePropertyIfNotFound bool `yaml:"create_property_if_not_found"`
}

type SFTPConfig struct {
	Host                 string `yaml:"host"`
	Port                 int    `yaml:"port"`
	User                 string `yaml:"user"`
	Password             string `yaml:"password"`
	PrivateKeyPath       string `yaml:"private_key_path"`
	PrivateKeyPassphrase string `yaml:"private_key_passphrase"`
	KnownHosts           string `yaml:"known_hosts"`
	Root                 string `yaml:"root"`     // Remote directory files are stored under
	PullURL              string `yaml:"pull_url"` // Public base URL serving Root
	LocalDir             string `yaml:"local_dir"` // When set, files go to a local directory instead of SFTP
}

// Enabled reports whether any file store is configured.
func (c *SFTPConfig) Enabled() bool {
	return c.Host != "" || c.LocalDir != ""
}

// GetDefaults returns SFTPConfig with default values applied
func (c *SFTPConfig) GetDefaults() SFTPConfig {
	result := *c
	if result.Port == 0 {
		result.Port = 22
	}
	if result.Root == "" {
		result.Root = "/"
	}
	return result
}

type CDNConfig struct {
	Enabled      bool   `yaml:"enabled"`
	APIURL       string `yaml:"api_url"`
	ResourceID   string `yaml:"resource_id"`
	APIKey       string `yaml:"api_key"`
	MaxBatchSize int    `yaml:"max_batch_size"` // Paths per purge request (default: 2000)
	Concurrency  int    `yaml:"concurrency"`    // Purge requests in flight (default: 4)
}

// GetDefaults returns CDNConfig with default values applied
func (c *CDNConfig) GetDefaults() CDNConfig {
	result := *c
	if result.APIURL == "" {
		result.APIURL = "https://api.cdn77.com"
	}
	if result.MaxBatchSize == 0 {
		result.MaxBatchSize = 2000
	}
	if result.Concurrency == 0 {
		result.Concurrency = 4
	}
	return result
}

type Config struct {
	App   App         `yaml:"app"`
	Neo4j Neo4jConfig `yaml:"neo4j"`
	OGM   OGMConfig   `yaml:"ogm"`
	SFTP  SFTPConfig  `yaml:"sftp"`
	CDN   CDNConfig   `yaml:"cdn"`
}

var (
	reBraces = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)
	reSimple = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
)

// expandEnvVars expands environment variables in the given string
// Supports formats: ${VAR}, $VAR, ${VAR:-default}
func expandEnvVars(s string) string {
	s = reBraces.ReplaceAllStringFunc(s, func(match string) string {
		parts := reBraces.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if val, ok := os.LookupEnv(parts[1]); ok {
			return val
		}
		if len(parts) >= 4 {
			return parts[3]
		}
		return ""
	})

	// Unset $VAR references are left untouched
	return reSimple.ReplaceAllStringFunc(s, func(match string) string {
		if val, ok := os.LookupEnv(match[1:]); ok {
			return val
		}
		return match
	})
}

// Parse decodes YAML config data after environment expansion.
func Parse(data []byte) (*Config, error) {
	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.Neo4j = cfg.Neo4j.GetDefaults(cfg.App.Debug)
	cfg.SFTP = cfg.SFTP.GetDefaults()
	cfg.CDN = cfg.CDN.GetDefaults()
	if cfg.App.Port == 0 {
		cfg.App.Port = 8080
	}
	return &cfg, nil
}

func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

func validate(cfg *Config) error {
	if cfg.Neo4j.InitialConnectionAttempts < 0 {
		return fmt.Errorf("neo4j.initial_connection_attempts must not be negative")
	}
	if cfg.CDN.Enabled && (cfg.CDN.ResourceID == "" || cfg.CDN.APIKey == "") {
		return fmt.Errorf("cdn: enabled but resource_id or api_key is missing")
	}
	if cfg.SFTP.Host != "" && cfg.SFTP.LocalDir != "" {
		return fmt.Errorf("sftp: host and local_dir are mutually exclusive")
	}
	if cfg.SFTP.Host != "" && cfg.SFTP.Password == "" && cfg.SFTP.PrivateKeyPath == "" {
		return fmt.Errorf("sftp '%s': password or private_key_path is required", cfg.SFTP.Host)
	}
	return nil
}
