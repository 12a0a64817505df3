package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Venue       VenueConfig       `yaml:"venue"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Oracle      OracleConfig      `yaml:"oracle"`
	Auth        AuthConfig        `yaml:"auth"`
	API         APIConfig         `yaml:"api"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// VenueConfig holds venue bootstrap settings.
type VenueConfig struct {
	Admin          string `yaml:"admin"`
	CustodyAccount string `yaml:"custody_account"`
}

// PersistenceConfig holds database settings. The venue state and the token
// ledger live in separate databases.
type PersistenceConfig struct {
	VenuePath  string `yaml:"venue_path"`
	LedgerPath string `yaml:"ledger_path"`
}

// OracleConfig selects and configures the price feed source.
type OracleConfig struct {
	// Mode is one of "static", "chainlink", or "websocket".
	Mode       string        `yaml:"mode"`
	RPCURL     string        `yaml:"rpc_url"`
	WSURL      string        `yaml:"ws_url"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

// AuthConfig selects the request authorizer. Mode "none" allows everything;
// mode "token" checks per-principal shared secrets.
type AuthConfig struct {
	Mode   string            `yaml:"mode"`
	Tokens map[string]string `yaml:"tokens"`
}

// APIConfig holds HTTP API settings.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	// Set defaults
	cfg.setDefaults()

	// Read YAML file if it exists
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if len(data) > 0 {
		// Expand environment variables in YAML content
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	// Apply environment variable overrides
	cfg.applyEnvOverrides()

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for all configuration options.
func (c *Config) setDefaults() {
	c.Venue = VenueConfig{
		CustodyAccount: "venue:custody",
	}
	c.Persistence = PersistenceConfig{
		VenuePath:  "./data/venue.db",
		LedgerPath: "./data/ledger.db",
	}
	c.Oracle = OracleConfig{
		Mode:       "static",
		StaleAfter: 5 * time.Minute,
	}
	c.Auth = AuthConfig{
		Mode: "token",
	}
	c.API = APIConfig{
		ListenAddr: ":8081",
	}
	c.Metrics = MetricsConfig{
		Enabled: true,
		Port:    8080,
		Path:    "/metrics",
	}
	c.Logging = LoggingConfig{
		Level:  "info",
		Format: "json",
	}
}

// applyEnvOverrides applies environment variable overrides to configuration.
func (c *Config) applyEnvOverrides() {
	// Venue config
	if v := os.Getenv("VENUE_ADMIN"); v != "" {
		c.Venue.Admin = v
	}

	// Persistence config
	if v := os.Getenv("VENUE_SQLITE_PATH"); v != "" {
		c.Persistence.VenuePath = v
	}
	if v := os.Getenv("LEDGER_SQLITE_PATH"); v != "" {
		c.Persistence.LedgerPath = v
	}

	// Oracle config
	if v := os.Getenv("ORACLE_MODE"); v != "" {
		c.Oracle.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("ORACLE_RPC_URL"); v != "" {
		c.Oracle.RPCURL = v
	}
	if v := os.Getenv("ORACLE_WS_URL"); v != "" {
		c.Oracle.WSURL = v
	}

	// API config
	if v := os.Getenv("API_LISTEN_ADDR"); v != "" {
		c.API.ListenAddr = v
	}

	// Metrics config
	if v := os.Getenv("METRICS_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil && port > 0 {
			c.Metrics.Port = port
		}
	}

	// Logging config
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

// validate checks that all required configuration values are present and valid.
func (c *Config) validate() error {
	if c.Venue.Admin == "" {
		return fmt.Errorf("venue.admin is required (set VENUE_ADMIN env var)")
	}
	if c.Venue.CustodyAccount == "" {
		return fmt.Errorf("venue.custody_account is required")
	}
	if c.Persistence.VenuePath == "" {
		return fmt.Errorf("persistence.venue_path is required")
	}
	if c.Persistence.LedgerPath == "" {
		return fmt.Errorf("persistence.ledger_path is required")
	}
	if c.Persistence.VenuePath == c.Persistence.LedgerPath {
		return fmt.Errorf("persistence.venue_path and persistence.ledger_path must differ")
	}
	switch c.Oracle.Mode {
	case "static":
	case "chainlink":
		if c.Oracle.RPCURL == "" {
			return fmt.Errorf("oracle.rpc_url is required in chainlink mode (set ORACLE_RPC_URL env var)")
		}
	case "websocket":
		if c.Oracle.WSURL == "" {
			return fmt.Errorf("oracle.ws_url is required in websocket mode (set ORACLE_WS_URL env var)")
		}
	default:
		return fmt.Errorf("oracle.mode must be static, chainlink, or websocket")
	}
	switch c.Auth.Mode {
	case "none":
	case "token":
		if len(c.Auth.Tokens) == 0 {
			return fmt.Errorf("auth.tokens must list at least one principal in token mode")
		}
	default:
		return fmt.Errorf("auth.mode must be none or token")
	}
	if c.API.ListenAddr == "" {
		return fmt.Errorf("api.listen_addr is required")
	}
	if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be a valid port number")
	}
	return nil
}
