package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultScanIntervalSeconds  = 30
	DefaultScoreTTLSeconds      = 300
	DefaultOracleTimeoutSeconds = 10
	DefaultScorerBaseURL        = "http://localhost:9490"
	DefaultPrincipal            = "netsel"
	DefaultAPIListenAddr        = "127.0.0.1:9491"
	DefaultInterface            = "wlan0"
)

// Config holds the daemon configuration.
type Config struct {
	StateDir   string
	DBPath     string
	ConfigPath string

	Interface    string
	FixturePath  string
	ScanInterval time.Duration

	ScorerBaseURL  string
	OracleTimeout  time.Duration
	ScoreTTL       time.Duration
	AllowUntrusted bool
	Principal      string

	APIEnabled    bool
	APIListenAddr string

	LogLevel string
	LogFile  string
}

type fileConfig struct {
	Daemon struct {
		Interface           string `toml:"interface"`
		FixturePath         string `toml:"fixture_path"`
		ScanIntervalSeconds int    `toml:"scan_interval_seconds"`
	} `toml:"daemon"`
	Evaluator struct {
		AllowUntrusted       bool   `toml:"allow_untrusted"`
		Principal            string `toml:"principal"`
		OracleTimeoutSeconds int    `toml:"oracle_timeout_seconds"`
	} `toml:"evaluator"`
	Scorer struct {
		BaseURL         string `toml:"base_url"`
		ScoreTTLSeconds int    `toml:"score_ttl_seconds"`
	} `toml:"scorer"`
	API struct {
		Enabled    bool   `toml:"enabled"`
		ListenAddr string `toml:"listen_addr"`
	} `toml:"api"`
	Logging struct {
		Level string `toml:"level"`
		File  string `toml:"file"`
	} `toml:"logging"`
}

// Load builds the configuration from defaults, the config file under the
// state dir (if present), and NETSEL_* environment overrides, in that order.
func Load() (*Config, error) {
	stateDir, err := StateDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state dir %s: %w", stateDir, err)
	}

	cfg := &Config{
		StateDir:      stateDir,
		DBPath:        filepath.Join(stateDir, "netsel.sqlite3"),
		ConfigPath:    filepath.Join(stateDir, "config.toml"),
		Interface:     DefaultInterface,
		ScanInterval:  DefaultScanIntervalSeconds * time.Second,
		ScorerBaseURL: DefaultScorerBaseURL,
		OracleTimeout: DefaultOracleTimeoutSeconds * time.Second,
		ScoreTTL:      DefaultScoreTTLSeconds * time.Second,
		Principal:     DefaultPrincipal,
		APIListenAddr: DefaultAPIListenAddr,
		LogLevel:      "info",
	}

	if err := cfg.applyFile(); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if cfg.LogFile != "" && !filepath.IsAbs(cfg.LogFile) {
		cfg.LogFile = filepath.Join(stateDir, cfg.LogFile)
	}
	return cfg, nil
}

// StateDir returns the directory holding the database, config, and logs.
// NETSEL_DIR overrides the default of ~/.netsel.
func StateDir() (string, error) {
	if dir := os.Getenv("NETSEL_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".netsel"), nil
}

func (c *Config) applyFile() error {
	data, err := os.ReadFile(c.ConfigPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", c.ConfigPath, err)
	}

	if fc.Daemon.Interface != "" {
		c.Interface = fc.Daemon.Interface
	}
	if fc.Daemon.FixturePath != "" {
		c.FixturePath = fc.Daemon.FixturePath
	}
	if fc.Daemon.ScanIntervalSeconds > 0 {
		c.ScanInterval = time.Duration(fc.Daemon.ScanIntervalSeconds) * time.Second
	}
	c.AllowUntrusted = fc.Evaluator.AllowUntrusted
	if fc.Evaluator.Principal != "" {
		c.Principal = fc.Evaluator.Principal
	}
	if fc.Evaluator.OracleTimeoutSeconds > 0 {
		c.OracleTimeout = time.Duration(fc.Evaluator.OracleTimeoutSeconds) * time.Second
	}
	if fc.Scorer.BaseURL != "" {
		c.ScorerBaseURL = fc.Scorer.BaseURL
	}
	if fc.Scorer.ScoreTTLSeconds > 0 {
		c.ScoreTTL = time.Duration(fc.Scorer.ScoreTTLSeconds) * time.Second
	}
	c.APIEnabled = fc.API.Enabled
	if fc.API.ListenAddr != "" {
		c.APIListenAddr = fc.API.ListenAddr
	}
	if fc.Logging.Level != "" {
		c.LogLevel = fc.Logging.Level
	}
	if fc.Logging.File != "" {
		c.LogFile = fc.Logging.File
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("NETSEL_INTERFACE"); v != "" {
		c.Interface = v
	}
	if v := os.Getenv("NETSEL_FIXTURE"); v != "" {
		c.FixturePath = v
	}
	if v := os.Getenv("NETSEL_SCORER_URL"); v != "" {
		c.ScorerBaseURL = v
	}
	if v := os.Getenv("NETSEL_PRINCIPAL"); v != "" {
		c.Principal = v
	}
	if v := os.Getenv("NETSEL_ALLOW_UNTRUSTED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.AllowUntrusted = b
		}
	}
	if v := os.Getenv("NETSEL_SCAN_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.ScanInterval = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("NETSEL_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}
