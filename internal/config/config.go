package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr    = ":8080"
	defaultDBDriver    = "sqlite"
	defaultDBDSN       = "dropcall.db"
	defaultQueuePrefix = "dropcall"
	defaultConcurrency = 4
	defaultMaxAttempts = 3
	defaultBackoffBase = 2 * time.Second
)

type Config struct {
	HTTPAddr string
	DBDriver string
	DBDSN    string

	QueueURL       string
	QueuePrefix    string
	Concurrency    int
	JobMaxAttempts int
	JobBackoffBase time.Duration

	GatewayBaseURL      string
	GatewayInstance     string
	GatewayToken        string
	GatewayAccountToken string

	AdminAPIVersion string
}

type fileConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	DBDriver string `yaml:"db_driver"`
	DBDSN    string `yaml:"db_dsn"`

	QueueURL       string `yaml:"queue_url"`
	QueuePrefix    string `yaml:"queue_prefix"`
	Concurrency    int    `yaml:"concurrency"`
	JobMaxAttempts int    `yaml:"job_max_attempts"`
	JobBackoffBase string `yaml:"job_backoff_base"`

	GatewayBaseURL      string `yaml:"gateway_base_url"`
	GatewayInstance     string `yaml:"gateway_instance"`
	GatewayToken        string `yaml:"gateway_token"`
	GatewayAccountToken string `yaml:"gateway_account_token"`

	AdminAPIVersion string `yaml:"admin_api_version"`
}

// FromFileAndEnv builds the config from an optional YAML file overridden by
// environment variables. The file path comes from DROPCALL_CONFIG; a missing
// file is fine, a broken one is not.
func FromFileAndEnv() (Config, error) {
	cfg := Config{
		HTTPAddr:       defaultHTTPAddr,
		DBDriver:       defaultDBDriver,
		DBDSN:          defaultDBDSN,
		QueuePrefix:    defaultQueuePrefix,
		Concurrency:    defaultConcurrency,
		JobMaxAttempts: defaultMaxAttempts,
		JobBackoffBase: defaultBackoffBase,
	}

	if path := strings.TrimSpace(os.Getenv("DROPCALL_CONFIG")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
		applyFile(&cfg, fc)
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyFile(cfg *Config, fc fileConfig) {
	setString(&cfg.HTTPAddr, fc.HTTPAddr)
	setString(&cfg.DBDriver, fc.DBDriver)
	setString(&cfg.DBDSN, fc.DBDSN)
	setString(&cfg.QueueURL, fc.QueueURL)
	setString(&cfg.QueuePrefix, fc.QueuePrefix)
	if fc.Concurrency > 0 {
		cfg.Concurrency = fc.Concurrency
	}
	if fc.JobMaxAttempts > 0 {
		cfg.JobMaxAttempts = fc.JobMaxAttempts
	}
	if d, err := time.ParseDuration(strings.TrimSpace(fc.JobBackoffBase)); err == nil && d > 0 {
		cfg.JobBackoffBase = d
	}
	setString(&cfg.GatewayBaseURL, fc.GatewayBaseURL)
	setString(&cfg.GatewayInstance, fc.GatewayInstance)
	setString(&cfg.GatewayToken, fc.GatewayToken)
	setString(&cfg.GatewayAccountToken, fc.GatewayAccountToken)
	setString(&cfg.AdminAPIVersion, fc.AdminAPIVersion)
}

func applyEnv(cfg *Config) {
	setString(&cfg.HTTPAddr, os.Getenv("DROPCALL_HTTP_ADDR"))
	setString(&cfg.DBDriver, os.Getenv("DROPCALL_DB_DRIVER"))
	setString(&cfg.DBDSN, os.Getenv("DROPCALL_DB_DSN"))
	setString(&cfg.QueueURL, os.Getenv("DROPCALL_QUEUE_URL"))
	setString(&cfg.QueuePrefix, os.Getenv("DROPCALL_QUEUE_PREFIX"))
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv("DROPCALL_CONCURRENCY"))); err == nil && v > 0 {
		cfg.Concurrency = v
	}
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv("DROPCALL_JOB_MAX_ATTEMPTS"))); err == nil && v > 0 {
		cfg.JobMaxAttempts = v
	}
	if d, err := time.ParseDuration(strings.TrimSpace(os.Getenv("DROPCALL_JOB_BACKOFF_BASE"))); err == nil && d > 0 {
		cfg.JobBackoffBase = d
	}
	setString(&cfg.GatewayBaseURL, os.Getenv("DROPCALL_GATEWAY_URL"))
	setString(&cfg.GatewayInstance, os.Getenv("DROPCALL_GATEWAY_INSTANCE"))
	setString(&cfg.GatewayToken, os.Getenv("DROPCALL_GATEWAY_TOKEN"))
	setString(&cfg.GatewayAccountToken, os.Getenv("DROPCALL_GATEWAY_ACCOUNT_TOKEN"))
	setString(&cfg.AdminAPIVersion, os.Getenv("DROPCALL_ADMIN_API_VERSION"))
}

func setString(dst *string, value string) {
	value = strings.TrimSpace(value)
	if value != "" {
		*dst = value
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return fmt.Errorf("DROPCALL_HTTP_ADDR must not be empty")
	}
	switch strings.ToLower(strings.TrimSpace(c.DBDriver)) {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("DROPCALL_DB_DRIVER must be sqlite or postgres")
	}
	if strings.TrimSpace(c.DBDSN) == "" {
		return fmt.Errorf("DROPCALL_DB_DSN must not be empty")
	}
	if strings.TrimSpace(c.QueueURL) == "" {
		return fmt.Errorf("DROPCALL_QUEUE_URL must not be empty")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("DROPCALL_CONCURRENCY must be > 0")
	}
	if c.JobMaxAttempts <= 0 {
		return fmt.Errorf("DROPCALL_JOB_MAX_ATTEMPTS must be > 0")
	}
	if c.JobBackoffBase <= 0 {
		return fmt.Errorf("DROPCALL_JOB_BACKOFF_BASE must be > 0")
	}
	if strings.TrimSpace(c.GatewayBaseURL) == "" {
		return fmt.Errorf("DROPCALL_GATEWAY_URL must not be empty")
	}
	if strings.TrimSpace(c.GatewayInstance) == "" {
		return fmt.Errorf("DROPCALL_GATEWAY_INSTANCE must not be empty")
	}
	if strings.TrimSpace(c.GatewayToken) == "" {
		return fmt.Errorf("DROPCALL_GATEWAY_TOKEN must not be empty")
	}
	if strings.TrimSpace(c.GatewayAccountToken) == "" {
		return fmt.Errorf("DROPCALL_GATEWAY_ACCOUNT_TOKEN must not be empty")
	}
	return nil
}
