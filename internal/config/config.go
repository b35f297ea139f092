package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Matching  MatchingConfig  `yaml:"matching"`
	Backfill  BackfillConfig  `yaml:"backfill"`
	Insights  InsightsConfig  `yaml:"insights"`
	Snapshots SnapshotsConfig `yaml:"snapshots"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	// Allow override via environment
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the event store connection settings
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the (optional) Redis connection used for distributed
// locking of batch jobs
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

// MatchingConfig holds attribution matcher tuning
type MatchingConfig struct {
	// ProximityWindowMinutes is the default ± window of the time-proximity
	// fallback matcher, clamped to [2,60] at call time.
	ProximityWindowMinutes int `yaml:"proximity_window_minutes"`
}

// BackfillConfig holds bulk backfill job settings
type BackfillConfig struct {
	LookbackDays   int `yaml:"lookback_days"`
	LockTTLMinutes int `yaml:"lock_ttl_minutes"`
}

// LockTTL returns the backfill lock TTL as a duration
func (c BackfillConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMinutes) * time.Minute
}

// InsightsConfig holds the ad-platform insights warehouse connection
// (spend/impressions for blended reporting)
type InsightsConfig struct {
	Account   string `yaml:"account"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Database  string `yaml:"database"`
	Schema    string `yaml:"schema"`
	Warehouse string `yaml:"warehouse"`
	Enabled   bool   `yaml:"enabled"`
}

// SnapshotsConfig holds report snapshot export settings
type SnapshotsConfig struct {
	Type      string `yaml:"type"` // "local" or "s3"
	LocalPath string `yaml:"local_path"`
	S3Bucket  string `yaml:"s3_bucket"`
	AWSRegion string `yaml:"aws_region"`
	// AWSProfile empty uses the default credential chain (IAM role on ECS)
	AWSProfile string `yaml:"aws_profile"`
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c SnapshotsConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return "" // Use default credential chain (IAM role)
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Matching.ProximityWindowMinutes == 0 {
		cfg.Matching.ProximityWindowMinutes = 10
	}
	if cfg.Backfill.LookbackDays == 0 {
		cfg.Backfill.LookbackDays = 30
	}
	if cfg.Backfill.LockTTLMinutes == 0 {
		cfg.Backfill.LockTTLMinutes = 30
	}
	if cfg.Insights.Database == "" {
		cfg.Insights.Database = "ADS_DATA_LAKE"
	}
	if cfg.Insights.Schema == "" {
		cfg.Insights.Schema = "META_INSIGHTS"
	}
	if cfg.Snapshots.Type == "" {
		cfg.Snapshots.Type = "local"
	}
	if cfg.Snapshots.LocalPath == "" {
		cfg.Snapshots.LocalPath = "./data/snapshots"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables if present
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
		cfg.Redis.Enabled = true
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if v := os.Getenv("INSIGHTS_ACCOUNT"); v != "" {
		cfg.Insights.Account = v
	}
	if v := os.Getenv("INSIGHTS_USER"); v != "" {
		cfg.Insights.User = v
	}
	if v := os.Getenv("INSIGHTS_PASSWORD"); v != "" {
		cfg.Insights.Password = v
	}
	if v := os.Getenv("SNAPSHOTS_S3_BUCKET"); v != "" {
		cfg.Snapshots.S3Bucket = v
		cfg.Snapshots.Type = "s3"
	}
	if v := os.Getenv("SNAPSHOTS_AWS_REGION"); v != "" {
		cfg.Snapshots.AWSRegion = v
	}

	return cfg, nil
}
