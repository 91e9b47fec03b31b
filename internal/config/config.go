package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                     string `yaml:"port"`
	LogLevel                 string `yaml:"logLevel"`
	DatabaseURL              string `yaml:"databaseURL"`
	RedisAddr                string `yaml:"redisAddr"`
	RedisPassword            string `yaml:"redisPassword"`
	AMQPURL                  string `yaml:"amqpURL"`
	MinioEndpoint            string `yaml:"minioEndpoint"`
	MinioAccessKey           string `yaml:"minioAccessKey"`
	MinioSecretKey           string `yaml:"minioSecretKey"`
	MinioBucket              string `yaml:"minioBucket"`
	MinioUseSSL              bool   `yaml:"minioUseSSL"`
	JWTSecret                string `yaml:"jwtSecret"`
	JWTIssuer                string `yaml:"jwtIssuer"`
	JWTAudience              string `yaml:"jwtAudience"`
	TickIntervalMs           int    `yaml:"tickIntervalMs"`
	StreamURLTTLSeconds      int    `yaml:"streamUrlTtlSeconds"`
	StreamRateLimitPerMinute int    `yaml:"streamRateLimitPerMinute"`
	ProgressTTLDays          int    `yaml:"progressTtlDays"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if v := os.Getenv("CHAPTERLY_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("PLAYER_TICK_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TickIntervalMs = n
		}
	}
	if v := os.Getenv("PLAYER_STREAM_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.StreamRateLimitPerMinute = n
		}
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.TickIntervalMs == 0 {
		cfg.TickIntervalMs = 250
	}
	if cfg.StreamURLTTLSeconds == 0 {
		cfg.StreamURLTTLSeconds = 3600
	}
	if cfg.StreamRateLimitPerMinute == 0 {
		cfg.StreamRateLimitPerMinute = 60
	}
	if cfg.ProgressTTLDays == 0 {
		cfg.ProgressTTLDays = 90
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml)")
	}
	if cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required (set in config.yaml)")
	}
	if cfg.AMQPURL == "" {
		return errors.New("config: amqpURL is required (set in config.yaml)")
	}
	if cfg.MinioEndpoint == "" {
		return errors.New("config: minioEndpoint is required (set in config.yaml)")
	}
	if cfg.MinioAccessKey == "" {
		return errors.New("config: minioAccessKey is required (set in config.yaml)")
	}
	if cfg.MinioSecretKey == "" {
		return errors.New("config: minioSecretKey is required (set in config.yaml)")
	}
	if cfg.MinioBucket == "" {
		return errors.New("config: minioBucket is required (set in config.yaml)")
	}
	if cfg.JWTSecret == "" {
		return errors.New("config: jwtSecret is required (set in config.yaml or CHAPTERLY_JWT_SECRET)")
	}
	if cfg.TickIntervalMs < 50 {
		return errors.New("config: tickIntervalMs must be at least 50")
	}
	if cfg.StreamURLTTLSeconds < 0 || cfg.StreamRateLimitPerMinute < 0 || cfg.ProgressTTLDays < 0 {
		return errors.New("config: ttl and rate limit settings must not be negative")
	}
	return nil
}
