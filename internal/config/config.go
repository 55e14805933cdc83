package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App          AppConfig        `yaml:"app"`
	Database     DatabaseConfig   `yaml:"database"`
	Redis        RedisConfig      `yaml:"redis"`
	Backup       BackupConfig     `yaml:"backup"`
	Monitoring   MonitoringConfig `yaml:"monitoring"`
	Logging      LoggingConfig    `yaml:"logging"`
	API          APIConfig        `yaml:"api"`
	Realtime     RealtimeConfig   `yaml:"realtime"`
	ServicesFile string           `yaml:"services_file"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// IsProduction hides internal error detail from clients.
func (a AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

// APIGRPCConfig controls the gRPC health endpoint used by orchestrators.
type APIGRPCConfig struct {
	Enabled    bool `yaml:"enabled"`
	Port       int  `yaml:"port"`
	Reflection bool `yaml:"reflection"`
}

// APIAuthConfig configures token issuance. AdminPhones are given the admin
// role when their account is first created.
type APIAuthConfig struct {
	JWTSecret   string        `yaml:"jwt_secret"`
	AccessTTL   time.Duration `yaml:"access_ttl"`
	RefreshTTL  time.Duration `yaml:"refresh_ttl"`
	OTPCode     string        `yaml:"otp_code"`
	OTPTTL      time.Duration `yaml:"otp_ttl"`
	AdminPhones []string      `yaml:"admin_phones"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type RealtimeConfig struct {
	PingInterval    time.Duration `yaml:"ping_interval"`
	PongTimeout     time.Duration `yaml:"pong_timeout"`
	SendBuffer      int           `yaml:"send_buffer"`
	MaxMessageBytes int64         `yaml:"max_message_bytes"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	RedisFanout     bool          `yaml:"redis_fanout"`
	ChatRateLimit   int           `yaml:"chat_rate_limit"`
	ChatRateWindow  time.Duration `yaml:"chat_rate_window"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// Load reads the YAML file at configPath, expanding ${VAR} references from the
// environment (and from .env when present).
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.API.Auth.JWTSecret == "" {
		return errors.New("api.auth.jwt_secret is required")
	}
	if len(c.API.Auth.JWTSecret) < 16 {
		return errors.New("api.auth.jwt_secret must be at least 16 characters")
	}
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Realtime.PongTimeout <= c.Realtime.PingInterval {
		return errors.New("realtime.pong_timeout must exceed realtime.ping_interval")
	}
	if c.Realtime.RedisFanout && c.Redis.Address == "" {
		return errors.New("realtime.redis_fanout requires redis.address")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "helpr"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.API.Auth.AccessTTL == 0 {
		c.API.Auth.AccessTTL = 15 * time.Minute
	}
	if c.API.Auth.RefreshTTL == 0 {
		c.API.Auth.RefreshTTL = 7 * 24 * time.Hour
	}
	if c.API.Auth.OTPCode == "" {
		c.API.Auth.OTPCode = "123456"
	}
	if c.API.Auth.OTPTTL == 0 {
		c.API.Auth.OTPTTL = 5 * time.Minute
	}

	if c.Realtime.PingInterval == 0 {
		c.Realtime.PingInterval = 25 * time.Second
	}
	if c.Realtime.PongTimeout == 0 {
		c.Realtime.PongTimeout = 60 * time.Second
	}
	if c.Realtime.SendBuffer == 0 {
		c.Realtime.SendBuffer = 64
	}
	if c.Realtime.MaxMessageBytes == 0 {
		c.Realtime.MaxMessageBytes = 8 << 10
	}
	if c.Realtime.ChatRateLimit == 0 {
		c.Realtime.ChatRateLimit = 20
	}
	if c.Realtime.ChatRateWindow == 0 {
		c.Realtime.ChatRateWindow = time.Minute
	}

	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "backups"
	}
}
