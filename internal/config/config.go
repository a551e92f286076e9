// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot       BotConfig       `mapstructure:"bot"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Qualifier QualifierConfig `mapstructure:"qualifier"`
	Game      GameConfig      `mapstructure:"game"`
}

// BotConfig holds Slack connection configuration.
// Token is the bot token (xoxb-), AppToken the app-level token (xapp-)
// required for Socket Mode.
type BotConfig struct {
	Token       string `mapstructure:"token"`
	AppToken    string `mapstructure:"app_token"`
	EmailDomain string `mapstructure:"email_domain"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// SyncConfig holds roster synchronization configuration.
type SyncConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	Workers      int           `mapstructure:"workers"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// QualifierConfig holds avatar qualification tuning.
// ConfidenceThreshold and MinFaceArea gate single-face admission;
// DuplicateMaxDistance is the perceptual-hash Hamming distance at or
// below which two avatars count as the same image.
type QualifierConfig struct {
	CascadePath          string  `mapstructure:"cascade_path"`
	ConfidenceThreshold  float64 `mapstructure:"confidence_threshold"`
	MinFaceArea          float64 `mapstructure:"min_face_area"`
	QualityScale         float64 `mapstructure:"quality_scale"`
	MinFaceSize          int     `mapstructure:"min_face_size"`
	MaxFaceSize          int     `mapstructure:"max_face_size"`
	DuplicateMaxDistance int     `mapstructure:"duplicate_max_distance"`
}

// GameConfig holds guess-who game tuning.
type GameConfig struct {
	Candidates    int           `mapstructure:"candidates"`
	RecentWindow  int           `mapstructure:"recent_window"`
	RoundExpiry   time.Duration `mapstructure:"round_expiry"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	CorrectPoints int           `mapstructure:"correct_points"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Enable environment variable override
	// Environment variables use underscore separator and uppercase
	// e.g., BOT_TOKEN, BOT_APP_TOKEN, DATABASE_HOST
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional - env vars can provide all config)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - we can use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "staffbot")
	v.SetDefault("database.name", "staffbot")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Sync defaults
	v.SetDefault("sync.interval", "1h")
	v.SetDefault("sync.workers", 4)
	v.SetDefault("sync.fetch_timeout", "15s")

	// Qualifier defaults
	v.SetDefault("qualifier.cascade_path", "cascade/facefinder")
	v.SetDefault("qualifier.confidence_threshold", 0.5)
	v.SetDefault("qualifier.min_face_area", 0.05)
	v.SetDefault("qualifier.quality_scale", 5.0)
	v.SetDefault("qualifier.min_face_size", 20)
	v.SetDefault("qualifier.max_face_size", 1000)
	v.SetDefault("qualifier.duplicate_max_distance", 8)

	// Game defaults
	v.SetDefault("game.candidates", 4)
	v.SetDefault("game.recent_window", 10)
	v.SetDefault("game.round_expiry", "60s")
	v.SetDefault("game.idle_timeout", "10m")
	v.SetDefault("game.correct_points", 1)
	v.SetDefault("game.sweep_interval", "5s")
}
