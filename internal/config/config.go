package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Port     string `mapstructure:"port"`
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`

	MySQLHost     string `mapstructure:"mysql_host"`
	MySQLPort     string `mapstructure:"mysql_port"`
	MySQLUser     string `mapstructure:"mysql_user"`
	MySQLPassword string `mapstructure:"mysql_password"`
	MySQLDatabase string `mapstructure:"mysql_database"`

	RedisHost     string `mapstructure:"redis_host"`
	RedisPort     string `mapstructure:"redis_port"`
	RedisPassword string `mapstructure:"redis_password"`

	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
	KafkaGroupID string   `mapstructure:"kafka_group_id"`

	SpotifyClientID     string `mapstructure:"spotify_client_id"`
	SpotifyClientSecret string `mapstructure:"spotify_client_secret"`
	SpotifyRedirectURI  string `mapstructure:"spotify_redirect_uri"`

	JWTSecret      string   `mapstructure:"jwt_secret"`
	FrontendURL    string   `mapstructure:"frontend_url"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	SyncInterval              time.Duration `mapstructure:"sync_interval"`
	ReorderInterval           time.Duration `mapstructure:"reorder_interval"`
	CredentialRefreshInterval time.Duration `mapstructure:"credential_refresh_interval"`
	RegistryResyncInterval    time.Duration `mapstructure:"registry_resync_interval"`
	SweepInterval             time.Duration `mapstructure:"sweep_interval"`
	RoomMaxLifetimeDays       int           `mapstructure:"room_max_lifetime_days"`
	DriftThreshold            time.Duration `mapstructure:"drift_threshold"`
	NoSyncMargin              time.Duration `mapstructure:"no_sync_margin"`
}

func (c *Config) Production() bool { return c.Env == "production" }

func (c *Config) RoomMaxLifetime() time.Duration {
	return time.Duration(c.RoomMaxLifetimeDays) * 24 * time.Hour
}

func (c *Config) RedisAddr() string { return c.RedisHost + ":" + c.RedisPort }

var defaults = map[string]any{
	"port":      "8080",
	"env":       "development",
	"log_level": "info",

	"mysql_host":     "localhost",
	"mysql_port":     "3306",
	"mysql_user":     "root",
	"mysql_password": "",
	"mysql_database": "jukebox",

	"redis_host":     "localhost",
	"redis_port":     "6379",
	"redis_password": "",

	"kafka_brokers":  "localhost:9092",
	"kafka_topic":    "jukebox-room-events",
	"kafka_group_id": "jukebox-ws",

	"spotify_client_id":     "",
	"spotify_client_secret": "",
	"spotify_redirect_uri":  "http://localhost:8080/api/v1/auth/callback",

	"jwt_secret":      "",
	"frontend_url":    "http://localhost:5173",
	"allowed_origins": "http://localhost:5173",

	"sync_interval":               "5s",
	"reorder_interval":            "10s",
	"credential_refresh_interval": "45m",
	"registry_resync_interval":    "1m",
	"sweep_interval":              "6h",
	"room_max_lifetime_days":      2,
	"drift_threshold":             "20s",
	"no_sync_margin":              "10s",
}

// Load reads configuration from the environment, after loading a .env file
// when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Str("module", "config").Msg(".env file not found, using environment")
	}

	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	intervals := map[string]time.Duration{
		"SYNC_INTERVAL":               c.SyncInterval,
		"REORDER_INTERVAL":            c.ReorderInterval,
		"CREDENTIAL_REFRESH_INTERVAL": c.CredentialRefreshInterval,
		"REGISTRY_RESYNC_INTERVAL":    c.RegistryResyncInterval,
		"SWEEP_INTERVAL":              c.SweepInterval,
	}
	for name, d := range intervals {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive, got %s", name, d)
		}
	}
	if c.RoomMaxLifetimeDays < 1 {
		return fmt.Errorf("config: ROOM_MAX_LIFETIME_DAYS must be at least 1, got %d", c.RoomMaxLifetimeDays)
	}
	if c.DriftThreshold < 0 || c.NoSyncMargin < 0 {
		return fmt.Errorf("config: DRIFT_THRESHOLD and NO_SYNC_MARGIN must not be negative")
	}
	return nil
}
