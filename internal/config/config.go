package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "WEATHER_FINDER"

type Config struct {
	Port     string         `mapstructure:"port"`
	LogLevel string         `mapstructure:"log_level"`
	Location LocationConfig `mapstructure:"location"`
	Weather  WeatherConfig  `mapstructure:"weather"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Poller   PollerConfig   `mapstructure:"poller"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type LocationConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
	Language string `mapstructure:"language"`
}

type WeatherConfig struct {
	BaseURL          string `mapstructure:"base_url"`
	UserAgent        string `mapstructure:"user_agent"`
	Accept           string `mapstructure:"accept"`
	StationPageLimit int    `mapstructure:"station_page_limit"`
	MaxStationPages  int    `mapstructure:"max_station_pages"`
}

// HTTPConfig applies to both upstream clients.
type HTTPConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	RetryCount        int           `mapstructure:"retry_count"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// CacheConfig.TTL of zero disables response caching.
type CacheConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	PurgeOnStart  bool          `mapstructure:"purge_on_start"`
}

type ArchiveConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Driver   string         `mapstructure:"driver"`
	DSN      string         `mapstructure:"dsn"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"db"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`
}

type PollerConfig struct {
	Schedule string   `mapstructure:"schedule"`
	Stations []string `mapstructure:"stations"`
}

type MQTTConfig struct {
	BrokerURL   string `mapstructure:"broker_url"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	StatusTopic string `mapstructure:"status_topic"`
}

type TracingConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8096")
	v.SetDefault("log_level", "info")

	v.SetDefault("location.base_url", "http://dataservice.accuweather.com")
	v.SetDefault("location.api_key", "")
	v.SetDefault("location.language", "")

	v.SetDefault("weather.base_url", "https://api.weather.gov")
	v.SetDefault("weather.user_agent", "(weather-finder, ops@example.com)")
	v.SetDefault("weather.accept", "application/ld+json")
	v.SetDefault("weather.station_page_limit", 500)
	v.SetDefault("weather.max_station_pages", 0)

	v.SetDefault("http.timeout", 10*time.Second)
	v.SetDefault("http.retry_count", 0)
	v.SetDefault("http.requests_per_second", 5.0)
	v.SetDefault("http.burst", 5)

	v.SetDefault("cache.ttl", 15*time.Minute)
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.purge_on_start", false)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.driver", "sqlite")
	v.SetDefault("archive.dsn", "weather-finder.db")
	v.SetDefault("archive.postgres.user", "")
	v.SetDefault("archive.postgres.password", "")
	v.SetDefault("archive.postgres.db", "")
	v.SetDefault("archive.postgres.host", "")
	v.SetDefault("archive.postgres.port", "5432")
	v.SetDefault("archive.postgres.sslmode", "disable")

	v.SetDefault("poller.schedule", "*/10 * * * *")
	v.SetDefault("poller.stations", []string{})

	v.SetDefault("mqtt.broker_url", "")
	v.SetDefault("mqtt.client_id", "weather-finder")
	v.SetDefault("mqtt.topic_prefix", "weather-finder/observations/")
	v.SetDefault("mqtt.status_topic", "weather-finder/status")

	v.SetDefault("tracing.otlp_endpoint", "")
}

// Load reads defaults, then the optional YAML file at path, then WEATHER_FINDER_* environment
// variables (dots become underscores, e.g. WEATHER_FINDER_LOCATION_API_KEY).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	slog.Info("weather-finder config loaded",
		"port", cfg.Port,
		"location_api_key_set", cfg.Location.APIKey != "",
		"redis", cfg.Cache.RedisAddr != "",
		"archive", cfg.Archive.Enabled,
		"poller_stations", len(cfg.Poller.Stations),
	)
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Port) == "" {
		return fmt.Errorf("config: port is required")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("config: http.timeout must be positive")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("config: cache.ttl must not be negative")
	}
	if len(c.Poller.Stations) > 0 && !c.Archive.Enabled {
		return fmt.Errorf("config: poller.stations requires archive.enabled")
	}
	return nil
}
