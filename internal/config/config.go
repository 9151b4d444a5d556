package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/weathercache/internal/models"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string
	Version    string

	WeatherAPIKey     string
	WeatherAPIURL     string
	GeoAPIURL         string
	WeatherAPITimeout time.Duration

	RequestTimeout time.Duration

	// Outbound limiter: strict trailing-window counter in front of the provider.
	RateLimitMaxRequests int
	RateLimitWindow      time.Duration

	// Inbound limiter: token bucket on the local API.
	InboundRPS   int
	InboundBurst int

	CurrentMaxAge      time.Duration
	ForecastMaxAge     time.Duration
	LastLocationMaxAge time.Duration

	StoreBackend string // "file", "memory", "redis" or "memcached"
	FileDir      string

	RedisAddr string

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	AssetOrigin   string
	AssetCacheDir string
	AssetURLs     []string

	AlertInterval      time.Duration
	AssetSweepInterval time.Duration
	WarmAtStartup      bool

	DefaultLocation models.Location

	ShutdownTimeout time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Version string `yaml:"version"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		GeoURL  string `yaml:"geo_url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	RateLimit struct {
		MaxRequests  int    `yaml:"max_requests"`
		Window       string `yaml:"window"`
		InboundRPS   int    `yaml:"inbound_rps"`
		InboundBurst int    `yaml:"inbound_burst"`
	} `yaml:"rate_limit"`

	Cache struct {
		CurrentMaxAge      string `yaml:"current_max_age"`
		ForecastMaxAge     string `yaml:"forecast_max_age"`
		LastLocationMaxAge string `yaml:"last_location_max_age"`
	} `yaml:"cache"`

	Store struct {
		Backend string `yaml:"backend"`
		File    struct {
			Dir string `yaml:"dir"`
		} `yaml:"file"`
		Redis struct {
			Addr string `yaml:"addr"`
		} `yaml:"redis"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"store"`

	Assets struct {
		Origin   string   `yaml:"origin"`
		CacheDir string   `yaml:"cache_dir"`
		URLs     []string `yaml:"urls"`
	} `yaml:"assets"`

	Refresh struct {
		AlertInterval      string `yaml:"alert_interval"`
		AssetSweepInterval string `yaml:"asset_sweep_interval"`
		WarmAtStartup      *bool  `yaml:"warm_at_startup"`
	} `yaml:"refresh"`

	DefaultLocation struct {
		Lat     float64 `yaml:"lat"`
		Lon     float64 `yaml:"lon"`
		Name    string  `yaml:"name"`
		Country string  `yaml:"country"`
	} `yaml:"default_location"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml, with a .env file loaded first if present. API key
// comes from WEATHER_API_KEY env or the secrets file. Call from project root.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	cfg.Version = os.Getenv("APP_VERSION")
	if cfg.Version == "" {
		cfg.Version = fc.Version
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	cfg.WeatherAPIKey = os.Getenv("WEATHER_API_KEY")
	if cfg.WeatherAPIKey == "" {
		secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
		secretsData, err := os.ReadFile(secretsPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read secrets file: %w", err)
			}
		} else {
			var sec secretsFile
			if err := yaml.Unmarshal(secretsData, &sec); err != nil {
				return nil, fmt.Errorf("parse secrets file: %w", err)
			}
			cfg.WeatherAPIKey = sec.WeatherAPIKey
		}
	}
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env or config/secrets.yaml weather_api_key)")
	}

	cfg.WeatherAPIURL = fc.WeatherAPI.URL
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = "https://api.openweathermap.org/data/2.5"
	}
	cfg.GeoAPIURL = fc.WeatherAPI.GeoURL
	if cfg.GeoAPIURL == "" {
		cfg.GeoAPIURL = "https://api.openweathermap.org/geo/1.0"
	}
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 10*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)

	cfg.RateLimitMaxRequests = fc.RateLimit.MaxRequests
	if cfg.RateLimitMaxRequests <= 0 {
		cfg.RateLimitMaxRequests = 30
	}
	cfg.RateLimitWindow = parseDuration(fc.RateLimit.Window, time.Minute)
	cfg.InboundRPS = fc.RateLimit.InboundRPS
	if cfg.InboundRPS <= 0 {
		cfg.InboundRPS = 50
	}
	cfg.InboundBurst = fc.RateLimit.InboundBurst
	if cfg.InboundBurst <= 0 {
		cfg.InboundBurst = 100
	}

	cfg.CurrentMaxAge = parseDuration(fc.Cache.CurrentMaxAge, time.Hour)
	cfg.ForecastMaxAge = parseDuration(fc.Cache.ForecastMaxAge, time.Hour)
	cfg.LastLocationMaxAge = parseDuration(fc.Cache.LastLocationMaxAge, 5*time.Minute)

	cfg.StoreBackend = strings.TrimSpace(strings.ToLower(os.Getenv("STORE_BACKEND")))
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = strings.TrimSpace(strings.ToLower(fc.Store.Backend))
	}
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = "file"
	}
	cfg.FileDir = fc.Store.File.Dir

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = strings.TrimSpace(fc.Store.Redis.Addr)
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}

	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Store.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Store.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Store.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.AssetOrigin = strings.TrimSuffix(fc.Assets.Origin, "/")
	cfg.AssetCacheDir = fc.Assets.CacheDir
	cfg.AssetURLs = fc.Assets.URLs

	cfg.AlertInterval = parseDuration(fc.Refresh.AlertInterval, time.Hour)
	cfg.AssetSweepInterval = parseDuration(fc.Refresh.AssetSweepInterval, time.Minute)
	cfg.WarmAtStartup = true
	if fc.Refresh.WarmAtStartup != nil {
		cfg.WarmAtStartup = *fc.Refresh.WarmAtStartup
	}

	cfg.DefaultLocation = models.NewLocation(
		fc.DefaultLocation.Lat,
		fc.DefaultLocation.Lon,
		fc.DefaultLocation.Name,
		fc.DefaultLocation.Country,
	)
	if fc.DefaultLocation.Name == "" {
		cfg.DefaultLocation = models.NewLocation(51.5074, -0.1278, "London", "GB")
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	switch cfg.StoreBackend {
	case "file", "memory", "redis", "memcached":
		// valid
	default:
		return fmt.Errorf("store.backend must be file, memory, redis or memcached, got %q", cfg.StoreBackend)
	}
	if err := models.ValidateCoordinates(cfg.DefaultLocation.Lat, cfg.DefaultLocation.Lon); err != nil {
		return fmt.Errorf("default_location: %w", err)
	}
	return nil
}
