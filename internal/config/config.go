package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Browser  BrowserConfig
	Store    StoreConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Schedule ScheduleConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type ScraperConfig struct {
	MaxAttempts       int
	ConcurrentLimit   int
	NavigationTimeout time.Duration
	DetailTimeout     time.Duration
	SiteDelayMin      time.Duration
	SiteDelayMax      time.Duration
	UserAgents        []string
	Proxy             string
	SitesFile         string
	Sites             []string
}

type BrowserConfig struct {
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	Locale         string
	TimezoneID     string
}

type StoreConfig struct {
	Type string
	File string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	Stream       string
	RelayEnabled bool
	PollInterval time.Duration
}

type ScheduleConfig struct {
	Interval   time.Duration
	RunOnStart bool
}

type LoggingConfig struct {
	Level  string
	Format string
	File   string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first without overriding variables already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "3000"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", nil),
		},
		Scraper: ScraperConfig{
			MaxAttempts:       getIntOrDefault("SCRAPER_MAX_ATTEMPTS", 3),
			ConcurrentLimit:   getIntOrDefault("SCRAPER_CONCURRENT_LIMIT", 10),
			NavigationTimeout: getDurationOrDefault("SCRAPER_NAVIGATION_TIMEOUT", 60*time.Second),
			DetailTimeout:     getDurationOrDefault("SCRAPER_DETAIL_TIMEOUT", 60*time.Second),
			SiteDelayMin:      getDurationOrDefault("SCRAPER_SITE_DELAY_MIN", 5*time.Second),
			SiteDelayMax:      getDurationOrDefault("SCRAPER_SITE_DELAY_MAX", 15*time.Second),
			UserAgents:        getStringSliceOrDefault("SCRAPER_USER_AGENTS", defaultUserAgents()),
			Proxy:             getEnvOrDefault("SCRAPER_PROXY", ""),
			SitesFile:         getEnvOrDefault("SITES_FILE", ""),
			Sites:             getStringSliceOrDefault("SITES", nil),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 800),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 600),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "tr-TR"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Europe/Istanbul"),
		},
		Store: StoreConfig{
			Type: getEnvOrDefault("STORE_TYPE", "postgres"),
			File: getEnvOrDefault("STORE_FILE", "products.json"),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "price_tracker"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:         getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:     getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:           getIntOrDefault("REDIS_DB", 0),
			Stream:       getEnvOrDefault("REDIS_STREAM", "stream:price_updates"),
			RelayEnabled: getBoolOrDefault("RELAY_ENABLED", false),
			PollInterval: getDurationOrDefault("RELAY_POLL_INTERVAL", 5*time.Second),
		},
		Schedule: ScheduleConfig{
			Interval:   getDurationOrDefault("SCHEDULE_INTERVAL", 6*time.Hour),
			RunOnStart: getBoolOrDefault("SCHEDULE_RUN_ON_START", false),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
			File:   getEnvOrDefault("LOG_FILE", ""),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.MaxAttempts < 1 {
		return fmt.Errorf("SCRAPER_MAX_ATTEMPTS must be at least 1")
	}

	if c.Scraper.ConcurrentLimit < 1 {
		return fmt.Errorf("SCRAPER_CONCURRENT_LIMIT must be at least 1")
	}

	if c.Scraper.SiteDelayMin > c.Scraper.SiteDelayMax {
		return fmt.Errorf("SCRAPER_SITE_DELAY_MIN cannot be greater than SCRAPER_SITE_DELAY_MAX")
	}

	if len(c.Scraper.UserAgents) == 0 {
		return fmt.Errorf("SCRAPER_USER_AGENTS must contain at least one user agent")
	}

	switch c.Store.Type {
	case "postgres":
		if c.Database.Host == "" || c.Database.DBName == "" {
			return fmt.Errorf("DB_HOST and DB_NAME are required for the postgres store")
		}
	case "file":
		if c.Store.File == "" {
			return fmt.Errorf("STORE_FILE is required for the file store")
		}
	default:
		return fmt.Errorf("unknown STORE_TYPE: %s", c.Store.Type)
	}

	if c.Schedule.Interval <= 0 {
		return fmt.Errorf("SCHEDULE_INTERVAL must be positive")
	}

	return nil
}

func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return defaultValue
}

func defaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	}
}
