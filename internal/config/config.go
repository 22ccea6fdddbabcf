package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "MOJO"

// ErrMissingRequired is wrapped by Validate for every required key left empty.
var ErrMissingRequired = errors.New("missing required configuration")

// Config represents runtime configuration for the service.
type Config struct {
	Env      string         `mapstructure:"env"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Tools    ToolsConfig    `mapstructure:"tools"`
	Redis    RedisConfig    `mapstructure:"redis"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Uploads  UploadConfig   `mapstructure:"uploads"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Address       string        `mapstructure:"address"`
	StreamTimeout time.Duration `mapstructure:"stream_timeout"`
	RateLimit     float64       `mapstructure:"rate_limit"`
	RateBurst     int           `mapstructure:"rate_burst"`
}

// DatabaseConfig selects the driver (sqlite3 or mysql) and its DSN.
// MySQL DSNs need parseTime=true so DATETIME columns scan into time.Time.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type AuthConfig struct {
	Secret     string        `mapstructure:"secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	BcryptCost int           `mapstructure:"bcrypt_cost"`
}

type LLMConfig struct {
	Provider  string `mapstructure:"provider"`
	Model     string `mapstructure:"model"`
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

type ToolsConfig struct {
	TavilyAPIKey         string `mapstructure:"tavily_api_key"`
	TavilyURL            string `mapstructure:"tavily_url"`
	GoogleAPIKey         string `mapstructure:"google_api_key"`
	GoogleSearchEngineID string `mapstructure:"google_search_engine_id"`
	DuckDuckGo           bool   `mapstructure:"duckduckgo"`
	WeatherURL           string `mapstructure:"weather_url"`
}

// RedisConfig is optional; an empty Addr disables the history cache.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// RabbitMQConfig is optional; an empty URL disables event publishing.
type RabbitMQConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

type UploadConfig struct {
	Dir           string `mapstructure:"dir"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// IsDevelopment reports whether the service runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.Env == "" || c.Env == "dev" || c.Env == "development"
}

// Load reads .env files, an optional YAML file and MOJO_* environment variables,
// then validates the required keys. Environment variables win over the file.
func Load(path string) (*Config, error) {
	loadDotEnv()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(envPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fails fast on missing credentials and unsupported drivers.
func (c *Config) Validate() error {
	var missing []string
	if c.Database.DSN == "" {
		missing = append(missing, "database.dsn")
	}
	if c.Auth.Secret == "" {
		missing = append(missing, "auth.secret")
	}
	if c.LLM.APIKey == "" {
		missing = append(missing, "llm.api_key")
	}
	if c.Tools.TavilyAPIKey == "" {
		missing = append(missing, "tools.tavily_api_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingRequired, strings.Join(missing, ", "))
	}
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "sqlite3", "mysql":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	switch c.LLM.Provider {
	case "gemini", "openai", "claude":
	default:
		return fmt.Errorf("unsupported llm provider: %s", c.LLM.Provider)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")

	v.SetDefault("server.address", ":8090")
	v.SetDefault("server.stream_timeout", 2*time.Minute)
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_burst", 20)

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "")

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 10)

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-1.5-pro-latest")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.max_tokens", 3000)

	v.SetDefault("tools.tavily_api_key", "")
	v.SetDefault("tools.tavily_url", "https://api.tavily.com/search")
	v.SetDefault("tools.google_api_key", "")
	v.SetDefault("tools.google_search_engine_id", "")
	v.SetDefault("tools.duckduckgo", true)
	v.SetDefault("tools.weather_url", "https://api.open-meteo.com/v1/forecast")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 10*time.Minute)

	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.exchange", "mojochat.events")

	v.SetDefault("uploads.dir", "./data/uploads")
	v.SetDefault("uploads.public_base_url", "")

	v.SetDefault("logging.level", "info")
}

// loadDotEnv mirrors the frontend convention: .env.local overrides .env,
// and real environment variables override both.
func loadDotEnv() {
	for _, name := range []string{".env.local", ".env"} {
		if _, err := os.Stat(name); err == nil {
			_ = godotenv.Load(name)
		}
	}
}
