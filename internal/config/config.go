package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	GitHub     GitHubConfig     `mapstructure:"github"`
	Encryption EncryptionConfig `mapstructure:"encryption"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Proxy      ProxyConfig      `mapstructure:"proxy"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	CORS       CORSConfig       `mapstructure:"cors"`
}

type ServerConfig struct {
	Port             int           `mapstructure:"port"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	GracefulShutdown time.Duration `mapstructure:"graceful_shutdown"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MaxIdleConns    int           `mapstructure:"max_idle_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	SecretKey     string        `mapstructure:"secret_key"`
	Issuer        string        `mapstructure:"issuer"`
	TokenDuration time.Duration `mapstructure:"token_duration"`
}

type GitHubConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
}

type EncryptionConfig struct {
	Key string `mapstructure:"key"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	MaxSize int           `mapstructure:"max_size"`
}

type ProxyConfig struct {
	UpstreamTimeout  time.Duration `mapstructure:"upstream_timeout"`
	WebhookTimeout   time.Duration `mapstructure:"webhook_timeout"`
	MaxStreamCapture int           `mapstructure:"max_stream_capture"`
	HookWorkers      int           `mapstructure:"hook_workers"`
	HookQueueSize    int           `mapstructure:"hook_queue_size"`

	// Upstream base URLs are production constants; overridable for tests.
	OpenAIBaseURL    string `mapstructure:"openai_base_url"`
	AnthropicBaseURL string `mapstructure:"anthropic_base_url"`
	GoogleBaseURL    string `mapstructure:"google_base_url"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

var cfg *Config

func Load(configPath string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.AddConfigPath(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/llmlab")
	}

	setDefaults()

	viper.AutomaticEnv()
	bindEnvVars()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	cfg = &config
	return cfg, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "300s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.graceful_shutdown", "30s")

	// Database defaults
	viper.SetDefault("database.max_connections", 50)
	viper.SetDefault("database.max_idle_connections", 10)
	viper.SetDefault("database.conn_max_lifetime", "1h")

	// Redis defaults
	viper.SetDefault("redis.db", 0)

	// JWT defaults
	viper.SetDefault("jwt.issuer", "llmlab")
	viper.SetDefault("jwt.token_duration", "168h")

	// Cache defaults
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.ttl", "1h")
	viper.SetDefault("cache.max_size", 1000)

	// Proxy defaults
	viper.SetDefault("proxy.upstream_timeout", "120s")
	viper.SetDefault("proxy.webhook_timeout", "10s")
	viper.SetDefault("proxy.max_stream_capture", 1<<20)
	viper.SetDefault("proxy.hook_workers", 4)
	viper.SetDefault("proxy.hook_queue_size", 64)
	viper.SetDefault("proxy.openai_base_url", "https://api.openai.com")
	viper.SetDefault("proxy.anthropic_base_url", "https://api.anthropic.com")
	viper.SetDefault("proxy.google_base_url", "https://generativelanguage.googleapis.com")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "")

	// CORS defaults
	viper.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
	viper.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("cors.allowed_headers", []string{"Accept", "Authorization", "Content-Type", "X-LLMLab-Tags"})
	viper.SetDefault("cors.allow_credentials", true)
	viper.SetDefault("cors.max_age", 86400)
}

func bindEnvVars() {
	viper.BindEnv("server.port", "SERVER_PORT")

	viper.BindEnv("database.url", "DATABASE_URL")
	viper.BindEnv("database.max_connections", "DATABASE_MAX_CONNECTIONS")

	viper.BindEnv("redis.url", "REDIS_URL")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET")
	viper.BindEnv("jwt.token_duration", "JWT_TOKEN_DURATION")

	viper.BindEnv("github.client_id", "GITHUB_CLIENT_ID")
	viper.BindEnv("github.client_secret", "GITHUB_CLIENT_SECRET")
	viper.BindEnv("github.redirect_url", "GITHUB_REDIRECT_URI")

	viper.BindEnv("encryption.key", "ENCRYPTION_KEY")

	viper.BindEnv("cache.enabled", "CACHE_ENABLED")
	viper.BindEnv("cache.ttl", "CACHE_TTL")
	viper.BindEnv("cache.max_size", "CACHE_MAX_SIZE")

	viper.BindEnv("proxy.upstream_timeout", "PROXY_UPSTREAM_TIMEOUT")
	viper.BindEnv("proxy.openai_base_url", "OPENAI_BASE_URL")
	viper.BindEnv("proxy.anthropic_base_url", "ANTHROPIC_BASE_URL")
	viper.BindEnv("proxy.google_base_url", "GOOGLE_BASE_URL")

	viper.BindEnv("logging.level", "LOG_LEVEL")
	viper.BindEnv("logging.format", "LOG_FORMAT")

	viper.BindEnv("cors.allowed_origins", "CORS_ORIGINS")
}

func Get() *Config {
	return cfg
}
