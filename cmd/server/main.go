package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	gormlogger "gorm.io/gorm/logger"

	"github.com/llmlab/llmlab/internal/auth"
	"github.com/llmlab/llmlab/internal/cache"
	"github.com/llmlab/llmlab/internal/config"
	"github.com/llmlab/llmlab/internal/crypto"
	"github.com/llmlab/llmlab/internal/database"
	"github.com/llmlab/llmlab/internal/logger"
	"github.com/llmlab/llmlab/internal/models"
	"github.com/llmlab/llmlab/internal/providers"
	"github.com/llmlab/llmlab/internal/proxy"
	"github.com/llmlab/llmlab/internal/router"
	"github.com/llmlab/llmlab/internal/services/alerts"
	"github.com/llmlab/llmlab/internal/services/anomaly"
	"github.com/llmlab/llmlab/internal/services/forecast"
	"github.com/llmlab/llmlab/internal/services/hooks"
	"github.com/llmlab/llmlab/internal/services/keys"
	"github.com/llmlab/llmlab/internal/services/tags"
	"github.com/llmlab/llmlab/internal/services/usage"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if _, err := logger.Initialize(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	if err := database.Initialize(&database.Config{
		DSN:             cfg.Database.URL,
		MaxConnections:  cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        gormlogger.Warn,
	}); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() { _ = database.Close() }()
	db := database.GetDB()

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		return fmt.Errorf("failed to initialize encryption: %w", err)
	}

	jwtService, err := auth.NewJWTService(cfg.JWT.SecretKey, cfg.JWT.Issuer, cfg.JWT.TokenDuration)
	if err != nil {
		return fmt.Errorf("failed to initialize jwt: %w", err)
	}

	cacheBackend, err := buildCache(cfg)
	if err != nil {
		return err
	}

	adapters := map[string]providers.Adapter{
		models.ProviderOpenAI:    providers.NewOpenAI(cfg.Proxy.OpenAIBaseURL, cfg.Proxy.UpstreamTimeout),
		models.ProviderAnthropic: providers.NewAnthropic(cfg.Proxy.AnthropicBaseURL, cfg.Proxy.UpstreamTimeout),
		models.ProviderGoogle:    providers.NewGoogle(cfg.Proxy.GoogleBaseURL, cfg.Proxy.UpstreamTimeout),
	}

	keysService := keys.NewService(db, encryptor)
	tagsService := tags.NewService(db)
	usageService := usage.NewService(db)
	forecastService := forecast.NewService(db)
	budgetWatcher := alerts.NewWatcher(db, cfg.Proxy.WebhookTimeout)
	anomalyDetector := anomaly.NewDetector(db, cfg.Proxy.WebhookTimeout)
	dispatcher := hooks.NewDispatcher(cfg.Proxy.HookWorkers, cfg.Proxy.HookQueueSize)
	defer dispatcher.Close()

	pipeline := proxy.NewPipeline(proxy.Options{
		DB:           db,
		Keys:         keysService,
		Tags:         tagsService,
		Cache:        cacheBackend,
		Adapters:     adapters,
		Budget:       budgetWatcher,
		Anomaly:      anomalyDetector,
		Hooks:        dispatcher,
		CacheEnabled: cfg.Cache.Enabled,
		CacheTTL:     cfg.Cache.TTL,
		MaxCapture:   cfg.Proxy.MaxStreamCapture,
	})

	mux := router.New(router.Dependencies{
		Config:    cfg,
		DB:        db,
		Cache:     cacheBackend,
		JWT:       jwtService,
		Exchanger: auth.NewGitHubExchanger(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHub.RedirectURL),
		Keys:      keysService,
		Tags:      tagsService,
		Usage:     usageService,
		Forecast:  forecastService,
		Budget:    budgetWatcher,
		Anomaly:   anomalyDetector,
		Pipeline:  pipeline,
		Version:   version,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.Int("port", cfg.Server.Port),
			zap.String("version", version))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// buildCache picks Redis when configured, otherwise the in-process LRU.
func buildCache(cfg *config.Config) (cache.Backend, error) {
	if cfg.Redis.URL == "" {
		logger.Info("using in-memory response cache")
		return cache.NewMemoryCache(cfg.Cache.MaxSize, cfg.Cache.TTL), nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("using redis response cache")
	return cache.NewRedisCache(client, logger.Get(), cfg.Cache.MaxSize, cfg.Cache.TTL), nil
}
