package app

import (
	"context"
	"strconv"

	"ats-optimizer/internal/analyzer"
	"ats-optimizer/internal/auth"
	"ats-optimizer/internal/common/logging"
	"ats-optimizer/internal/common/ratelimit"
	"ats-optimizer/internal/config"
	"ats-optimizer/internal/email"
	"ats-optimizer/internal/handlers"
	"ats-optimizer/internal/quota"
	"ats-optimizer/internal/redis"
	"ats-optimizer/internal/resetpass"
	"ats-optimizer/internal/storage"
	"ats-optimizer/internal/storage/postgres"
)

// App holds all the application dependencies
type App struct {
	Config      *config.Config
	Storage     storage.Storage
	RedisClient *redis.Client
	RateLimits  ratelimit.Store
	Tokens      *auth.TokenManager
	Resolver    *auth.Resolver
	Quota       *quota.Ledger
	Resets      *resetpass.Ledger
	Analyzer    analyzer.Analyzer
	Email       *email.Service
	Handlers    *handlers.Handlers
	Logger      logging.Logger
}

// New creates a new application instance with all dependencies
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "app"}),
	}

	store, err := postgres.NewAdapter(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	app.Storage = store

	if err := app.initializeRedis(); err != nil {
		return nil, err
	}
	if err := app.initializeRateLimits(); err != nil {
		return nil, err
	}

	app.Tokens, err = auth.NewTokenManager(cfg.JWTSecret)
	if err != nil {
		return nil, err
	}
	app.Resolver = auth.NewResolver(app.Tokens, app.Storage)
	app.Quota = quota.NewLedger(app.Storage)

	app.Email = email.NewService(cfg, logging.GetGlobalLogger().WithFields(
		logging.Field{Key: "component", Value: "email"}))
	app.Resets = resetpass.NewLedger(app.Storage, app.Email)

	app.Analyzer, err = analyzer.NewOpenAIAnalyzer(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	if err != nil {
		return nil, err
	}

	app.Handlers = handlers.New(app.Storage, app.Tokens, app.Resolver,
		app.Quota, app.Resets, app.Analyzer, cfg)
	if app.RedisClient != nil {
		app.Handlers.AddHealthProbe("redis", app.RedisClient.Health)
	}

	return app, nil
}

// initializeRedis connects to Redis when an address is configured. Redis is
// optional: without it the rate limiter falls back to per-instance counters.
func (app *App) initializeRedis() error {
	if app.Config.RedisAddress == "" {
		return nil
	}

	db, _ := strconv.Atoi(app.Config.RedisDB)
	poolSize, _ := strconv.Atoi(app.Config.RedisPoolSize)

	client, err := redis.NewClient(&redis.Config{
		Address:  app.Config.RedisAddress,
		Password: app.Config.RedisPassword,
		DB:       db,
		PoolSize: poolSize,
	})
	if err != nil {
		return err
	}

	app.RedisClient = client
	app.Logger.Info("connected to Redis", logging.Field{Key: "address", Value: app.Config.RedisAddress})
	return nil
}

// initializeRateLimits builds the rate limit store. The distributed backend
// is selected whenever Redis is available; otherwise each instance counts
// alone and the effective limit multiplies by the instance count, which is
// called out loudly at startup.
func (app *App) initializeRateLimits() error {
	rlConfig := ratelimit.DefaultConfig()
	rlConfig.Enabled = app.Config.RateLimitEnabled

	var store ratelimit.Store
	var err error
	if app.RedisClient != nil {
		rlConfig.Type = ratelimit.BackendDistributed
		store, err = ratelimit.New(rlConfig, app.RedisClient)
	} else {
		rlConfig.Type = ratelimit.BackendLocal
		store, err = ratelimit.New(rlConfig)
	}
	if err != nil {
		return err
	}

	app.RateLimits = store

	if rlConfig.Enabled && store.Backend() == ratelimit.BackendLocal {
		app.Logger.Warn("rate limiting uses per-instance counters; " +
			"configure REDIS_ADDRESS to enforce limits across instances")
	}

	return nil
}

// Cleanup releases all resources
func (app *App) Cleanup() {
	if app.Storage != nil {
		app.Storage.Close()
	}
	if app.RedisClient != nil {
		app.RedisClient.Close()
	}
}
