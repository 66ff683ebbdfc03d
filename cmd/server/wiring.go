package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"scheduling-service/internal/availability"
	"scheduling-service/internal/booking"
	"scheduling-service/internal/cache"
	"scheduling-service/internal/calendar"
	"scheduling-service/internal/config"
	"scheduling-service/internal/gcal"
	"scheduling-service/internal/logging"
	"scheduling-service/internal/store/postgres"
)

// deps is the object graph shared by serve and worker.
type deps struct {
	cfg      config.Config
	logger   *zap.Logger
	store    *postgres.Store
	gcal     *gcal.Client
	oauth    *oauth2.Config
	resolver *availability.Resolver
	bookings *booking.Service
	closers  []func()
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	_ = d.logger.Sync()
}

func loadConfig() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func openStore(ctx context.Context, cfg config.Config) (*postgres.Store, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL required")
	}
	store, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return store, nil
}

func setup(ctx context.Context, migrate bool) (*deps, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	d := &deps{cfg: cfg, logger: logger}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	d.store = store
	d.closers = append(d.closers, store.Close)

	if migrate {
		if err := store.Migrate(ctx); err != nil {
			d.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	d.oauth = gcal.NewOAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
	if d.oauth == nil {
		logger.Warn("Google Calendar not configured, bookings will not create events")
	}
	d.gcal = &gcal.Client{OAuth: d.oauth, Tokens: store, Logger: logger.Named("gcal")}

	var provider calendar.Provider = d.gcal
	if cfg.BusyCacheTTL > 0 {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisCacheDB)
		if err != nil {
			logger.Warn("busy cache disabled", zap.Error(err))
		} else {
			d.closers = append(d.closers, func() { _ = rdb.Close() })
			provider = &cache.Busy{Provider: d.gcal, Redis: rdb, TTL: cfg.BusyCacheTTL, Logger: logger.Named("cache")}
		}
	}

	d.resolver = &availability.Resolver{
		Store:             store,
		Calendar:          provider,
		Logger:            logger.Named("availability"),
		Location:          cfg.Location(),
		LookupConcurrency: cfg.AttendeeLookupConcurrency,
	}
	d.bookings = &booking.Service{
		Store:    store,
		Calendar: provider,
		Resolver: d.resolver,
		Logger:   logger.Named("booking"),
		Quotas:   cfg.Quotas(),
		Location: cfg.Location(),
	}
	return d, nil
}
