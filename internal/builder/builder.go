package builder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sketchdash/client/internal/channel"
	"github.com/sketchdash/client/internal/config"
	"github.com/sketchdash/client/internal/game"
	"github.com/sketchdash/client/internal/predict"
	"github.com/sketchdash/client/internal/snapshot"
	"github.com/sketchdash/client/internal/store"
	"github.com/sketchdash/client/internal/topics"
)

// Deps bundles everything a session needs, wired from configuration.
type Deps struct {
	Store     store.Store
	Channel   channel.Channel
	Feed      *store.Feed
	Predictor *predict.Client
	Snapshots *snapshot.Client
	Topics    *topics.Catalog
	Redis     *redis.Client
}

// New wires the collaborators behind a session. The channel transport is
// chosen by configuration: a realtime gateway URL takes precedence, otherwise
// Redis pub/sub carries presence and broadcasts. Without DATABASE_URL the
// store falls back to memory, which only makes sense for a single client.
func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Deps{}

	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		repo, err := store.NewRepository(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		d.Store = repo

		feed, err := store.NewFeed(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init change feed: %w", err)
		}
		d.Feed = feed
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		d.Store = store.NewMemoryStore()
	}

	if strings.TrimSpace(cfg.RealtimeWSURL) != "" {
		d.Channel = channel.NewGateway(cfg.RealtimeWSURL, 5, 2*time.Second)
	} else if strings.TrimSpace(cfg.RedisURL) != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opt)
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		d.Redis = rdb
		d.Channel = channel.NewRedisChannel(rdb)
	} else {
		return nil, fmt.Errorf("REALTIME_WS_URL or REDIS_URL is required for the room channel")
	}

	if strings.TrimSpace(cfg.PredictBaseURL) != "" {
		d.Predictor = predict.NewClient(cfg.PredictBaseURL)
	}
	if strings.TrimSpace(cfg.StorageBaseURL) != "" {
		d.Snapshots = snapshot.NewClient(cfg.StorageBaseURL, cfg.StorageBucket)
	}

	catalog, err := topics.New(cfg.TopicsDir)
	if err != nil {
		return nil, fmt.Errorf("load topic catalog: %w", err)
	}
	d.Topics = catalog

	return d, nil
}

// GameDeps adapts the wired collaborators to the session's dependency set.
func (d *Deps) GameDeps() game.Deps {
	gd := game.Deps{
		Store:   d.Store,
		Channel: d.Channel,
		Topics:  d.Topics,
	}
	if d.Feed != nil {
		gd.FeedEvents = d.Feed.Events()
	}
	if d.Predictor != nil {
		gd.Predictor = d.Predictor
	}
	if d.Snapshots != nil {
		gd.Snapshots = d.Snapshots
	}
	return gd
}

// Close releases everything New opened.
func (d *Deps) Close(ctx context.Context) {
	if d.Feed != nil {
		_ = d.Feed.Close(ctx)
	}
	if d.Store != nil {
		_ = d.Store.Close()
	}
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
}
