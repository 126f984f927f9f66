package main

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	appcfg "github.com/sketchdash/client/internal/config"
	"github.com/sketchdash/client/internal/predict"
	"github.com/sketchdash/client/internal/snapshot"
	"github.com/sketchdash/client/internal/store"
)

// sketchcheck probes each configured backend and reports what works. Useful
// before pointing real clients at a deployment.
func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("REDIS_URL not set; skipping redis check")
	} else if opt, err := redis.ParseURL(cfg.RedisURL); err != nil {
		log.Printf("redis url error: %v", err)
	} else {
		rdb := redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("redis error: %v", err)
		} else {
			log.Println("redis ok")
		}
		_ = rdb.Close()
	}

	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Println("DATABASE_URL not set; skipping postgres check")
	} else if repo, err := store.NewRepository(cfg.DatabaseURL); err != nil {
		log.Printf("postgres error: %v", err)
	} else {
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Printf("postgres schema error: %v", err)
		} else {
			log.Println("postgres ok, schema ensured")
		}
		_ = repo.Close()
	}

	if strings.TrimSpace(cfg.PredictBaseURL) == "" {
		log.Println("PREDICT_BASE_URL not set; skipping predict check")
	} else {
		client := predict.NewClient(cfg.PredictBaseURL, predict.WithTimeout(8*time.Second))
		if sim, err := client.Similarity(ctx, "banana", "banana"); err != nil {
			log.Printf("predict error: %v", err)
		} else {
			log.Printf("predict ok: similarity(banana,banana)=%.2f", sim)
		}
	}

	if strings.TrimSpace(cfg.StorageBaseURL) == "" {
		log.Println("STORAGE_BASE_URL not set; skipping storage check")
	} else {
		client := snapshot.NewClient(cfg.StorageBaseURL, cfg.StorageBucket)
		log.Printf("storage configured: %s", client.PublicURL("healthcheck.png"))
	}
}
