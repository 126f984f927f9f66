package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig carries everything the client needs to reach its collaborators
// plus the gameplay tunables shared by every session.
type AppConfig struct {
	DatabaseURL string
	RedisURL    string

	// Optional realtime gateway. When set, the broadcast channel runs over a
	// websocket instead of Redis pub/sub.
	RealtimeWSURL string

	PredictBaseURL string
	StorageBaseURL string
	StorageBucket  string

	RoundDuration time.Duration
	SettleDelay   time.Duration
	MinPlayers    int
	GuessAward    int

	// Elapsed-seconds marks at which the drawer requests an AI prediction
	// during an active round.
	Checkpoints []int

	TopicsDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		StorageBucket: "snapshots",
		RoundDuration: 45 * time.Second,
		SettleDelay:   2 * time.Second,
		MinPlayers:    2,
		GuessAward:    100,
		Checkpoints:   []int{5, 15, 25, 35},
	}

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.RealtimeWSURL = strings.TrimSpace(os.Getenv("REALTIME_WS_URL"))
	cfg.PredictBaseURL = strings.TrimSpace(os.Getenv("PREDICT_BASE_URL"))
	cfg.StorageBaseURL = strings.TrimSpace(os.Getenv("STORAGE_BASE_URL"))
	cfg.TopicsDir = strings.TrimSpace(os.Getenv("TOPICS_DIR"))

	if v := strings.TrimSpace(os.Getenv("STORAGE_BUCKET")); v != "" {
		cfg.StorageBucket = v
	}
	if v := strings.TrimSpace(os.Getenv("ROUND_DURATION")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RoundDuration = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("SETTLE_DELAY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.SettleDelay = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("MIN_PLAYERS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 2 {
			cfg.MinPlayers = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("GUESS_AWARD")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.GuessAward = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("AI_CHECKPOINTS")); v != "" {
		var cps []int
		for _, p := range strings.Split(v, ",") {
			if n, err := strconv.Atoi(strings.TrimSpace(p)); err == nil && n > 0 {
				cps = append(cps, n)
			}
		}
		if len(cps) > 0 {
			cfg.Checkpoints = cps
		}
	}

	return cfg, nil
}
