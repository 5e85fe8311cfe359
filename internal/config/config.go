package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	RedisURL    string
	DatabaseURL string

	ListenAddr   string
	WSListenAddr string

	WaitingGameTTL  time.Duration
	GameRetention   time.Duration
	CleanupInterval time.Duration

	MsgTemplateDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:      ":8080",
		WSListenAddr:    ":8081",
		WaitingGameTTL:  5 * time.Minute,
		CleanupInterval: time.Minute,
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("WS_LISTEN_ADDR")); v != "" {
		cfg.WSListenAddr = v
	}

	if v := strings.TrimSpace(os.Getenv("WAITING_GAME_TTL")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.WaitingGameTTL = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("GAME_RETENTION")); v != "" { // hours, 0 keeps forever
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.GameRetention = time.Duration(n) * time.Hour
		}
	}
	if v := strings.TrimSpace(os.Getenv("CLEANUP_INTERVAL")); v != "" { // seconds, 0 disables
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CleanupInterval = time.Duration(n) * time.Second
		}
	}

	cfg.MsgTemplateDir = strings.TrimSpace(os.Getenv("MSG_TEMPLATE_DIR"))

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	return cfg, nil
}
