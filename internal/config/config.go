package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	WSAddr   string
	HTTPAddr string

	RedisURL        string
	RedisPrefix     string
	DatabaseURL     string
	MatchWebhookURL string

	MessagesDir string

	TurnTimeout    time.Duration
	SweepSpec      string
	StatsSpec      string
	WSSendBuffer   int
	WSPingInterval time.Duration

	ChatHistoryLimit   int
	RecentMatchesLimit int

	AllowedOrigins  []string
	RequireAccounts bool
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		WSAddr:             ":8080",
		HTTPAddr:           ":8081",
		RedisPrefix:        "omok",
		TurnTimeout:        5 * time.Minute,
		SweepSpec:          "@every 1s",
		StatsSpec:          "@every 1m",
		WSSendBuffer:       64,
		WSPingInterval:     30 * time.Second,
		ChatHistoryLimit:   100,
		RecentMatchesLimit: 50,
	}

	if v := strings.TrimSpace(os.Getenv("WS_ADDR")); v != "" {
		cfg.WSAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	if v := strings.TrimSpace(os.Getenv("REDIS_PREFIX")); v != "" {
		cfg.RedisPrefix = v
	}
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.MatchWebhookURL = strings.TrimSpace(os.Getenv("MATCH_WEBHOOK_URL"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	if v := strings.TrimSpace(os.Getenv("TURN_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, errors.New("TURN_TIMEOUT must be a positive duration")
		}
		cfg.TurnTimeout = d
	}
	if v := strings.TrimSpace(os.Getenv("SWEEP_SPEC")); v != "" {
		cfg.SweepSpec = v
	}
	if v := strings.TrimSpace(os.Getenv("STATS_SPEC")); v != "" {
		cfg.StatsSpec = v
	}
	if v := strings.TrimSpace(os.Getenv("WS_SEND_BUFFER")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.WSSendBuffer = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("WS_PING_INTERVAL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return nil, errors.New("WS_PING_INTERVAL must be a non-negative duration")
		}
		cfg.WSPingInterval = d
	}
	if v := strings.TrimSpace(os.Getenv("CHAT_HISTORY_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ChatHistoryLimit = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("RECENT_MATCHES_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RecentMatchesLimit = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		parts := strings.Split(v, ",")
		for _, p := range parts {
			s := strings.TrimSpace(p)
			if s != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, s)
			}
		}
	}
	if v := strings.TrimSpace(os.Getenv("REQUIRE_ACCOUNTS")); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			cfg.RequireAccounts = b
		}
	}

	if cfg.WSAddr == cfg.HTTPAddr {
		return nil, errors.New("WS_ADDR and HTTP_ADDR must differ")
	}

	return cfg, nil
}
