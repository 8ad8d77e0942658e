package session

import (
    "context"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"
)

const (
    ttlPresence     = 24 * time.Hour
    presenceTimeout = 2 * time.Second
)

// RedisPresence mirrors who is online into a redis hash so other processes
// can read it. Writes are best-effort.
type RedisPresence struct {
    rdb    *redis.Client
    prefix string
    logger *zap.Logger
}

func NewRedisPresence(rdb *redis.Client, prefix string, logger *zap.Logger) *RedisPresence {
    if logger == nil { logger = zap.NewNop() }
    prefix = strings.TrimSpace(prefix)
    if prefix == "" { prefix = "omok" }
    return &RedisPresence{rdb: rdb, prefix: prefix, logger: logger}
}

func (p *RedisPresence) keyOnline() string { return p.prefix + ":presence" }

func (p *RedisPresence) Online(sessionID, nickname string) {
    ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
    defer cancel()
    pipe := p.rdb.TxPipeline()
    pipe.HSet(ctx, p.keyOnline(), sessionID, nickname)
    pipe.Expire(ctx, p.keyOnline(), ttlPresence)
    if _, err := pipe.Exec(ctx); err != nil {
        p.logger.Warn("presence_online_error", zap.String("session", sessionID), zap.Error(err))
    }
}

func (p *RedisPresence) Offline(sessionID string) {
    ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
    defer cancel()
    if err := p.rdb.HDel(ctx, p.keyOnline(), sessionID).Err(); err != nil {
        p.logger.Warn("presence_offline_error", zap.String("session", sessionID), zap.Error(err))
    }
}

// Nicknames lists the mirrored nicknames.
func (p *RedisPresence) Nicknames(ctx context.Context) ([]string, error) {
    return p.rdb.HVals(ctx, p.keyOnline()).Result()
}

// Reset drops entries left by a previous process.
func (p *RedisPresence) Reset(ctx context.Context) error {
    return p.rdb.Del(ctx, p.keyOnline()).Err()
}
