package record

import (
    "context"
    "encoding/json"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"
)

const ttlRecent = 7 * 24 * time.Hour

// RedisList keeps a capped list of recent matches, newest at the head.
type RedisList struct {
    rdb    *redis.Client
    prefix string
    limit  int64
}

func NewRedisList(rdb *redis.Client, prefix string, limit int) *RedisList {
    prefix = strings.TrimSpace(prefix)
    if prefix == "" { prefix = "omok" }
    if limit <= 0 { limit = 50 }
    return &RedisList{rdb: rdb, prefix: prefix, limit: int64(limit)}
}

func (l *RedisList) keyRecent() string { return l.prefix + ":matches:recent" }

func (l *RedisList) Record(ctx context.Context, m MatchRecord) error {
    raw, err := json.Marshal(m)
    if err != nil { return err }
    pipe := l.rdb.TxPipeline()
    pipe.LPush(ctx, l.keyRecent(), raw)
    pipe.LTrim(ctx, l.keyRecent(), 0, l.limit-1)
    pipe.Expire(ctx, l.keyRecent(), ttlRecent)
    _, err = pipe.Exec(ctx)
    return err
}

func (l *RedisList) Recent(ctx context.Context, limit int) ([]MatchRecord, error) {
    if limit <= 0 || int64(limit) > l.limit { limit = int(l.limit) }
    raws, err := l.rdb.LRange(ctx, l.keyRecent(), 0, int64(limit-1)).Result()
    if err == redis.Nil { return nil, nil }
    if err != nil { return nil, err }
    out := make([]MatchRecord, 0, len(raws))
    for _, raw := range raws {
        var m MatchRecord
        if err := json.Unmarshal([]byte(raw), &m); err != nil { return nil, err }
        out = append(out, m)
    }
    return out, nil
}
