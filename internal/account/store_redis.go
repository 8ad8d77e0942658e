package account

import (
    "context"
    "encoding/json"
    "strings"

    "github.com/redis/go-redis/v9"
)

// RedisStore keeps accounts in one hash keyed by lower-cased nickname.
type RedisStore struct {
    rdb    *redis.Client
    prefix string
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
    prefix = strings.TrimSpace(prefix)
    if prefix == "" { prefix = "omok" }
    return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) keyAccounts() string { return s.prefix + ":accounts" }

func (s *RedisStore) LoadAccounts(ctx context.Context) ([]Account, error) {
    raw, err := s.rdb.HGetAll(ctx, s.keyAccounts()).Result()
    if err == redis.Nil { return nil, nil }
    if err != nil { return nil, err }
    out := make([]Account, 0, len(raw))
    for _, v := range raw {
        var a Account
        if err := json.Unmarshal([]byte(v), &a); err != nil { return nil, err }
        out = append(out, a)
    }
    return out, nil
}

func (s *RedisStore) SaveAccount(ctx context.Context, a Account) error {
    raw, err := json.Marshal(a)
    if err != nil { return err }
    return s.rdb.HSet(ctx, s.keyAccounts(), key(a.Nickname), raw).Err()
}
