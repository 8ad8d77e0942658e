package account

import (
    "context"
    "sort"
    "sync"
)

// memstore is used when no redis is configured; accounts last for the process.
type memstore struct {
    mu       sync.RWMutex
    accounts map[string]Account
}

func NewMemoryStore() Store {
    return &memstore{accounts: make(map[string]Account)}
}

func (m *memstore) LoadAccounts(ctx context.Context) ([]Account, error) {
    m.mu.RLock()
    defer m.mu.RUnlock()
    out := make([]Account, 0, len(m.accounts))
    for _, a := range m.accounts {
        out = append(out, a)
    }
    sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
    return out, nil
}

func (m *memstore) SaveAccount(ctx context.Context, a Account) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    m.accounts[key(a.Nickname)] = a
    return nil
}
