package account

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/park285/omok-server/internal/gameerr"
)

const (
	minNickname = 3
	maxNickname = 20
	minPassword = 6
	maxPassword = 30
)

// Account reserves a nickname behind a password.
type Account struct {
	Nickname     string    `json:"nickname"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store persists accounts. Implementations must be safe for concurrent use.
type Store interface {
	LoadAccounts(ctx context.Context) ([]Account, error)
	SaveAccount(ctx context.Context, a Account) error
}

// Service keeps every account in memory and writes through to the store.
type Service struct {
	mu     sync.RWMutex
	byNick map[string]Account

	store  Store
	cost   int
	now    func() time.Time
	logger *zap.Logger
}

type Option func(*Service)

// WithHashCost overrides the bcrypt cost.
func WithHashCost(cost int) Option { return func(s *Service) { s.cost = cost } }

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewService(store Store, opts ...Option) *Service {
	if store == nil {
		store = NewMemoryStore()
	}
	s := &Service{
		byNick: make(map[string]Account),
		store:  store,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func key(nickname string) string { return strings.ToLower(strings.TrimSpace(nickname)) }

// Load replaces the in-memory set with the store's contents.
func (s *Service) Load(ctx context.Context) error {
	list, err := s.store.LoadAccounts(ctx)
	if err != nil {
		return err
	}
	m := make(map[string]Account, len(list))
	for _, a := range list {
		if k := key(a.Nickname); k != "" {
			m[k] = a
		}
	}
	s.mu.Lock()
	s.byNick = m
	s.mu.Unlock()
	s.logger.Info("accounts_loaded", zap.Int("count", len(m)))
	return nil
}

// ValidateCredentials enforces the registration policy.
func ValidateCredentials(nickname, password string) (string, error) {
	nickname = strings.TrimSpace(nickname)
	n := utf8.RuneCountInString(nickname)
	if n < minNickname || n > maxNickname {
		return "", gameerr.ErrInvalidNickname.With("%d to %d characters", minNickname, maxNickname)
	}
	if !asciiAlnum(nickname) {
		return "", gameerr.ErrInvalidNickname.With("letters and digits only")
	}
	// ASCII only keeps every valid password inside bcrypt's 72-byte input limit.
	if len(password) < minPassword || len(password) > maxPassword || !asciiAlnum(password) {
		return "", gameerr.ErrInvalidPassword.With("%d to %d letters or digits", minPassword, maxPassword)
	}
	return nickname, nil
}

func asciiAlnum(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z') && !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// Register creates an account. A store failure is logged; the account stays
// usable for the life of the process.
func (s *Service) Register(ctx context.Context, nickname, password string) (Account, error) {
	nickname, err := ValidateCredentials(nickname, password)
	if err != nil {
		return Account{}, err
	}
	if s.Reserved(nickname) {
		return Account{}, gameerr.ErrNicknameTaken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return Account{}, err
	}
	a := Account{Nickname: nickname, PasswordHash: string(hash), CreatedAt: s.now()}

	s.mu.Lock()
	if _, taken := s.byNick[key(nickname)]; taken {
		s.mu.Unlock()
		return Account{}, gameerr.ErrNicknameTaken
	}
	s.byNick[key(nickname)] = a
	s.mu.Unlock()

	if err := s.store.SaveAccount(ctx, a); err != nil {
		s.logger.Error("account_persist_error", zap.String("nickname", nickname), zap.Error(err))
	} else {
		s.logger.Info("account_registered", zap.String("nickname", nickname))
	}
	return a, nil
}

// Reserved reports whether nickname belongs to an account.
func (s *Service) Reserved(nickname string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byNick[key(nickname)]
	return ok
}

// Verify checks password against the account for nickname and returns the
// canonical nickname.
func (s *Service) Verify(nickname, password string) (string, error) {
	s.mu.RLock()
	a, ok := s.byNick[key(nickname)]
	s.mu.RUnlock()
	if !ok {
		return "", gameerr.ErrWrongCredentials
	}
	err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return "", gameerr.ErrWrongCredentials
	}
	if err != nil {
		return "", err
	}
	return a.Nickname, nil
}

// Count returns the number of accounts.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byNick)
}
