// Package session holds the signed-in user's API token. Logout is the point
// where every piece of per-user client state is discarded.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/jrjohn/arcana-pos-go/internal/storage"
)

// TokenStorageKey is where the token is persisted
const TokenStorageKey = "session:token"

var (
	ErrInvalidToken = errors.New("session: invalid token")
	ErrExpiredToken = errors.New("session: token has expired")
)

// Claims are the token fields the client reads. Signatures are verified by the server only.
type Claims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// QueueClearer discards pending writes; *offline.Service satisfies it
type QueueClearer interface {
	ClearQueue(ctx context.Context)
}

// CacheClearer discards cached reads and in-flight tracking; *cache.ResponseCache satisfies it
type CacheClearer interface {
	Clear()
}

// Manager tracks the current token
type Manager struct {
	store  storage.Store
	queue  QueueClearer
	cache  CacheClearer
	logger *zap.Logger
	parser *jwt.Parser
	now    func() time.Time

	mu     sync.RWMutex
	token  string
	claims *Claims

	logoutMu sync.Mutex
	onLogout []func()
}

// NewManager restores a persisted token. queue and cache may be nil.
func NewManager(ctx context.Context, store storage.Store, queue QueueClearer, cache CacheClearer, logger *zap.Logger) *Manager {
	m := &Manager{
		store:  store,
		queue:  queue,
		cache:  cache,
		logger: logger.With(zap.String("component", "session")),
		parser: jwt.NewParser(),
		now:    time.Now,
	}

	data, err := store.Get(ctx, TokenStorageKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		m.logger.Warn("Failed to restore session", zap.Error(err))
	default:
		claims, err := m.parse(string(data))
		if err != nil {
			m.logger.Info("Discarding stored session", zap.Error(err))
			break
		}
		m.token, m.claims = string(data), claims
	}
	return m
}

func (m *Manager) parse(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := m.parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ExpiresAt != nil && !m.now().Before(claims.ExpiresAt.Time) {
		return nil, ErrExpiredToken
	}
	return claims, nil
}

// Login stores token after checking it is well formed and unexpired
func (m *Manager) Login(ctx context.Context, token string) error {
	claims, err := m.parse(token)
	if err != nil {
		return err
	}

	if err := m.store.Set(ctx, TokenStorageKey, []byte(token)); err != nil {
		m.logger.Warn("Session not persisted", zap.Error(err))
	}

	m.mu.Lock()
	m.token, m.claims = token, claims
	m.mu.Unlock()

	m.logger.Info("Signed in", zap.String("username", claims.Username))
	return nil
}

// Token returns the bearer token, or "" when signed out or expired
func (m *Manager) Token() string {
	if !m.IsAuthenticated() {
		return ""
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// IsAuthenticated reports whether an unexpired token is held
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.token == "" {
		return false
	}
	exp := m.claims.ExpiresAt
	return exp == nil || m.now().Before(exp.Time)
}

// Claims returns a copy of the current token's claims
func (m *Manager) Claims() (Claims, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.claims == nil {
		return Claims{}, false
	}
	return *m.claims, true
}

// OnLogout registers fn to run after Logout
func (m *Manager) OnLogout(fn func()) {
	m.logoutMu.Lock()
	m.onLogout = append(m.onLogout, fn)
	m.logoutMu.Unlock()
}

// Logout forgets the token, the offline queue and every cached response
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	m.token, m.claims = "", nil
	m.mu.Unlock()

	if err := m.store.Delete(ctx, TokenStorageKey); err != nil {
		m.logger.Warn("Stored session not removed", zap.Error(err))
	}
	if m.queue != nil {
		m.queue.ClearQueue(ctx)
	}
	if m.cache != nil {
		m.cache.Clear()
	}

	m.logoutMu.Lock()
	hooks := append([]func(){}, m.onLogout...)
	m.logoutMu.Unlock()
	for _, fn := range hooks {
		fn()
	}

	m.logger.Info("Signed out")
}
