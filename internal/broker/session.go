package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gagyebu/internal/core"
)

// TokenReuseMargin is how long before expiry a cached token is replaced.
const TokenReuseMargin = 5 * time.Minute

// TokenStore persists issued tokens on the connection row.
type TokenStore interface {
	SaveToken(ctx context.Context, userID, token string, expiresAt time.Time) error
}

// Session caches one token per user and issues a new one only when the
// cached token is within TokenReuseMargin of expiry. Issuance is
// serialized per user.
type Session struct {
	client *Client
	store  TokenStore
	now    func() time.Time

	mu     sync.Mutex
	tokens map[string]Token
	locks  map[string]*sync.Mutex
}

func NewSession(client *Client, store TokenStore) *Session {
	return &Session{
		client: client,
		store:  store,
		now:    time.Now,
		tokens: map[string]Token{},
		locks:  map[string]*sync.Mutex{},
	}
}

func (s *Session) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

func (s *Session) cached(userID string) (Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[userID]
	return t, ok && t.ExpiresAt.After(s.now().Add(TokenReuseMargin))
}

// Token returns a usable bearer token for conn.
func (s *Session) Token(ctx context.Context, conn core.BrokerConnection) (string, error) {
	l := s.userLock(conn.UserID)
	l.Lock()
	defer l.Unlock()

	if t, ok := s.cached(conn.UserID); ok {
		return t.AccessToken, nil
	}
	if conn.TokenValid(s.now(), TokenReuseMargin) {
		s.remember(conn.UserID, Token{AccessToken: conn.AccessToken, ExpiresAt: conn.TokenExpiresAt})
		return conn.AccessToken, nil
	}

	t, err := s.client.IssueToken(ctx, CredentialsOf(conn))
	if err != nil {
		return "", err
	}
	s.remember(conn.UserID, t)
	if err := s.store.SaveToken(ctx, conn.UserID, t.AccessToken, t.ExpiresAt); err != nil {
		return "", fmt.Errorf("persist broker token: %w", err)
	}
	return t.AccessToken, nil
}

// Forget drops the cached token, e.g. after credentials change.
func (s *Session) Forget(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, userID)
}

func (s *Session) remember(userID string, t Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[userID] = t
}

// CredentialsOf extracts the app credentials from a connection.
func CredentialsOf(conn core.BrokerConnection) Credentials {
	return Credentials{AppKey: conn.AppKey, AppSecret: conn.AppSecret, Virtual: conn.Virtual}
}
