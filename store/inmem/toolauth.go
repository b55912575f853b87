package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/agentmesh/runtime/store"
)

// ToolAuthStore is a process-local store.ToolAuthStore. It holds an
// oauth2.Token per (provider, user) and mints a short-lived signed JWT on
// ResolveSession so the core only ever sees an opaque bearer string, never
// the underlying OAuth2 refresh token.
type ToolAuthStore struct {
	mu       sync.RWMutex
	tokens   map[string]*oauth2.Token // key: provider+"/"+user
	secrets  map[string]string        // secret key -> value, e.g. "OPENAI_API_KEY"
	required map[string][]string      // provider -> required secret keys
	signKey  []byte
}

// NewToolAuthStore creates a store signing minted session tokens with signKey.
func NewToolAuthStore(signKey []byte) *ToolAuthStore {
	return &ToolAuthStore{
		tokens:   make(map[string]*oauth2.Token),
		secrets:  make(map[string]string),
		required: make(map[string][]string),
		signKey:  signKey,
	}
}

// PutToken registers an OAuth2 token for a (provider, user) pair.
func (s *ToolAuthStore) PutToken(provider, user string, tok *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[provider+"/"+user] = tok
}

// PutSecret registers a raw secret value (e.g. a provider API key).
func (s *ToolAuthStore) PutSecret(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[key] = value
}

// SetRequiredSecrets declares which secret keys a provider needs.
func (s *ToolAuthStore) SetRequiredSecrets(provider string, keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.required[provider] = keys
}

func (s *ToolAuthStore) ResolveSession(_ context.Context, provider, user string) (string, error) {
	s.mu.RLock()
	tok, ok := s.tokens[provider+"/"+user]
	s.mu.RUnlock()
	if !ok {
		return "", store.ErrSecretNotFound
	}
	claims := jwt.MapClaims{
		"provider": provider,
		"user":     user,
		"exp":      time.Now().Add(10 * time.Minute).Unix(),
		"access":   tok.AccessToken,
	}
	signed := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return signed.SignedString(s.signKey)
}

func (s *ToolAuthStore) RequiredSecrets(_ context.Context, provider string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.required[provider], nil
}

func (s *ToolAuthStore) HasSecret(_ context.Context, key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.secrets[key]
	return ok
}
