// Package credentials provides the credential provider sentinel errors and
// an in-memory implementation used for tests and single-process deployments.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hookflow/hookflow/pkg/protocol"
)

var (
	// ErrNotConnected indicates the user never connected the external provider.
	ErrNotConnected = errors.New("provider not connected")

	// ErrRefreshFailed indicates a stored credential exists but could not be refreshed.
	ErrRefreshFailed = errors.New("credential refresh failed")
)

func IsNotConnected(err error) bool { return errors.Is(err, ErrNotConnected) }

// RefreshFunc exchanges an expired token for a new one.
type RefreshFunc func(ctx context.Context, userID, provider string, current protocol.Token) (protocol.Token, error)

// MemoryStore implements protocol.CredentialProvider from an in-memory
// token map with a pluggable refresh function.
type MemoryStore struct {
	mu      sync.RWMutex
	tokens  map[string]protocol.Token
	refresh RefreshFunc
}

func NewMemoryStore(refresh RefreshFunc) *MemoryStore {
	return &MemoryStore{
		tokens:  make(map[string]protocol.Token),
		refresh: refresh,
	}
}

func key(userID, provider string) string {
	return userID + "/" + provider
}

// Put stores a token for the user and provider pair.
func (s *MemoryStore) Put(userID, provider string, token protocol.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[key(userID, provider)] = token
}

func (s *MemoryStore) AccessToken(_ context.Context, userID, provider string) (protocol.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[key(userID, provider)]
	if !ok {
		return protocol.Token{}, fmt.Errorf("%s for user %s: %w", provider, userID, ErrNotConnected)
	}

	return token, nil
}

func (s *MemoryStore) Refresh(ctx context.Context, userID, provider string) (protocol.Token, error) {
	current, err := s.AccessToken(ctx, userID, provider)
	if err != nil {
		return protocol.Token{}, err
	}

	if s.refresh == nil {
		return protocol.Token{}, fmt.Errorf("%s for user %s: %w", provider, userID, ErrRefreshFailed)
	}

	refreshed, err := s.refresh(ctx, userID, provider, current)
	if err != nil {
		return protocol.Token{}, fmt.Errorf("%s for user %s: %w: %w", provider, userID, ErrRefreshFailed, err)
	}

	s.Put(userID, provider, refreshed)

	return refreshed, nil
}
