package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookflow/hookflow/pkg/protocol"
)

func TestAccessToken(t *testing.T) {
	store := NewMemoryStore(nil)

	token := protocol.Token{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}
	store.Put("u1", "mail", token)

	got, err := store.AccessToken(context.Background(), "u1", "mail")
	require.NoError(t, err)
	assert.Equal(t, token, got)

	_, err = store.AccessToken(context.Background(), "u1", "chat")
	assert.True(t, IsNotConnected(err))

	_, err = store.AccessToken(context.Background(), "u2", "mail")
	assert.True(t, IsNotConnected(err))
}

func TestRefresh_StoresNewToken(t *testing.T) {
	renewed := protocol.Token{AccessToken: "new", ExpiresAt: time.Now().Add(time.Hour)}

	store := NewMemoryStore(func(_ context.Context, userID, provider string, current protocol.Token) (protocol.Token, error) {
		assert.Equal(t, "u1", userID)
		assert.Equal(t, "mail", provider)
		assert.Equal(t, "old", current.AccessToken)

		return renewed, nil
	})

	store.Put("u1", "mail", protocol.Token{AccessToken: "old"})

	got, err := store.Refresh(context.Background(), "u1", "mail")
	require.NoError(t, err)
	assert.Equal(t, renewed, got)

	stored, err := store.AccessToken(context.Background(), "u1", "mail")
	require.NoError(t, err)
	assert.Equal(t, "new", stored.AccessToken)
}

func TestRefresh_NotConnected(t *testing.T) {
	store := NewMemoryStore(nil)

	_, err := store.Refresh(context.Background(), "u1", "mail")
	assert.True(t, IsNotConnected(err))
}

func TestRefresh_FailureWrapped(t *testing.T) {
	cause := errors.New("provider unavailable")

	store := NewMemoryStore(func(_ context.Context, _, _ string, _ protocol.Token) (protocol.Token, error) {
		return protocol.Token{}, cause
	})
	store.Put("u1", "mail", protocol.Token{AccessToken: "old"})

	_, err := store.Refresh(context.Background(), "u1", "mail")
	assert.ErrorIs(t, err, ErrRefreshFailed)
	assert.ErrorIs(t, err, cause)
}

func TestRefresh_NoRefreshFunc(t *testing.T) {
	store := NewMemoryStore(nil)
	store.Put("u1", "mail", protocol.Token{AccessToken: "old"})

	_, err := store.Refresh(context.Background(), "u1", "mail")
	assert.ErrorIs(t, err, ErrRefreshFailed)
}

func TestToken_ExpiresWithin(t *testing.T) {
	assert.True(t, protocol.Token{ExpiresAt: time.Now().Add(time.Minute)}.ExpiresWithin(5*time.Minute))
	assert.True(t, protocol.Token{ExpiresAt: time.Now().Add(-time.Minute)}.ExpiresWithin(5*time.Minute))
	assert.False(t, protocol.Token{ExpiresAt: time.Now().Add(time.Hour)}.ExpiresWithin(5*time.Minute))
}
