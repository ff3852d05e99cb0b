package protocol

import (
	"context"
	"time"
)

// Token is an external access credential with its expiry.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// ExpiresWithin reports whether the token is already expired or will expire
// inside the given safety window.
func (t Token) ExpiresWithin(window time.Duration) bool {
	return !t.ExpiresAt.After(time.Now().Add(window))
}

// CredentialProvider resolves stored external credentials for a user and
// provider pair. Both operations distinguish "not connected" from "refresh
// failed" through the credentials package sentinel errors.
type CredentialProvider interface {
	AccessToken(ctx context.Context, userID, provider string) (Token, error)
	Refresh(ctx context.Context, userID, provider string) (Token, error)
}
