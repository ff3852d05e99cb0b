package protocol

import (
	"context"
	"time"
)

// WatchResult is the provider's answer to a "start watching" call: the
// opaque cursor to resume from and the provider-imposed expiry of the
// subscription.
type WatchResult struct {
	HistoryID  string
	Expiration time.Time
}

// PushItem is one new item delivered since a cursor position.
type PushItem struct {
	ID   string
	Data map[string]any
}

// PushProvider is the provider-side subscription API of a mail or chat
// integration. Implementations wrap the concrete provider SDK; the core only
// drives the watch lifecycle and cursor advancement through this contract.
type PushProvider interface {
	// EnsureTopic creates or confirms the provider-side topic/channel
	// resource for the user and returns its name.
	EnsureTopic(ctx context.Context, token Token, userID string) (string, error)

	// Watch starts (or restarts) the push subscription on the topic.
	Watch(ctx context.Context, token Token, userID, topic string) (*WatchResult, error)

	// StopWatch tears the subscription down. A missing or already expired
	// subscription is not an error.
	StopWatch(ctx context.Context, token Token, userID string) error

	// ItemsSince returns the items newer than the cursor plus the new
	// cursor position.
	ItemsSince(ctx context.Context, token Token, userID, cursor string) ([]PushItem, string, error)
}
