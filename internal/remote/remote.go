// Package remote defines the contract with the remote authority, the
// external system of record reachable only while online. The production
// implementation is a network client; this package ships an in-process mock
// with simulated latency so the sync flow is exercisable end to end.
package remote

import (
	"context"
	"errors"

	"chatsync/internal/store"
)

// ErrUnavailable marks a transport-level failure. Pending entries whose
// remote call fails with it stay queued for the next sync.
var ErrUnavailable = errors.New("remote unavailable")

// Authority is the remote chat backend. All calls block on network I/O and
// must honor context cancellation and deadlines.
type Authority interface {
	// SyncUsers returns the full remote user set.
	SyncUsers(ctx context.Context) ([]store.User, error)

	// SyncChats returns the full remote chat set, participants included.
	SyncChats(ctx context.Context) ([]store.Chat, error)

	// CreateChat registers a locally created chat and returns its id.
	CreateChat(ctx context.Context, chat store.Chat) (string, error)

	// SyncMessages returns messages in the chat newer than since (unix ms)
	// and the server timestamp to use as the next watermark.
	SyncMessages(ctx context.Context, chatID string, since int64) ([]store.Message, int64, error)

	// SendMessage delivers a locally created message and returns its id.
	SendMessage(ctx context.Context, msg store.Message) (string, error)

	// UpdateUser applies a user update and returns the authoritative row.
	UpdateUser(ctx context.Context, u store.User) (store.User, error)
}
