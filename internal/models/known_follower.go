package models

import (
	"context"
	"time"
)

// KnownFollower is a follower identity previously observed for a tracked
// account. The (AccountID, FollowerID) pair is unique; inserts are
// idempotent and a record is never overwritten once stored.
type KnownFollower struct {
	AccountID  string    `json:"account_id"`
	FollowerID string    `json:"follower_id"`
	Handle     string    `json:"handle"`
	Welcomed   bool      `json:"welcomed"`
	CreatedAt  time.Time `json:"created_at"`
}

// LedgerStats summarizes a tracked account's follower ledger.
type LedgerStats struct {
	Total          int `json:"total"`
	PendingWelcome int `json:"pending_welcome"`
}

// KnownFollowerRepository defines persistence operations for the
// known-followers ledger.
type KnownFollowerRepository interface {
	// InsertIfAbsent stores records that are not already present and
	// returns the ones actually inserted. Existing records are left
	// untouched, including their welcomed flag.
	InsertIfAbsent(ctx context.Context, followers []*KnownFollower) ([]*KnownFollower, error)

	// ListByAccount returns every known follower for an account
	ListByAccount(ctx context.Context, accountID string) ([]*KnownFollower, error)

	// MarkWelcomed flips the welcomed flag to true. The flag is only ever
	// set by the welcome dispatch path and never reverted.
	MarkWelcomed(ctx context.Context, accountID, followerID string) error

	// Stats returns ledger size and pending-welcome count for an account
	Stats(ctx context.Context, accountID string) (LedgerStats, error)
}
