package models

import (
	"context"
	"time"
)

// TrackedAccount represents a social media account under follower polling.
type TrackedAccount struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Credential    string     `json:"-"` // opaque access credential, never serialized
	BaselineCount int        `json:"baseline_count"`
	Threshold     int        `json:"threshold"`
	PollingActive bool       `json:"polling_active"`
	LastCheckAt   *time.Time `json:"last_check_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TrackedAccountRepository defines persistence operations for tracked accounts.
type TrackedAccountRepository interface {
	// Store creates or updates a tracked account
	Store(ctx context.Context, account *TrackedAccount) error

	// GetByUsername retrieves an account by username.
	// Returns nil (no error) when the account does not exist.
	GetByUsername(ctx context.Context, username string) (*TrackedAccount, error)

	// ListActive returns all accounts with polling enabled
	ListActive(ctx context.Context) ([]*TrackedAccount, error)

	// UpdateBaseline advances the baseline count and the last-check timestamp.
	// The baseline only moves through this method after a cycle that also
	// updated the follower ledger (or confirmed an empty scrape).
	UpdateBaseline(ctx context.Context, id string, baseline int, checkedAt time.Time) error

	// UpdateLastCheck records a check attempt without touching the baseline
	UpdateLastCheck(ctx context.Context, id string, checkedAt time.Time) error

	// SetPollingActive enables or disables polling for an account
	SetPollingActive(ctx context.Context, id string, active bool) error
}
