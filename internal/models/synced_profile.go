package models

import (
	"context"
	"strings"
	"time"
)

// GrowthPoint is one entry in a profile's follower growth history.
type GrowthPoint struct {
	RecordedAt    time.Time `json:"recorded_at"`
	FollowerCount int       `json:"follower_count"`
}

// SyncedProfile is an external roster entity tracked over time by the
// sync queue. Usernames are case-insensitive; Normalize before lookups.
type SyncedProfile struct {
	Username       string        `json:"username"`
	FollowerCount  int           `json:"follower_count"`
	FollowingCount int           `json:"following_count"`
	PostCount      int           `json:"post_count"`
	Bio            string        `json:"bio,omitempty"`
	OwnerID        string        `json:"owner_id,omitempty"`
	Connected      bool          `json:"connected"`
	Blocked        bool          `json:"blocked"`
	BlockedReason  string        `json:"blocked_reason,omitempty"`
	CreativesUsed  int           `json:"creatives_used"`
	CreativesLimit int           `json:"creatives_limit"`
	FirstSyncedAt  time.Time     `json:"first_synced_at"`
	LastUpdatedAt  time.Time     `json:"last_updated_at"`
	GrowthHistory  []GrowthPoint `json:"growth_history,omitempty"`
}

// NormalizeUsername lowercases and trims a profile username so it can be
// used as a case-insensitive key.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(username, "@")))
}

// SyncedProfileRepository defines persistence operations for synced profiles.
type SyncedProfileRepository interface {
	// GetByUsername retrieves a profile with its growth history.
	// Returns nil (no error) when the profile does not exist.
	GetByUsername(ctx context.Context, username string) (*SyncedProfile, error)

	// Upsert creates or updates a profile snapshot. Growth history is not
	// written here; use AppendGrowthPoint.
	Upsert(ctx context.Context, profile *SyncedProfile) error

	// AppendGrowthPoint appends one history point. History is append-only
	// and chronologically ordered; callers append only when the follower
	// count changed from the last stored point.
	AppendGrowthPoint(ctx context.Context, username string, point GrowthPoint) error

	// Delete removes a profile and its history (explicit admin action only)
	Delete(ctx context.Context, username string) error
}
