package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mrolabs/growthwatch/internal/models"
)

type PostgresSyncedProfileRepository struct {
	db *sql.DB
}

func NewPostgresSyncedProfileRepository(db *sql.DB) *PostgresSyncedProfileRepository {
	return &PostgresSyncedProfileRepository{db: db}
}

func (r *PostgresSyncedProfileRepository) GetByUsername(ctx context.Context, username string) (*models.SyncedProfile, error) {
	username = models.NormalizeUsername(username)

	query := `
		SELECT username, follower_count, following_count, post_count, bio,
		       owner_id, connected, blocked, blocked_reason,
		       creatives_used, creatives_limit, first_synced_at, last_updated_at
		FROM synced_profiles
		WHERE username = $1
	`

	var p models.SyncedProfile
	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&p.Username,
		&p.FollowerCount,
		&p.FollowingCount,
		&p.PostCount,
		&p.Bio,
		&p.OwnerID,
		&p.Connected,
		&p.Blocked,
		&p.BlockedReason,
		&p.CreativesUsed,
		&p.CreativesLimit,
		&p.FirstSyncedAt,
		&p.LastUpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get synced profile: %w", err)
	}

	history, err := r.loadGrowthHistory(ctx, username)
	if err != nil {
		return nil, err
	}
	p.GrowthHistory = history

	return &p, nil
}

func (r *PostgresSyncedProfileRepository) Upsert(ctx context.Context, profile *models.SyncedProfile) error {
	profile.Username = models.NormalizeUsername(profile.Username)

	query := `
		INSERT INTO synced_profiles
		(username, follower_count, following_count, post_count, bio, owner_id,
		 connected, blocked, blocked_reason, creatives_used, creatives_limit,
		 first_synced_at, last_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (username)
		DO UPDATE SET
			follower_count = EXCLUDED.follower_count,
			following_count = EXCLUDED.following_count,
			post_count = EXCLUDED.post_count,
			bio = EXCLUDED.bio,
			connected = EXCLUDED.connected,
			last_updated_at = EXCLUDED.last_updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		profile.Username,
		profile.FollowerCount,
		profile.FollowingCount,
		profile.PostCount,
		profile.Bio,
		profile.OwnerID,
		profile.Connected,
		profile.Blocked,
		profile.BlockedReason,
		profile.CreativesUsed,
		profile.CreativesLimit,
		profile.FirstSyncedAt,
		profile.LastUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert synced profile: %w", err)
	}

	return nil
}

func (r *PostgresSyncedProfileRepository) AppendGrowthPoint(ctx context.Context, username string, point models.GrowthPoint) error {
	username = models.NormalizeUsername(username)

	query := `
		INSERT INTO growth_history (username, recorded_at, follower_count)
		VALUES ($1, $2, $3)
	`

	_, err := r.db.ExecContext(ctx, query, username, point.RecordedAt, point.FollowerCount)
	if err != nil {
		return fmt.Errorf("failed to append growth point: %w", err)
	}

	return nil
}

func (r *PostgresSyncedProfileRepository) Delete(ctx context.Context, username string) error {
	username = models.NormalizeUsername(username)

	result, err := r.db.ExecContext(ctx, "DELETE FROM synced_profiles WHERE username = $1", username)
	if err != nil {
		return fmt.Errorf("failed to delete synced profile: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("synced profile not found: %s", username)
	}

	return nil
}

func (r *PostgresSyncedProfileRepository) loadGrowthHistory(ctx context.Context, username string) ([]models.GrowthPoint, error) {
	query := `
		SELECT recorded_at, follower_count
		FROM growth_history
		WHERE username = $1
		ORDER BY recorded_at
	`

	rows, err := r.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("failed to load growth history: %w", err)
	}
	defer rows.Close()

	var history []models.GrowthPoint
	for rows.Next() {
		var point models.GrowthPoint
		if err := rows.Scan(&point.RecordedAt, &point.FollowerCount); err != nil {
			return nil, fmt.Errorf("failed to scan growth point: %w", err)
		}
		history = append(history, point)
	}

	return history, rows.Err()
}
