package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mrolabs/growthwatch/internal/models"
)

type PostgresKnownFollowerRepository struct {
	db *sql.DB
}

func NewPostgresKnownFollowerRepository(db *sql.DB) *PostgresKnownFollowerRepository {
	return &PostgresKnownFollowerRepository{db: db}
}

// InsertIfAbsent stores the given records, skipping any (account, follower)
// pair already present, and returns the records that were actually
// inserted. ON CONFLICT DO NOTHING keeps the operation safe under
// concurrent cycles and never touches an existing welcomed flag.
func (r *PostgresKnownFollowerRepository) InsertIfAbsent(ctx context.Context, followers []*models.KnownFollower) ([]*models.KnownFollower, error) {
	if len(followers) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO known_followers (account_id, follower_id, handle, welcomed)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, follower_id) DO NOTHING
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted []*models.KnownFollower
	for _, f := range followers {
		result, err := stmt.ExecContext(ctx, f.AccountID, f.FollowerID, f.Handle, f.Welcomed)
		if err != nil {
			return nil, fmt.Errorf("failed to insert follower %s: %w", f.FollowerID, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n > 0 {
			inserted = append(inserted, f)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit follower inserts: %w", err)
	}

	return inserted, nil
}

func (r *PostgresKnownFollowerRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.KnownFollower, error) {
	query := `
		SELECT account_id, follower_id, handle, welcomed, created_at
		FROM known_followers
		WHERE account_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list known followers: %w", err)
	}
	defer rows.Close()

	var followers []*models.KnownFollower
	for rows.Next() {
		var f models.KnownFollower
		if err := rows.Scan(&f.AccountID, &f.FollowerID, &f.Handle, &f.Welcomed, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan known follower: %w", err)
		}
		followers = append(followers, &f)
	}

	return followers, rows.Err()
}

func (r *PostgresKnownFollowerRepository) MarkWelcomed(ctx context.Context, accountID, followerID string) error {
	query := `
		UPDATE known_followers
		SET welcomed = TRUE
		WHERE account_id = $1 AND follower_id = $2
	`

	result, err := r.db.ExecContext(ctx, query, accountID, followerID)
	if err != nil {
		return fmt.Errorf("failed to mark follower welcomed: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("known follower not found: %s/%s", accountID, followerID)
	}

	return nil
}

func (r *PostgresKnownFollowerRepository) Stats(ctx context.Context, accountID string) (models.LedgerStats, error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT welcomed)
		FROM known_followers
		WHERE account_id = $1
	`

	var stats models.LedgerStats
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(&stats.Total, &stats.PendingWelcome)
	if err != nil && err != sql.ErrNoRows {
		return models.LedgerStats{}, fmt.Errorf("failed to count known followers: %w", err)
	}

	return stats, nil
}
