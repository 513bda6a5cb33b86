package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mrolabs/growthwatch/internal/models"
)

type PostgresTrackedAccountRepository struct {
	db *sql.DB
}

func NewPostgresTrackedAccountRepository(db *sql.DB) *PostgresTrackedAccountRepository {
	return &PostgresTrackedAccountRepository{db: db}
}

func (r *PostgresTrackedAccountRepository) Store(ctx context.Context, account *models.TrackedAccount) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}

	query := `
		INSERT INTO tracked_accounts
		(id, username, credential, baseline_count, threshold, polling_active, last_check_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (username)
		DO UPDATE SET
			credential = EXCLUDED.credential,
			baseline_count = EXCLUDED.baseline_count,
			threshold = EXCLUDED.threshold,
			polling_active = EXCLUDED.polling_active,
			last_check_at = EXCLUDED.last_check_at,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		account.ID,
		account.Username,
		account.Credential,
		account.BaselineCount,
		account.Threshold,
		account.PollingActive,
		account.LastCheckAt,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to store tracked account: %w", err)
	}

	return nil
}

func (r *PostgresTrackedAccountRepository) GetByUsername(ctx context.Context, username string) (*models.TrackedAccount, error) {
	query := `
		SELECT id, username, credential, baseline_count, threshold,
		       polling_active, last_check_at, created_at, updated_at
		FROM tracked_accounts
		WHERE username = $1
	`

	account, err := scanTrackedAccount(r.db.QueryRowContext(ctx, query, username))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tracked account: %w", err)
	}

	return account, nil
}

func (r *PostgresTrackedAccountRepository) ListActive(ctx context.Context) ([]*models.TrackedAccount, error) {
	query := `
		SELECT id, username, credential, baseline_count, threshold,
		       polling_active, last_check_at, created_at, updated_at
		FROM tracked_accounts
		WHERE polling_active
		ORDER BY username
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.TrackedAccount
	for rows.Next() {
		account, err := scanTrackedAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tracked account: %w", err)
		}
		accounts = append(accounts, account)
	}

	return accounts, rows.Err()
}

func (r *PostgresTrackedAccountRepository) UpdateBaseline(ctx context.Context, id string, baseline int, checkedAt time.Time) error {
	query := `
		UPDATE tracked_accounts
		SET baseline_count = $2, last_check_at = $3, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, baseline, checkedAt)
	if err != nil {
		return fmt.Errorf("failed to update baseline: %w", err)
	}

	return requireRow(result, id)
}

func (r *PostgresTrackedAccountRepository) UpdateLastCheck(ctx context.Context, id string, checkedAt time.Time) error {
	query := `
		UPDATE tracked_accounts
		SET last_check_at = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, checkedAt)
	if err != nil {
		return fmt.Errorf("failed to update last check: %w", err)
	}

	return requireRow(result, id)
}

func (r *PostgresTrackedAccountRepository) SetPollingActive(ctx context.Context, id string, active bool) error {
	query := `
		UPDATE tracked_accounts
		SET polling_active = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, active)
	if err != nil {
		return fmt.Errorf("failed to set polling active: %w", err)
	}

	return requireRow(result, id)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrackedAccount(row rowScanner) (*models.TrackedAccount, error) {
	var account models.TrackedAccount
	var lastCheck sql.NullTime

	err := row.Scan(
		&account.ID,
		&account.Username,
		&account.Credential,
		&account.BaselineCount,
		&account.Threshold,
		&account.PollingActive,
		&lastCheck,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastCheck.Valid {
		account.LastCheckAt = &lastCheck.Time
	}

	return &account, nil
}

func requireRow(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("tracked account not found: %s", id)
	}
	return nil
}
