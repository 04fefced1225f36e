package twofa

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore persists 2FA secrets and backup codes in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed 2FA store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) SaveSecret(ctx context.Context, secret *Secret) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO twofa_secrets (user_id, secret, confirmed, created_at, confirmed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			secret       = EXCLUDED.secret,
			confirmed    = EXCLUDED.confirmed,
			created_at   = EXCLUDED.created_at,
			confirmed_at = EXCLUDED.confirmed_at
	`, secret.UserID, secret.Secret, secret.Confirmed, secret.CreatedAt, secret.ConfirmedAt)
	if err != nil {
		return fmt.Errorf("failed to save 2fa secret: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSecret(ctx context.Context, userID string) (*Secret, error) {
	var secret Secret
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, secret, confirmed, created_at, confirmed_at
		FROM twofa_secrets
		WHERE user_id = $1
	`, userID).Scan(&secret.UserID, &secret.Secret, &secret.Confirmed, &secret.CreatedAt, &secret.ConfirmedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotEnrolled
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load 2fa secret: %w", err)
	}
	return &secret, nil
}

func (s *PostgresStore) DeleteSecret(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM twofa_secrets WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete 2fa secret: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReplaceBackupCodes(ctx context.Context, userID string, codes []*BackupCode) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin backup code swap: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM twofa_backup_codes WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear backup codes: %w", err)
	}
	for _, c := range codes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO twofa_backup_codes (id, user_id, code_hash, used, used_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, c.ID, c.UserID, c.CodeHash, c.Used, c.UsedAt, c.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert backup code: %w", err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) ListBackupCodes(ctx context.Context, userID string) ([]*BackupCode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, code_hash, used, used_at, created_at
		FROM twofa_backup_codes
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list backup codes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*BackupCode
	for rows.Next() {
		var c BackupCode
		if err := rows.Scan(&c.ID, &c.UserID, &c.CodeHash, &c.Used, &c.UsedAt, &c.CreatedAt); err != nil {
			continue
		}
		result = append(result, &c)
	}
	return result, rows.Err()
}

func (s *PostgresStore) MarkBackupCodeUsed(ctx context.Context, id string, usedAt time.Time) error {
	// Guard against replay: only an unused code can be burned.
	res, err := s.db.ExecContext(ctx, `
		UPDATE twofa_backup_codes
		SET used = TRUE, used_at = $2
		WHERE id = $1 AND used = FALSE
	`, id, usedAt)
	if err != nil {
		return fmt.Errorf("failed to mark backup code used: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("backup code %s already used or missing", id)
	}
	return nil
}

func (s *PostgresStore) DeleteBackupCodes(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM twofa_backup_codes WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete backup codes: %w", err)
	}
	return nil
}
