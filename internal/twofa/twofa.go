// Package twofa manages two-factor authentication enrollment and
// verification for ReviewFlow accounts.
//
// Lifecycle: Enroll provisions a fresh TOTP secret and backup codes but
// leaves 2FA pending; Confirm with the first valid code activates it;
// Disable wipes the secret and codes. Re-enrolling always provisions a
// new secret; an existing one is never reused.
package twofa

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrNotEnrolled    = errors.New("twofa: user has no 2FA secret")
	ErrAlreadyEnabled = errors.New("twofa: 2FA already enabled")
	ErrInvalidCode    = errors.New("twofa: invalid code")
)

// Secret is a user's provisioned TOTP secret.
type Secret struct {
	UserID      string     `json:"userId"`
	Secret      string     `json:"-"` // Base32, never serialized
	Confirmed   bool       `json:"confirmed"`
	CreatedAt   time.Time  `json:"createdAt"`
	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
}

// BackupCode is a single-use recovery code. Only the SHA-256 hash is
// stored; Used is set exactly once and never reset.
type BackupCode struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	CodeHash  string     `json:"-"`
	Used      bool       `json:"used"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Store persists 2FA secrets and backup codes.
type Store interface {
	SaveSecret(ctx context.Context, secret *Secret) error
	GetSecret(ctx context.Context, userID string) (*Secret, error) // ErrNotEnrolled when absent
	DeleteSecret(ctx context.Context, userID string) error

	// ReplaceBackupCodes atomically swaps the user's backup codes.
	ReplaceBackupCodes(ctx context.Context, userID string, codes []*BackupCode) error
	ListBackupCodes(ctx context.Context, userID string) ([]*BackupCode, error)
	MarkBackupCodeUsed(ctx context.Context, id string, usedAt time.Time) error
	DeleteBackupCodes(ctx context.Context, userID string) error
}
