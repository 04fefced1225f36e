package twofa

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/reviewflow/reviewflow/internal/idgen"
	"github.com/reviewflow/reviewflow/internal/totp"
)

var verificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "reviewflow",
	Subsystem: "twofa",
	Name:      "verifications_total",
	Help:      "Total 2FA verification attempts by result.",
}, []string{"result"})

func init() {
	prometheus.MustRegister(verificationsTotal)
}

// Manager drives the 2FA lifecycle on top of a Store.
type Manager struct {
	store       Store
	logger      *slog.Logger
	issuer      string
	window      int
	backupCodes int
}

// NewManager creates a 2FA manager. issuer appears in authenticator
// apps; window is the accepted clock-drift tolerance in 30s steps.
func NewManager(store Store, logger *slog.Logger, issuer string, window, backupCodes int) *Manager {
	return &Manager{
		store:       store,
		logger:      logger,
		issuer:      issuer,
		window:      window,
		backupCodes: backupCodes,
	}
}

// Enrollment is returned once at enroll time. The plaintext backup
// codes are not recoverable afterwards.
type Enrollment struct {
	Secret          string   `json:"secret"`
	ProvisioningURL string   `json:"provisioningUrl"`
	BackupCodes     []string `json:"backupCodes"`
}

// Enroll provisions a fresh secret and backup codes for the user.
// The enrollment stays pending until Confirm sees a valid code.
// Enrolling while 2FA is already active is rejected; the user must
// disable first (re-enable provisions a brand-new secret).
func (m *Manager) Enroll(ctx context.Context, userID, accountLabel string) (*Enrollment, error) {
	if existing, err := m.store.GetSecret(ctx, userID); err == nil && existing.Confirmed {
		return nil, ErrAlreadyEnabled
	}

	secret := totp.GenerateSecret()
	now := time.Now().UTC()
	if err := m.store.SaveSecret(ctx, &Secret{
		UserID:    userID,
		Secret:    secret,
		CreatedAt: now,
	}); err != nil {
		return nil, err
	}

	plaintext := totp.GenerateBackupCodes(m.backupCodes)
	codes := make([]*BackupCode, len(plaintext))
	for i, code := range plaintext {
		codes[i] = &BackupCode{
			ID:        idgen.WithPrefix("bc_"),
			UserID:    userID,
			CodeHash:  hashCode(code),
			CreatedAt: now,
		}
	}
	if err := m.store.ReplaceBackupCodes(ctx, userID, codes); err != nil {
		return nil, err
	}

	m.logger.Info("2fa enrollment started", "user_id", userID)
	return &Enrollment{
		Secret:          secret,
		ProvisioningURL: totp.ProvisioningURL(secret, accountLabel, m.issuer),
		BackupCodes:     plaintext,
	}, nil
}

// Confirm activates a pending enrollment once the user proves they
// captured the secret by submitting a valid code.
func (m *Manager) Confirm(ctx context.Context, userID, code string) error {
	secret, err := m.store.GetSecret(ctx, userID)
	if err != nil {
		return err
	}
	if secret.Confirmed {
		return ErrAlreadyEnabled
	}
	if !totp.Verify(secret.Secret, code, m.window) {
		return ErrInvalidCode
	}

	now := time.Now().UTC()
	secret.Confirmed = true
	secret.ConfirmedAt = &now
	if err := m.store.SaveSecret(ctx, secret); err != nil {
		return err
	}

	m.logger.Info("2fa enabled", "user_id", userID)
	return nil
}

// Verify checks a login code: first as a TOTP code, then as an unused
// backup code. A matched backup code is burned immediately. The caller
// sees only pass/fail; all failure modes look the same to the user.
func (m *Manager) Verify(ctx context.Context, userID, code string) bool {
	secret, err := m.store.GetSecret(ctx, userID)
	if err != nil {
		verificationsTotal.WithLabelValues("not_enrolled").Inc()
		return false
	}
	if !secret.Confirmed {
		verificationsTotal.WithLabelValues("not_confirmed").Inc()
		return false
	}

	if totp.Verify(secret.Secret, code, m.window) {
		verificationsTotal.WithLabelValues("totp_ok").Inc()
		return true
	}

	if m.consumeBackupCode(ctx, userID, code) {
		verificationsTotal.WithLabelValues("backup_ok").Inc()
		return true
	}

	verificationsTotal.WithLabelValues("rejected").Inc()
	return false
}

// consumeBackupCode burns a matching unused backup code, if any.
func (m *Manager) consumeBackupCode(ctx context.Context, userID, code string) bool {
	codes, err := m.store.ListBackupCodes(ctx, userID)
	if err != nil {
		m.logger.Warn("backup code lookup failed", "user_id", userID, "error", err)
		return false
	}

	submitted := hashCode(strings.TrimSpace(code))
	for _, bc := range codes {
		if bc.Used {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(bc.CodeHash), []byte(submitted)) == 1 {
			if err := m.store.MarkBackupCodeUsed(ctx, bc.ID, time.Now().UTC()); err != nil {
				// If the burn fails the code must not count: a code that
				// cannot be marked used could otherwise be replayed.
				m.logger.Error("failed to burn backup code", "user_id", userID, "error", err)
				return false
			}
			m.logger.Info("backup code consumed", "user_id", userID)
			return true
		}
	}
	return false
}

// Disable removes the secret and all backup codes. Re-enabling later
// starts from a fresh Enroll.
func (m *Manager) Disable(ctx context.Context, userID string) error {
	if _, err := m.store.GetSecret(ctx, userID); err != nil {
		return err
	}
	if err := m.store.DeleteBackupCodes(ctx, userID); err != nil {
		return err
	}
	if err := m.store.DeleteSecret(ctx, userID); err != nil {
		return err
	}
	m.logger.Info("2fa disabled", "user_id", userID)
	return nil
}

// Status reports whether the user has 2FA pending or active.
func (m *Manager) Status(ctx context.Context, userID string) (enrolled, confirmed bool, err error) {
	secret, err := m.store.GetSecret(ctx, userID)
	if errors.Is(err, ErrNotEnrolled) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return true, secret.Confirmed, nil
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
