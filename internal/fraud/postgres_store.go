package fraud

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists fraud data in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed fraud store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) RecordSession(ctx context.Context, session *SessionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO review_sessions (user_id, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4)
	`, session.UserID, session.IP, session.UserAgent, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecordTask(ctx context.Context, task *TaskRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO review_tasks (user_id, created_at, completed_at, rating)
		VALUES ($1, $2, $3, $4)
	`, task.UserID, task.CreatedAt, task.CompletedAt, task.Rating)
	if err != nil {
		return fmt.Errorf("failed to record task: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentIPs(ctx context.Context, userID string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ip FROM (
			SELECT DISTINCT ON (ip) ip, created_at
			FROM review_sessions
			WHERE user_id = $1
			ORDER BY ip, created_at DESC
		) t
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent ips: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ips []string
	for rows.Next() {
		var ip string
		if err := rows.Scan(&ip); err != nil {
			continue
		}
		ips = append(ips, ip)
	}
	return ips, rows.Err()
}

func (s *PostgresStore) UsersSharingIP(ctx context.Context, ip string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT user_id)
		FROM review_sessions
		WHERE ip = $1 AND created_at > $2
	`, ip, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users sharing ip: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) UserAgentCount(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT user_agent)
		FROM review_sessions
		WHERE user_id = $1 AND created_at > $2
	`, userID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count user agents: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CompletionTimes(ctx context.Context, userID string, limit int) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT EXTRACT(EPOCH FROM (completed_at - created_at))
		FROM review_tasks
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list completion times: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var times []float64
	for rows.Next() {
		var seconds float64
		if err := rows.Scan(&seconds); err != nil {
			continue
		}
		times = append(times, seconds)
	}
	return times, rows.Err()
}

func (s *PostgresStore) ActivityHours(ctx context.Context, userID string) ([24]int, error) {
	var hours [24]int
	rows, err := s.db.QueryContext(ctx, `
		SELECT EXTRACT(HOUR FROM created_at)::int, COUNT(*)
		FROM review_tasks
		WHERE user_id = $1
		GROUP BY 1
	`, userID)
	if err != nil {
		return hours, fmt.Errorf("failed to load activity hours: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var hour, count int
		if err := rows.Scan(&hour, &count); err != nil {
			continue
		}
		if hour >= 0 && hour < 24 {
			hours[hour] = count
		}
	}
	return hours, rows.Err()
}

func (s *PostgresStore) PeakDailyTaskCount(ctx context.Context, userID string, since time.Time) (int, error) {
	var peak int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(n), 0) FROM (
			SELECT COUNT(*) AS n
			FROM review_tasks
			WHERE user_id = $1 AND created_at > $2
			GROUP BY created_at::date
		) t
	`, userID, since).Scan(&peak)
	if err != nil {
		return 0, fmt.Errorf("failed to compute peak daily task count: %w", err)
	}
	return peak, nil
}

func (s *PostgresStore) ActiveUserIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM (
			SELECT user_id FROM review_sessions
			UNION
			SELECT user_id FROM review_tasks
		) t
		ORDER BY RANDOM()
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to sample active users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) GetIPIntel(ctx context.Context, ip string) (*IPIntel, error) {
	var intel IPIntel
	err := s.db.QueryRowContext(ctx, `
		SELECT ip, is_vpn, is_proxy, is_tor, is_datacenter, risk_score, checked_at
		FROM ip_intelligence
		WHERE ip = $1
	`, ip).Scan(&intel.IP, &intel.IsVPN, &intel.IsProxy, &intel.IsTor,
		&intel.IsDatacenter, &intel.RiskScore, &intel.CheckedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ip intelligence: %w", err)
	}
	return &intel, nil
}

func (s *PostgresStore) PutIPIntel(ctx context.Context, intel *IPIntel) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ip_intelligence (ip, is_vpn, is_proxy, is_tor, is_datacenter, risk_score, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (ip) DO UPDATE SET
			is_vpn        = EXCLUDED.is_vpn,
			is_proxy      = EXCLUDED.is_proxy,
			is_tor        = EXCLUDED.is_tor,
			is_datacenter = EXCLUDED.is_datacenter,
			risk_score    = EXCLUDED.risk_score,
			checked_at    = EXCLUDED.checked_at
	`, intel.IP, intel.IsVPN, intel.IsProxy, intel.IsTor,
		intel.IsDatacenter, intel.RiskScore, intel.CheckedAt)
	if err != nil {
		return fmt.Errorf("failed to cache ip intelligence: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertScore(ctx context.Context, score *Score) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fraud_scores (user_id, overall, risk_level, ip_score, device_score,
			behavior_score, content_score, velocity_score, flags, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			overall        = EXCLUDED.overall,
			risk_level     = EXCLUDED.risk_level,
			ip_score       = EXCLUDED.ip_score,
			device_score   = EXCLUDED.device_score,
			behavior_score = EXCLUDED.behavior_score,
			content_score  = EXCLUDED.content_score,
			velocity_score = EXCLUDED.velocity_score,
			flags          = EXCLUDED.flags,
			computed_at    = EXCLUDED.computed_at
	`, score.UserID, score.Overall, string(score.RiskLevel),
		score.SubScores.IP, score.SubScores.Device, score.SubScores.Behavior,
		score.SubScores.Content, score.SubScores.Velocity,
		pq.Array(score.Flags), score.ComputedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert fraud score: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetScore(ctx context.Context, userID string) (*Score, error) {
	var score Score
	var level string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, overall, risk_level, ip_score, device_score,
			behavior_score, content_score, velocity_score, flags, computed_at
		FROM fraud_scores
		WHERE user_id = $1
	`, userID).Scan(&score.UserID, &score.Overall, &level,
		&score.SubScores.IP, &score.SubScores.Device, &score.SubScores.Behavior,
		&score.SubScores.Content, &score.SubScores.Velocity,
		pq.Array(&score.Flags), &score.ComputedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load fraud score: %w", err)
	}
	score.RiskLevel = RiskLevel(level)
	return &score, nil
}

func (s *PostgresStore) InsertAlert(ctx context.Context, alert *Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fraud_alerts (id, user_id, score, risk_level, flags, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, alert.ID, alert.UserID, alert.Score, string(alert.RiskLevel),
		pq.Array(alert.Flags), string(alert.Status), alert.CreatedAt, alert.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert fraud alert: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAlerts(ctx context.Context, status AlertStatus, limit int) ([]*Alert, error) {
	query := `
		SELECT id, user_id, score, risk_level, flags, status, created_at, updated_at
		FROM fraud_alerts
	`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, string(status), limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list fraud alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Alert
	for rows.Next() {
		var alert Alert
		var level, alertStatus string
		if err := rows.Scan(&alert.ID, &alert.UserID, &alert.Score, &level,
			pq.Array(&alert.Flags), &alertStatus, &alert.CreatedAt, &alert.UpdatedAt); err != nil {
			continue
		}
		alert.RiskLevel = RiskLevel(level)
		alert.Status = AlertStatus(alertStatus)
		result = append(result, &alert)
	}
	return result, rows.Err()
}

func (s *PostgresStore) UpdateAlertStatus(ctx context.Context, id string, status AlertStatus) (*Alert, error) {
	var alert Alert
	var level, alertStatus string
	err := s.db.QueryRowContext(ctx, `
		UPDATE fraud_alerts
		SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING id, user_id, score, risk_level, flags, status, created_at, updated_at
	`, id, string(status)).Scan(&alert.ID, &alert.UserID, &alert.Score, &level,
		pq.Array(&alert.Flags), &alertStatus, &alert.CreatedAt, &alert.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update fraud alert: %w", err)
	}
	alert.RiskLevel = RiskLevel(level)
	alert.Status = AlertStatus(alertStatus)
	return &alert, nil
}
