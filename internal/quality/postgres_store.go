package quality

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore persists reviews and quality scores in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed quality store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) SaveReview(ctx context.Context, review *ReviewText) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reviews (id, user_id, body, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body
	`, review.ID, review.UserID, review.Text, review.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save review: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentReviewTexts(ctx context.Context, excludeID string, minLen, limit int) ([]ReviewText, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, body, created_at
		FROM reviews
		WHERE id <> $1 AND char_length(body) > $2
		ORDER BY created_at DESC
		LIMIT $3
	`, excludeID, minLen, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent reviews: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []ReviewText
	for rows.Next() {
		var r ReviewText
		if err := rows.Scan(&r.ID, &r.UserID, &r.Text, &r.CreatedAt); err != nil {
			continue
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// ReviewTextsByUser returns the user's most recent review texts,
// newest first. Feeds the fraud engine's content duplication check.
func (s *PostgresStore) ReviewTextsByUser(ctx context.Context, userID string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body
		FROM reviews
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list user reviews: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var texts []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			continue
		}
		texts = append(texts, text)
	}
	return texts, rows.Err()
}

func (s *PostgresStore) ReviewText(ctx context.Context, reviewID string) (string, error) {
	var text string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM reviews WHERE id = $1`, reviewID,
	).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load review text: %w", err)
	}
	return text, nil
}

func (s *PostgresStore) UpsertScore(ctx context.Context, score *Score) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quality_scores
			(review_id, quality, spam_probability, plagiarism_score, flags, is_flagged, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (review_id) DO UPDATE SET
			quality          = EXCLUDED.quality,
			spam_probability = EXCLUDED.spam_probability,
			plagiarism_score = EXCLUDED.plagiarism_score,
			flags            = EXCLUDED.flags,
			is_flagged       = EXCLUDED.is_flagged,
			computed_at      = EXCLUDED.computed_at
	`,
		score.ReviewID,
		score.Quality,
		score.SpamProbability,
		score.PlagiarismScore,
		pq.Array(score.Flags),
		score.Flagged,
		score.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert quality score: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetScore(ctx context.Context, reviewID string) (*Score, error) {
	var score Score
	err := s.db.QueryRowContext(ctx, `
		SELECT review_id, quality, spam_probability, plagiarism_score, flags, is_flagged, computed_at
		FROM quality_scores
		WHERE review_id = $1
	`, reviewID).Scan(
		&score.ReviewID,
		&score.Quality,
		&score.SpamProbability,
		&score.PlagiarismScore,
		pq.Array(&score.Flags),
		&score.Flagged,
		&score.ComputedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load quality score: %w", err)
	}
	return &score, nil
}
