// Package quality scores review-text submissions.
//
// A submission earns points across five capped components (length,
// word count, spam, plagiarism, content structure) which sum to a
// quality score in [0,100]. Reviews that trip spam or duplicate-content
// detection, or land under the minimum score, are flagged for manual
// re-review.
package quality

import (
	"context"
	"errors"
	"time"
)

// Flags attached to a score by the analyzer.
const (
	FlagShortText    = "short_text"
	FlagTooFewWords  = "too_few_words"
	FlagSpamDetected = "spam_detected"
	FlagDuplicate    = "duplicate_content"
	FlagLowScore     = "low_quality_score"
)

// ErrNotFound is returned when no score or review exists for an id.
var ErrNotFound = errors.New("quality: not found")

// Score is the analyzer's verdict on one review submission.
// Recomputing (admin re-review) overwrites the stored row.
type Score struct {
	ReviewID        string    `json:"reviewId"`
	Quality         int       `json:"qualityScore"`
	SpamProbability float64   `json:"spamProbability"`
	PlagiarismScore float64   `json:"plagiarismScore"`
	Flags           []string  `json:"flags"`
	Flagged         bool      `json:"isFlagged"`
	ComputedAt      time.Time `json:"computedAt"`
}

// ReviewText is a historical review row used by the plagiarism scan.
type ReviewText struct {
	ID        string
	UserID    string
	Text      string
	CreatedAt time.Time
}

// Store is the persistence surface the analyzer needs: recent review
// texts to scan against, the review body for recomputes, and upsert of
// the resulting score.
type Store interface {
	// SaveReview records a submitted review body so later submissions
	// can be scanned against it.
	SaveReview(ctx context.Context, review *ReviewText) error

	// RecentReviewTexts returns up to limit most-recent reviews whose
	// text is longer than minLen characters, excluding excludeID.
	RecentReviewTexts(ctx context.Context, excludeID string, minLen, limit int) ([]ReviewText, error)

	// ReviewText returns the stored body of a review, or ErrNotFound.
	ReviewText(ctx context.Context, reviewID string) (string, error)

	// UpsertScore stores the score, replacing any prior row for the review.
	UpsertScore(ctx context.Context, score *Score) error

	// GetScore returns the stored score for a review, or ErrNotFound.
	GetScore(ctx context.Context, reviewID string) (*Score, error)
}
