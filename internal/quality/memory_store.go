package quality

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu      sync.RWMutex
	reviews []ReviewText // insertion order, oldest first
	scores  map[string]*Score
}

// NewMemoryStore creates an in-memory quality store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		scores: make(map[string]*Score),
	}
}

func (s *MemoryStore) SaveReview(ctx context.Context, review *ReviewText) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.reviews {
		if s.reviews[i].ID == review.ID {
			s.reviews[i] = *review
			return nil
		}
	}
	s.reviews = append(s.reviews, *review)
	return nil
}

func (s *MemoryStore) RecentReviewTexts(ctx context.Context, excludeID string, minLen, limit int) ([]ReviewText, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []ReviewText
	for i := len(s.reviews) - 1; i >= 0 && len(result) < limit; i-- {
		r := s.reviews[i]
		if r.ID == excludeID || len(r.Text) <= minLen {
			continue
		}
		result = append(result, r)
	}
	return result, nil
}

// ReviewTextsByUser returns the user's most recent review texts,
// newest first. Feeds the fraud engine's content duplication check.
func (s *MemoryStore) ReviewTextsByUser(ctx context.Context, userID string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var texts []string
	for i := len(s.reviews) - 1; i >= 0 && len(texts) < limit; i-- {
		if s.reviews[i].UserID == userID {
			texts = append(texts, s.reviews[i].Text)
		}
	}
	return texts, nil
}

func (s *MemoryStore) ReviewText(ctx context.Context, reviewID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.reviews {
		if s.reviews[i].ID == reviewID {
			return s.reviews[i].Text, nil
		}
	}
	return "", ErrNotFound
}

func (s *MemoryStore) UpsertScore(ctx context.Context, score *Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *score
	copied.Flags = append([]string(nil), score.Flags...)
	s.scores[score.ReviewID] = &copied
	return nil
}

func (s *MemoryStore) GetScore(ctx context.Context, reviewID string) (*Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.scores[reviewID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *stored
	copied.Flags = append([]string(nil), stored.Flags...)
	return &copied, nil
}
