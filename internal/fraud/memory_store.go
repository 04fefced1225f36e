package fraud

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions []SessionRecord
	tasks    []TaskRecord
	intel    map[string]*IPIntel
	scores   map[string]*Score
	alerts   []*Alert
}

// NewMemoryStore creates an in-memory fraud store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		intel:  make(map[string]*IPIntel),
		scores: make(map[string]*Score),
	}
}

func (s *MemoryStore) RecordSession(ctx context.Context, session *SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = append(s.sessions, *session)
	return nil
}

func (s *MemoryStore) RecordTask(ctx context.Context, task *TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = append(s.tasks, *task)
	return nil
}

func (s *MemoryStore) RecentIPs(ctx context.Context, userID string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var ips []string
	for i := len(s.sessions) - 1; i >= 0 && len(ips) < limit; i-- {
		sess := s.sessions[i]
		if sess.UserID != userID || seen[sess.IP] {
			continue
		}
		seen[sess.IP] = true
		ips = append(ips, sess.IP)
	}
	return ips, nil
}

func (s *MemoryStore) UsersSharingIP(ctx context.Context, ip string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make(map[string]bool)
	for _, sess := range s.sessions {
		if sess.IP == ip && sess.CreatedAt.After(since) {
			users[sess.UserID] = true
		}
	}
	return len(users), nil
}

func (s *MemoryStore) UserAgentCount(ctx context.Context, userID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agents := make(map[string]bool)
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.CreatedAt.After(since) {
			agents[sess.UserAgent] = true
		}
	}
	return len(agents), nil
}

func (s *MemoryStore) CompletionTimes(ctx context.Context, userID string, limit int) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var times []float64
	for i := len(s.tasks) - 1; i >= 0 && len(times) < limit; i-- {
		task := s.tasks[i]
		if task.UserID == userID {
			times = append(times, task.Duration())
		}
	}
	return times, nil
}

func (s *MemoryStore) ActivityHours(ctx context.Context, userID string) ([24]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hours [24]int
	for _, task := range s.tasks {
		if task.UserID == userID {
			hours[task.CreatedAt.Hour()]++
		}
	}
	return hours, nil
}

func (s *MemoryStore) PeakDailyTaskCount(ctx context.Context, userID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	days := make(map[string]int)
	peak := 0
	for _, task := range s.tasks {
		if task.UserID != userID || !task.CreatedAt.After(since) {
			continue
		}
		day := task.CreatedAt.Format("2006-01-02")
		days[day]++
		if days[day] > peak {
			peak = days[day]
		}
	}
	return peak, nil
}

func (s *MemoryStore) ActiveUserIDs(ctx context.Context, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var ids []string
	for _, sess := range s.sessions {
		if !seen[sess.UserID] {
			seen[sess.UserID] = true
			ids = append(ids, sess.UserID)
		}
	}
	for _, task := range s.tasks {
		if !seen[task.UserID] {
			seen[task.UserID] = true
			ids = append(ids, task.UserID)
		}
	}

	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *MemoryStore) GetIPIntel(ctx context.Context, ip string) (*IPIntel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	intel, ok := s.intel[ip]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *intel
	return &copied, nil
}

func (s *MemoryStore) PutIPIntel(ctx context.Context, intel *IPIntel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *intel
	s.intel[intel.IP] = &copied
	return nil
}

func (s *MemoryStore) UpsertScore(ctx context.Context, score *Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *score
	copied.Flags = append([]string(nil), score.Flags...)
	s.scores[score.UserID] = &copied
	return nil
}

func (s *MemoryStore) GetScore(ctx context.Context, userID string) (*Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	score, ok := s.scores[userID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *score
	copied.Flags = append([]string(nil), score.Flags...)
	return &copied, nil
}

func (s *MemoryStore) InsertAlert(ctx context.Context, alert *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *alert
	copied.Flags = append([]string(nil), alert.Flags...)
	s.alerts = append(s.alerts, &copied)
	return nil
}

func (s *MemoryStore) ListAlerts(ctx context.Context, status AlertStatus, limit int) ([]*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Alert
	for i := len(s.alerts) - 1; i >= 0 && len(result) < limit; i-- {
		alert := s.alerts[i]
		if status != "" && alert.Status != status {
			continue
		}
		copied := *alert
		copied.Flags = append([]string(nil), alert.Flags...)
		result = append(result, &copied)
	}
	return result, nil
}

func (s *MemoryStore) UpdateAlertStatus(ctx context.Context, id string, status AlertStatus) (*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, alert := range s.alerts {
		if alert.ID == id {
			alert.Status = status
			alert.UpdatedAt = time.Now().UTC()
			copied := *alert
			copied.Flags = append([]string(nil), alert.Flags...)
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}
