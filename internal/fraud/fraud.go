// Package fraud implements multi-factor fraud risk scoring for
// ReviewFlow users.
//
// A user's score is a weighted combination of five sub-scores (IP
// reputation, device churn, behavioral timing, content duplication,
// task velocity), each computed independently from historical session,
// task, and review data. Scores of 50 and above raise an alert for
// admin review. A batch runner recomputes scores for a sample of
// active users on an interval.
package fraud

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a score or alert does not exist.
var ErrNotFound = errors.New("fraud: not found")

// RiskLevel is the categorical bucket derived from the overall score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Risk level thresholds on the overall score.
const (
	CriticalThreshold = 75.0
	HighThreshold     = 50.0
	MediumThreshold   = 25.0
)

// LevelFor buckets an overall score into a risk level.
func LevelFor(overall float64) RiskLevel {
	switch {
	case overall >= CriticalThreshold:
		return RiskCritical
	case overall >= HighThreshold:
		return RiskHigh
	case overall >= MediumThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// SubScores are the five independent risk factors, each in [0,100].
type SubScores struct {
	IP       float64 `json:"ip"`
	Device   float64 `json:"device"`
	Behavior float64 `json:"behavior"`
	Content  float64 `json:"content"`
	Velocity float64 `json:"velocity"`
}

// Score is the latest fraud assessment for a user. Upserts replace the
// prior value; there is no history table.
type Score struct {
	UserID     string    `json:"userId"`
	Overall    float64   `json:"overall"`
	RiskLevel  RiskLevel `json:"riskLevel"`
	SubScores  SubScores `json:"subScores"`
	Flags      []string  `json:"flags"`
	ComputedAt time.Time `json:"computedAt"`
}

// AlertStatus tracks an alert through admin review.
type AlertStatus string

const (
	AlertNew       AlertStatus = "new"
	AlertReviewed  AlertStatus = "reviewed"
	AlertDismissed AlertStatus = "dismissed"
)

// Alert is an append-only record raised when a score reaches high or
// critical. Only the status ever changes after insert.
type Alert struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	Score     float64     `json:"score"`
	RiskLevel RiskLevel   `json:"riskLevel"`
	Flags     []string    `json:"flags"`
	Status    AlertStatus `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// SessionRecord is one observed login/session event.
type SessionRecord struct {
	UserID    string    `json:"userId"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"userAgent"`
	CreatedAt time.Time `json:"createdAt"`
}

// TaskRecord is one completed review task with its timing.
type TaskRecord struct {
	UserID      string    `json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
	CompletedAt time.Time `json:"completedAt"`
	Rating      int       `json:"rating"`
}

// Duration returns the completion time in seconds.
func (t *TaskRecord) Duration() float64 {
	return t.CompletedAt.Sub(t.CreatedAt).Seconds()
}

// IPIntel is a cached intelligence record for a single IP.
type IPIntel struct {
	IP           string    `json:"ip"`
	IsVPN        bool      `json:"isVpn"`
	IsProxy      bool      `json:"isProxy"`
	IsTor        bool      `json:"isTor"`
	IsDatacenter bool      `json:"isDatacenter"`
	RiskScore    float64   `json:"riskScore"`
	CheckedAt    time.Time `json:"checkedAt"`
}

// Store persists the historical data the engine reads and the scores
// and alerts it writes.
type Store interface {
	RecordSession(ctx context.Context, session *SessionRecord) error
	RecordTask(ctx context.Context, task *TaskRecord) error

	// RecentIPs returns the user's most recent distinct session IPs,
	// newest first, up to limit.
	RecentIPs(ctx context.Context, userID string, limit int) ([]string, error)
	// UsersSharingIP counts distinct users with a session from ip since
	// the given time.
	UsersSharingIP(ctx context.Context, ip string, since time.Time) (int, error)
	// UserAgentCount counts distinct user-agents the user presented
	// since the given time.
	UserAgentCount(ctx context.Context, userID string, since time.Time) (int, error)
	// CompletionTimes returns the user's most recent task durations in
	// seconds, up to limit.
	CompletionTimes(ctx context.Context, userID string, limit int) ([]float64, error)
	// ActivityHours returns a histogram of the user's task activity by
	// hour of day.
	ActivityHours(ctx context.Context, userID string) ([24]int, error)
	// PeakDailyTaskCount returns the highest single-day task count for
	// the user since the given time.
	PeakDailyTaskCount(ctx context.Context, userID string, since time.Time) (int, error)
	// ActiveUserIDs samples up to limit users with recent activity, in
	// random order.
	ActiveUserIDs(ctx context.Context, limit int) ([]string, error)

	GetIPIntel(ctx context.Context, ip string) (*IPIntel, error) // ErrNotFound when absent
	PutIPIntel(ctx context.Context, intel *IPIntel) error

	UpsertScore(ctx context.Context, score *Score) error
	GetScore(ctx context.Context, userID string) (*Score, error) // ErrNotFound when absent

	InsertAlert(ctx context.Context, alert *Alert) error
	// ListAlerts returns alerts newest first, filtered by status when
	// status is non-empty.
	ListAlerts(ctx context.Context, status AlertStatus, limit int) ([]*Alert, error)
	UpdateAlertStatus(ctx context.Context, id string, status AlertStatus) (*Alert, error)
}

// ReviewSource provides a user's recent review texts for the content
// duplication check. The quality package's stores implement this.
type ReviewSource interface {
	ReviewTextsByUser(ctx context.Context, userID string, limit int) ([]string, error)
}

// Emitter receives score and alert events as they happen. The realtime
// hub implements this to push updates to connected dashboards.
type Emitter interface {
	ScoreUpdated(score *Score)
	AlertCreated(alert *Alert)
}
