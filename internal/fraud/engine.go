package fraud

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/reviewflow/reviewflow/internal/idgen"
	"github.com/reviewflow/reviewflow/internal/textsim"
	"github.com/reviewflow/reviewflow/internal/traces"
)

var (
	scoresComputedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reviewflow",
		Subsystem: "fraud",
		Name:      "scores_computed_total",
		Help:      "Total fraud scores computed by risk level.",
	}, []string{"risk_level"})

	alertsCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reviewflow",
		Subsystem: "fraud",
		Name:      "alerts_created_total",
		Help:      "Total fraud alerts created by risk level.",
	}, []string{"risk_level"})

	overallScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "reviewflow",
		Subsystem: "fraud",
		Name:      "overall_score",
		Help:      "Distribution of computed overall fraud scores.",
		Buckets:   prometheus.LinearBuckets(0, 10, 11),
	})
)

func init() {
	prometheus.MustRegister(scoresComputedTotal, alertsCreatedTotal, overallScore)
}

// Sub-score weights. Fixed, sum to 1.0.
const (
	weightIP       = 0.25
	weightDevice   = 0.20
	weightBehavior = 0.25
	weightContent  = 0.15
	weightVelocity = 0.15
)

const (
	ipLookback            = 10
	sharedIPUserThreshold = 5
	sharedIPWindow        = 30 * 24 * time.Hour
	deviceWindow          = 30 * 24 * time.Hour
	completionSampleLimit = 100
	contentReviewLimit    = 20
	contentSimThreshold   = 80.0
	velocityWindow        = 7 * 24 * time.Hour

	// A sub-score above this adds its flag to the assessment.
	flagThreshold = 70.0
)

// Flags attached when a sub-score exceeds flagThreshold.
const (
	FlagHighIPRisk         = "high_ip_risk"
	FlagMultipleDevices    = "multiple_devices"
	FlagSuspiciousBehavior = "suspicious_behavior"
	FlagDuplicateContent   = "duplicate_content"
	FlagAbnormalVelocity   = "abnormal_velocity"
)

// IntelFunc resolves intelligence for an IP with no cached record.
// The result is cached through the store for subsequent lookups.
type IntelFunc func(ctx context.Context, ip string) (*IPIntel, error)

// Engine computes fraud scores from historical persisted data.
type Engine struct {
	store   Store
	reviews ReviewSource
	intel   IntelFunc
	emitter Emitter
	logger  *slog.Logger
}

// NewEngine creates a fraud scoring engine. reviews supplies the
// user's recent review texts for the duplication check.
func NewEngine(store Store, reviews ReviewSource, logger *slog.Logger) *Engine {
	return &Engine{
		store:   store,
		reviews: reviews,
		intel:   defaultIntel,
		logger:  logger,
	}
}

// WithIntelLookup overrides the resolver used on IP-intelligence cache
// misses.
func (e *Engine) WithIntelLookup(fn IntelFunc) *Engine {
	e.intel = fn
	return e
}

// WithEmitter attaches an event sink for score and alert updates.
func (e *Engine) WithEmitter(emitter Emitter) *Engine {
	e.emitter = emitter
	return e
}

// defaultIntel returns an empty record: an unknown IP contributes
// nothing to the score until a real provider is configured.
func defaultIntel(ctx context.Context, ip string) (*IPIntel, error) {
	return &IPIntel{IP: ip, CheckedAt: time.Now().UTC()}, nil
}

// CalculateScore computes, persists, and returns the user's current
// fraud score. Sub-scores degrade to 0 on store failure rather than
// aborting the whole assessment, so a partial score is always written.
// An alert is raised when the risk level is high or critical.
func (e *Engine) CalculateScore(ctx context.Context, userID string) *Score {
	ctx, span := traces.StartSpan(ctx, "fraud.calculate_score", traces.UserID(userID))
	defer span.End()

	subs := SubScores{
		IP:       e.ipScore(ctx, userID),
		Device:   e.deviceScore(ctx, userID),
		Behavior: e.behaviorScore(ctx, userID),
		Content:  e.contentScore(ctx, userID),
		Velocity: e.velocityScore(ctx, userID),
	}

	overall := weightIP*subs.IP +
		weightDevice*subs.Device +
		weightBehavior*subs.Behavior +
		weightContent*subs.Content +
		weightVelocity*subs.Velocity
	overall = clamp100(overall)

	flags := []string{}
	for _, f := range []struct {
		value float64
		flag  string
	}{
		{subs.IP, FlagHighIPRisk},
		{subs.Device, FlagMultipleDevices},
		{subs.Behavior, FlagSuspiciousBehavior},
		{subs.Content, FlagDuplicateContent},
		{subs.Velocity, FlagAbnormalVelocity},
	} {
		if f.value > flagThreshold {
			flags = append(flags, f.flag)
		}
	}

	score := &Score{
		UserID:     userID,
		Overall:    math.Round(overall*100) / 100,
		RiskLevel:  LevelFor(overall),
		SubScores:  subs,
		Flags:      flags,
		ComputedAt: time.Now().UTC(),
	}

	span.SetAttributes(traces.Score(score.Overall), traces.RiskLevel(string(score.RiskLevel)))

	if err := e.store.UpsertScore(ctx, score); err != nil {
		e.logger.Error("failed to persist fraud score", "user_id", userID, "error", err)
	}

	scoresComputedTotal.WithLabelValues(string(score.RiskLevel)).Inc()
	overallScore.Observe(score.Overall)
	if e.emitter != nil {
		e.emitter.ScoreUpdated(score)
	}

	if score.RiskLevel == RiskHigh || score.RiskLevel == RiskCritical {
		e.raiseAlert(ctx, score)
	}

	e.logger.Info("fraud score computed",
		"user_id", userID,
		"overall", score.Overall,
		"risk_level", score.RiskLevel,
		"flags", flags)
	return score
}

func (e *Engine) raiseAlert(ctx context.Context, score *Score) {
	now := time.Now().UTC()
	alert := &Alert{
		ID:        idgen.WithPrefix("alert_"),
		UserID:    score.UserID,
		Score:     score.Overall,
		RiskLevel: score.RiskLevel,
		Flags:     score.Flags,
		Status:    AlertNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.InsertAlert(ctx, alert); err != nil {
		e.logger.Error("failed to insert fraud alert", "user_id", score.UserID, "error", err)
		return
	}

	alertsCreatedTotal.WithLabelValues(string(alert.RiskLevel)).Inc()
	if e.emitter != nil {
		e.emitter.AlertCreated(alert)
	}
}

// ipScore: intelligence flags and risk accumulated across the user's
// last distinct session IPs, plus a penalty when any of those IPs is
// shared by many other users.
func (e *Engine) ipScore(ctx context.Context, userID string) float64 {
	ips, err := e.store.RecentIPs(ctx, userID, ipLookback)
	if err != nil {
		e.logger.Warn("ip sub-score degraded", "user_id", userID, "error", err)
		return 0
	}

	var score float64
	shared := false
	since := time.Now().Add(-sharedIPWindow)
	for _, ip := range ips {
		if intel := e.lookupIntel(ctx, ip); intel != nil {
			if intel.IsVPN {
				score += 20
			}
			if intel.IsProxy {
				score += 15
			}
			if intel.IsTor {
				score += 30
			}
			if intel.IsDatacenter {
				score += 10
			}
			score += intel.RiskScore
		}
		if !shared {
			n, err := e.store.UsersSharingIP(ctx, ip, since)
			if err == nil && n > sharedIPUserThreshold {
				shared = true
			}
		}
	}
	if shared {
		score += 20
	}
	return clamp100(score)
}

// lookupIntel returns the cached record for ip, resolving and caching
// it on a miss. Returns nil when neither path produces a record.
func (e *Engine) lookupIntel(ctx context.Context, ip string) *IPIntel {
	intel, err := e.store.GetIPIntel(ctx, ip)
	if err == nil {
		return intel
	}

	intel, err = e.intel(ctx, ip)
	if err != nil || intel == nil {
		return nil
	}
	if err := e.store.PutIPIntel(ctx, intel); err != nil {
		e.logger.Warn("failed to cache ip intelligence", "ip", ip, "error", err)
	}
	return intel
}

// deviceScore: distinct user-agents over the last 30 days.
func (e *Engine) deviceScore(ctx context.Context, userID string) float64 {
	n, err := e.store.UserAgentCount(ctx, userID, time.Now().Add(-deviceWindow))
	if err != nil {
		e.logger.Warn("device sub-score degraded", "user_id", userID, "error", err)
		return 0
	}
	switch {
	case n > 10:
		return 40
	case n > 5:
		return 20
	default:
		return 0
	}
}

// behaviorScore: uniform fast completion times are the signature of
// automation; an off-hours peak activity hour adds a smaller penalty.
func (e *Engine) behaviorScore(ctx context.Context, userID string) float64 {
	var score float64

	times, err := e.store.CompletionTimes(ctx, userID, completionSampleLimit)
	if err != nil {
		e.logger.Warn("behavior sub-score degraded", "user_id", userID, "error", err)
		return 0
	}
	if len(times) >= 2 {
		mean, stddev := meanStddev(times)
		if stddev < 10 && mean < 300 {
			score += 40
		}
	}

	hours, err := e.store.ActivityHours(ctx, userID)
	if err != nil {
		e.logger.Warn("activity hours lookup degraded", "user_id", userID, "error", err)
		return clamp100(score)
	}
	if peak, total := peakHour(hours); total > 0 && (peak < 4 || peak > 23) {
		score += 15
	}

	return clamp100(score)
}

// contentScore: pairwise similarity across the user's recent reviews,
// scored by how many near-duplicate pairs exist.
func (e *Engine) contentScore(ctx context.Context, userID string) float64 {
	texts, err := e.reviews.ReviewTextsByUser(ctx, userID, contentReviewLimit)
	if err != nil {
		e.logger.Warn("content sub-score degraded", "user_id", userID, "error", err)
		return 0
	}

	duplicatePairs := 0
	for i := 0; i < len(texts); i++ {
		for j := i + 1; j < len(texts); j++ {
			if textsim.MatchRatio(texts[i], texts[j]) > contentSimThreshold {
				duplicatePairs++
			}
		}
	}
	switch {
	case duplicatePairs > 5:
		return 60
	case duplicatePairs > 2:
		return 30
	default:
		return 0
	}
}

// velocityScore: peak single-day task count over the last 7 days.
func (e *Engine) velocityScore(ctx context.Context, userID string) float64 {
	peak, err := e.store.PeakDailyTaskCount(ctx, userID, time.Now().Add(-velocityWindow))
	if err != nil {
		e.logger.Warn("velocity sub-score degraded", "user_id", userID, "error", err)
		return 0
	}
	switch {
	case peak > 50:
		return 50
	case peak > 30:
		return 30
	default:
		return 0
	}
}

func meanStddev(values []float64) (mean, stddev float64) {
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

// peakHour returns the hour with the most activity and the total count.
func peakHour(hours [24]int) (peak, total int) {
	best := -1
	for h, n := range hours {
		total += n
		if n > best {
			best = n
			peak = h
		}
	}
	return peak, total
}

func clamp100(v float64) float64 {
	if v > 100 {
		return 100
	}
	if v < 0 {
		return 0
	}
	return v
}
