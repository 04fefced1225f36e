package quality

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/reviewflow/reviewflow/internal/textsim"
	"github.com/reviewflow/reviewflow/internal/traces"
)

var (
	analysesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reviewflow",
		Subsystem: "quality",
		Name:      "analyses_total",
		Help:      "Total review quality analyses by flagged outcome.",
	}, []string{"flagged"})

	analysisScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "reviewflow",
		Subsystem: "quality",
		Name:      "score",
		Help:      "Distribution of computed quality scores.",
		Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	})
)

func init() {
	prometheus.MustRegister(analysesTotal, analysisScore)
}

// Component caps and thresholds for the additive quality score.
const (
	maxLengthPoints    = 20
	maxWordPoints      = 15
	maxSpamPoints      = 25
	maxPlagPoints      = 20
	maxStructurePoints = 20

	spamHighThreshold = 70
	spamWarnThreshold = 40
	plagHighThreshold = 50
	plagWarnThreshold = 25

	// Scores under this are flagged regardless of individual components.
	minAcceptableScore = 40

	// Plagiarism scan bounds: at most this many historical reviews,
	// ignoring those too short to match meaningfully.
	plagiarismScanLimit  = 100
	plagiarismMinLength  = 20
	plagiarismExactMatch = 100.0
)

// spamPhrases are matched case-insensitively as substrings, +20 per
// occurrence.
var spamPhrases = []string{
	"buy now",
	"click here",
	"free money",
	"limited offer",
	"act now",
	"100% free",
	"guaranteed",
	"no risk",
	"double your",
	"make money fast",
	"work from home",
	"winner winner",
	"congratulations you",
	"visit my profile",
	"check out my",
}

var (
	productPattern = regexp.MustCompile(`(?i)\b(product|item|quality|price|value|purchase|bought|order|deliver|shipping|recommend|works|using)`)
	repeatedPunct  = regexp.MustCompile(`[!?]{2,}`)

	positiveWords = []string{"good", "great", "excellent", "love", "amazing", "perfect", "best", "awesome", "happy"}
	negativeWords = []string{"bad", "poor", "terrible", "hate", "awful", "worst", "disappointing", "broken", "waste"}
)

// Analyzer computes quality scores for review submissions.
type Analyzer struct {
	store  Store
	logger *slog.Logger
}

// NewAnalyzer creates a quality analyzer backed by the given store.
func NewAnalyzer(store Store, logger *slog.Logger) *Analyzer {
	return &Analyzer{store: store, logger: logger}
}

// Analyze scores a submission and upserts the result. A persistence
// failure on the write is logged; the computed score is still returned
// so the caller sees the verdict.
func (a *Analyzer) Analyze(ctx context.Context, reviewID, text string) *Score {
	ctx, span := traces.StartSpan(ctx, "quality.analyze", traces.ReviewID(reviewID))
	defer span.End()

	score := a.compute(ctx, reviewID, text)

	if err := a.store.UpsertScore(ctx, score); err != nil {
		a.logger.Error("failed to persist quality score", "review_id", reviewID, "error", err)
	}

	analysesTotal.WithLabelValues(boolLabel(score.Flagged)).Inc()
	analysisScore.Observe(float64(score.Quality))
	return score
}

// Recompute re-runs the analysis for an already-stored review (admin
// re-review), overwriting the prior score.
func (a *Analyzer) Recompute(ctx context.Context, reviewID string) (*Score, error) {
	text, err := a.store.ReviewText(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	return a.Analyze(ctx, reviewID, text), nil
}

func (a *Analyzer) compute(ctx context.Context, reviewID, text string) *Score {
	score := &Score{
		ReviewID:   reviewID,
		ComputedAt: time.Now().UTC(),
	}
	trimmed := strings.TrimSpace(text)
	total := 0

	// 1. Length tier
	switch n := len([]rune(trimmed)); {
	case n < 20:
		score.Flags = append(score.Flags, FlagShortText)
	case n < 50:
		total += 10
	case n < 100:
		total += 15
	default:
		total += maxLengthPoints
	}

	// 2. Word count tier
	words := strings.Fields(trimmed)
	switch {
	case len(words) < 5:
		score.Flags = append(score.Flags, FlagTooFewWords)
	case len(words) < 10:
		total += 8
	default:
		total += maxWordPoints
	}

	// 3. Spam (inverse: high probability earns nothing)
	score.SpamProbability = SpamProbability(text)
	switch {
	case score.SpamProbability > spamHighThreshold:
		score.Flags = append(score.Flags, FlagSpamDetected)
		score.Flagged = true
	case score.SpamProbability > spamWarnThreshold:
		total += 10
	default:
		total += maxSpamPoints
	}

	// 4. Plagiarism (inverse)
	score.PlagiarismScore = a.Plagiarism(ctx, text, reviewID)
	switch {
	case score.PlagiarismScore > plagHighThreshold:
		score.Flags = append(score.Flags, FlagDuplicate)
		score.Flagged = true
	case score.PlagiarismScore > plagWarnThreshold:
		total += 10
	default:
		total += maxPlagPoints
	}

	// 5. Content structure
	total += structurePoints(trimmed, words)

	if total > 100 {
		total = 100
	}
	if total < 0 {
		total = 0
	}
	score.Quality = total

	if score.Quality < minAcceptableScore {
		score.Flagged = true
		score.Flags = append(score.Flags, FlagLowScore)
	}

	return score
}

// structurePoints awards up to 20 points for signs of a genuine review:
// product-relevant vocabulary, balanced sentiment, real sentences, and
// a reasonable share of substantial words.
func structurePoints(trimmed string, words []string) int {
	points := 0
	lower := strings.ToLower(trimmed)

	if productPattern.MatchString(trimmed) {
		points += 5
	}

	hasPositive := containsAny(lower, positiveWords)
	hasNegative := containsAny(lower, negativeWords)
	switch {
	case hasPositive && hasNegative:
		points += 5
	case hasPositive || hasNegative:
		points += 3
	}

	switch n := validSentences(trimmed); {
	case n >= 3:
		points += 5
	case n >= 1:
		points += 3
	}

	longWords := 0
	for _, w := range words {
		if len([]rune(w)) >= 5 {
			longWords++
		}
	}
	if longWords > 3 {
		points += 5
	}

	if points > maxStructurePoints {
		points = maxStructurePoints
	}
	return points
}

// validSentences counts terminator-delimited segments with more than 10
// characters of actual content.
func validSentences(text string) int {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	count := 0
	for _, p := range parts {
		if len([]rune(strings.TrimSpace(p))) > 10 {
			count++
		}
	}
	return count
}

// SpamProbability estimates how spammy a text is, in [0,100].
// Every occurrence of a known spam phrase adds 20, so one phrase
// hammered repeatedly accumulates; shouting (over 40% uppercase), heavy
// repeated punctuation, and a single word hammered more than 5 times
// add smaller penalties. The sum is clamped.
func SpamProbability(text string) float64 {
	prob := 0.0
	lower := strings.ToLower(text)

	for _, phrase := range spamPhrases {
		prob += float64(strings.Count(lower, phrase)) * 20
	}

	upper, nonSpace := 0, 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		nonSpace++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if nonSpace > 0 && float64(upper)/float64(nonSpace) > 0.4 {
		prob += 15
	}

	if len(repeatedPunct.FindAllString(text, -1)) >= 3 {
		prob += 10
	}

	// Word repetition is checked on the text as typed, case-sensitively.
	counts := make(map[string]int)
	for _, w := range strings.Fields(text) {
		counts[w]++
		if counts[w] > 5 {
			prob += 15
			break
		}
	}

	if prob > 100 {
		prob = 100
	}
	return prob
}

// Plagiarism returns the highest similarity (x100) between the text and
// recent historical reviews. Persistence failure degrades to 0 so a
// submission is never rejected because the history query was down.
func (a *Analyzer) Plagiarism(ctx context.Context, text, excludeID string) float64 {
	history, err := a.store.RecentReviewTexts(ctx, excludeID, plagiarismMinLength, plagiarismScanLimit)
	if err != nil {
		a.logger.Warn("plagiarism scan unavailable, defaulting to 0",
			"review_id", excludeID, "error", err)
		return 0.0
	}

	normalized := strings.ToLower(strings.TrimSpace(text))
	best := 0.0
	for _, prior := range history {
		sim := textsim.Similarity(normalized, strings.ToLower(strings.TrimSpace(prior.Text)))
		if sim > best {
			best = sim
		}
		if best*100 >= plagiarismExactMatch {
			break
		}
	}
	return best * 100.0
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
