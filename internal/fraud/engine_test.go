package fraud

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// staticReviews serves a fixed set of review texts for every user.
type staticReviews struct {
	texts []string
}

func (s *staticReviews) ReviewTextsByUser(context.Context, string, int) ([]string, error) {
	return s.texts, nil
}

func newTestEngine(texts ...string) (*Engine, *MemoryStore) {
	store := NewMemoryStore()
	engine := NewEngine(store, &staticReviews{texts: texts}, testLogger())
	return engine, store
}

// startOfToday returns midnight UTC for building same-day task batches.
func startOfToday() time.Time {
	return time.Now().UTC().Truncate(24 * time.Hour)
}

func addTasks(t *testing.T, store *MemoryStore, userID string, count int, day time.Time, duration time.Duration) {
	t.Helper()
	for i := 0; i < count; i++ {
		created := day.Add(time.Duration(i) * time.Minute)
		if err := store.RecordTask(context.Background(), &TaskRecord{
			UserID:      userID,
			CreatedAt:   created,
			CompletedAt: created.Add(duration),
		}); err != nil {
			t.Fatal(err)
		}
	}
}

func addSessions(t *testing.T, store *MemoryStore, userID, ip string, agents []string) {
	t.Helper()
	now := time.Now().UTC()
	for i, agent := range agents {
		if err := store.RecordSession(context.Background(), &SessionRecord{
			UserID:    userID,
			IP:        ip,
			UserAgent: agent,
			CreatedAt: now.Add(-time.Duration(i) * time.Hour),
		}); err != nil {
			t.Fatal(err)
		}
	}
}

func agentList(n int) []string {
	agents := make([]string, n)
	for i := range agents {
		agents[i] = "agent-" + string(rune('a'+i))
	}
	return agents
}

func TestCalculateScore_CleanUser(t *testing.T) {
	engine, store := newTestEngine()

	score := engine.CalculateScore(context.Background(), "u1")

	if score.Overall != 0 {
		t.Errorf("clean user overall = %f, want 0", score.Overall)
	}
	if score.RiskLevel != RiskLow {
		t.Errorf("clean user risk level = %s, want low", score.RiskLevel)
	}
	if len(score.Flags) != 0 {
		t.Errorf("clean user flags = %v, want none", score.Flags)
	}

	// Upsert persisted the assessment.
	stored, err := store.GetScore(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get score: %v", err)
	}
	if stored.Overall != score.Overall {
		t.Errorf("stored overall = %f, want %f", stored.Overall, score.Overall)
	}
}

func TestVelocityScore_PeakDay(t *testing.T) {
	day := startOfToday()
	cases := []struct {
		tasks int
		want  float64
	}{
		{51, 50},
		{31, 30},
		{30, 0},
	}
	for _, tc := range cases {
		engine, store := newTestEngine()
		addTasks(t, store, "u1", tc.tasks, day, time.Hour)

		score := engine.CalculateScore(context.Background(), "u1")
		if score.SubScores.Velocity != tc.want {
			t.Errorf("%d tasks in one day: velocity = %f, want %f",
				tc.tasks, score.SubScores.Velocity, tc.want)
		}
	}
}

func TestDeviceScore_Thresholds(t *testing.T) {
	cases := []struct {
		agents int
		want   float64
	}{
		{11, 40},
		{6, 20},
		{5, 0},
	}
	for _, tc := range cases {
		engine, store := newTestEngine()
		addSessions(t, store, "u1", "10.0.0.1", agentList(tc.agents))

		score := engine.CalculateScore(context.Background(), "u1")
		if score.SubScores.Device != tc.want {
			t.Errorf("%d user agents: device = %f, want %f",
				tc.agents, score.SubScores.Device, tc.want)
		}
	}
}

func TestBehaviorScore_AutomationSignature(t *testing.T) {
	engine, store := newTestEngine()

	// Identical fast completion times during the day: stddev 0, mean 60s.
	day := startOfToday().Add(14 * time.Hour)
	addTasks(t, store, "u1", 5, day, time.Minute)

	score := engine.CalculateScore(context.Background(), "u1")
	if score.SubScores.Behavior != 40 {
		t.Errorf("automation behavior = %f, want 40", score.SubScores.Behavior)
	}
}

func TestBehaviorScore_OffHoursPeak(t *testing.T) {
	engine, store := newTestEngine()

	// Activity peaks at 02:00 with human-like spread in completion times.
	night := startOfToday().Add(2 * time.Hour)
	addTasks(t, store, "u1", 3, night, 10*time.Minute)
	addTasks(t, store, "u1", 1, night.Add(30*time.Minute), 30*time.Minute)

	score := engine.CalculateScore(context.Background(), "u1")
	if score.SubScores.Behavior != 15 {
		t.Errorf("off-hours behavior = %f, want 15", score.SubScores.Behavior)
	}
}

func TestIPScore_Intelligence(t *testing.T) {
	engine, store := newTestEngine()
	ctx := context.Background()

	if err := store.PutIPIntel(ctx, &IPIntel{
		IP:        "185.220.101.1",
		IsTor:     true,
		IsVPN:     true,
		RiskScore: 5,
		CheckedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}
	addSessions(t, store, "u1", "185.220.101.1", []string{"agent-a"})

	// tor +30, vpn +20, record risk +5
	score := engine.CalculateScore(ctx, "u1")
	if score.SubScores.IP != 55 {
		t.Errorf("ip score = %f, want 55", score.SubScores.IP)
	}
}

func TestIPScore_SharedIP(t *testing.T) {
	engine, store := newTestEngine()
	ctx := context.Background()

	// 6 distinct users besides u1 on the same address.
	users := []string{"u1", "u2", "u3", "u4", "u5", "u6"}
	for _, u := range users {
		addSessions(t, store, u, "10.0.0.9", []string{"agent-a"})
	}

	score := engine.CalculateScore(ctx, "u1")
	if score.SubScores.IP != 20 {
		t.Errorf("shared ip score = %f, want 20", score.SubScores.IP)
	}

	// The default resolver cached an empty record for the address.
	if _, err := store.GetIPIntel(ctx, "10.0.0.9"); err != nil {
		t.Errorf("expected cached ip intelligence, got %v", err)
	}
}

func TestContentScore_DuplicatePairs(t *testing.T) {
	cases := []struct {
		copies int
		want   float64
	}{
		{4, 60}, // 6 identical pairs
		{3, 30}, // 3 identical pairs
		{2, 0},  // 1 identical pair
	}
	for _, tc := range cases {
		texts := make([]string, tc.copies)
		for i := range texts {
			texts[i] = "Great product, fast shipping, would buy again."
		}
		engine, _ := newTestEngine(texts...)

		score := engine.CalculateScore(context.Background(), "u1")
		if score.SubScores.Content != tc.want {
			t.Errorf("%d identical reviews: content = %f, want %f",
				tc.copies, score.SubScores.Content, tc.want)
		}
	}
}

func TestCalculateScore_WeightInvariant(t *testing.T) {
	texts := make([]string, 4)
	for i := range texts {
		texts[i] = "Identical review text repeated across submissions here."
	}
	engine, store := newTestEngine(texts...)
	ctx := context.Background()

	// Load up every factor at once.
	addSessions(t, store, "u1", "185.220.101.1", agentList(11))
	if err := store.PutIPIntel(ctx, &IPIntel{
		IP: "185.220.101.1", IsTor: true, CheckedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}
	addTasks(t, store, "u1", 51, startOfToday().Add(2*time.Hour), time.Minute)

	score := engine.CalculateScore(ctx, "u1")

	want := 0.25*score.SubScores.IP +
		0.20*score.SubScores.Device +
		0.25*score.SubScores.Behavior +
		0.15*score.SubScores.Content +
		0.15*score.SubScores.Velocity
	if math.Abs(score.Overall-want) > 0.01 {
		t.Errorf("overall = %f, want weighted combination %f", score.Overall, want)
	}
	if score.Overall < 0 || score.Overall > 100 {
		t.Errorf("overall out of range: %f", score.Overall)
	}
}

func TestLevelFor(t *testing.T) {
	cases := []struct {
		overall float64
		want    RiskLevel
	}{
		{80, RiskCritical},
		{75, RiskCritical},
		{74.9, RiskHigh},
		{50, RiskHigh},
		{49.9, RiskMedium},
		{25, RiskMedium},
		{24.9, RiskLow},
		{0, RiskLow},
	}
	for _, tc := range cases {
		if got := LevelFor(tc.overall); got != tc.want {
			t.Errorf("LevelFor(%f) = %s, want %s", tc.overall, got, tc.want)
		}
	}
}

// captureEmitter records emitted events for assertions.
type captureEmitter struct {
	mu     sync.Mutex
	scores []*Score
	alerts []*Alert
}

func (e *captureEmitter) ScoreUpdated(score *Score) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scores = append(e.scores, score)
}

func (e *captureEmitter) AlertCreated(alert *Alert) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alerts = append(e.alerts, alert)
}

func TestCalculateScore_RaisesAlertWhenHigh(t *testing.T) {
	texts := make([]string, 4)
	for i := range texts {
		texts[i] = "Identical review text repeated across submissions here."
	}
	store := NewMemoryStore()
	emitter := &captureEmitter{}
	engine := NewEngine(store, &staticReviews{texts: texts}, testLogger()).
		WithEmitter(emitter)
	ctx := context.Background()

	addSessions(t, store, "u1", "185.220.101.1", agentList(11))
	if err := store.PutIPIntel(ctx, &IPIntel{
		IP: "185.220.101.1", IsTor: true, IsVPN: true, IsProxy: true,
		IsDatacenter: true, RiskScore: 25, CheckedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}
	addTasks(t, store, "u1", 51, startOfToday().Add(2*time.Hour), time.Minute)

	score := engine.CalculateScore(ctx, "u1")
	if score.RiskLevel != RiskHigh && score.RiskLevel != RiskCritical {
		t.Fatalf("risk level = %s, want high or critical (overall %f)",
			score.RiskLevel, score.Overall)
	}

	alerts, err := store.ListAlerts(ctx, AlertNew, 10)
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].UserID != "u1" || alerts[0].Status != AlertNew {
		t.Errorf("unexpected alert: %+v", alerts[0])
	}

	if len(emitter.scores) != 1 || len(emitter.alerts) != 1 {
		t.Errorf("emitted %d scores and %d alerts, want 1 and 1",
			len(emitter.scores), len(emitter.alerts))
	}
}

func TestAlertLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	now := time.Now().UTC()
	alert := &Alert{
		ID: "alert_1", UserID: "u1", Score: 60, RiskLevel: RiskHigh,
		Status: AlertNew, CreatedAt: now, UpdatedAt: now,
	}
	if err := store.InsertAlert(ctx, alert); err != nil {
		t.Fatal(err)
	}

	updated, err := store.UpdateAlertStatus(ctx, "alert_1", AlertReviewed)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != AlertReviewed {
		t.Errorf("status = %s, want reviewed", updated.Status)
	}

	// Status filter excludes the reviewed alert.
	fresh, err := store.ListAlerts(ctx, AlertNew, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh) != 0 {
		t.Errorf("new alerts after review = %d, want 0", len(fresh))
	}

	if _, err := store.UpdateAlertStatus(ctx, "missing", AlertDismissed); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown alert update = %v, want ErrNotFound", err)
	}
}

// failingStore simulates an unavailable persistence layer.
type failingStore struct{}

var errStoreDown = errors.New("store down")

func (f *failingStore) RecordSession(context.Context, *SessionRecord) error { return errStoreDown }
func (f *failingStore) RecordTask(context.Context, *TaskRecord) error       { return errStoreDown }
func (f *failingStore) RecentIPs(context.Context, string, int) ([]string, error) {
	return nil, errStoreDown
}
func (f *failingStore) UsersSharingIP(context.Context, string, time.Time) (int, error) {
	return 0, errStoreDown
}
func (f *failingStore) UserAgentCount(context.Context, string, time.Time) (int, error) {
	return 0, errStoreDown
}
func (f *failingStore) CompletionTimes(context.Context, string, int) ([]float64, error) {
	return nil, errStoreDown
}
func (f *failingStore) ActivityHours(context.Context, string) ([24]int, error) {
	return [24]int{}, errStoreDown
}
func (f *failingStore) PeakDailyTaskCount(context.Context, string, time.Time) (int, error) {
	return 0, errStoreDown
}
func (f *failingStore) ActiveUserIDs(context.Context, int) ([]string, error) {
	return nil, errStoreDown
}
func (f *failingStore) GetIPIntel(context.Context, string) (*IPIntel, error) {
	return nil, errStoreDown
}
func (f *failingStore) PutIPIntel(context.Context, *IPIntel) error { return errStoreDown }
func (f *failingStore) UpsertScore(context.Context, *Score) error  { return errStoreDown }
func (f *failingStore) GetScore(context.Context, string) (*Score, error) {
	return nil, errStoreDown
}
func (f *failingStore) InsertAlert(context.Context, *Alert) error { return errStoreDown }
func (f *failingStore) ListAlerts(context.Context, AlertStatus, int) ([]*Alert, error) {
	return nil, errStoreDown
}
func (f *failingStore) UpdateAlertStatus(context.Context, string, AlertStatus) (*Alert, error) {
	return nil, errStoreDown
}

type failingReviews struct{}

func (f *failingReviews) ReviewTextsByUser(context.Context, string, int) ([]string, error) {
	return nil, errStoreDown
}

func TestCalculateScore_DegradesWhenStoreDown(t *testing.T) {
	engine := NewEngine(&failingStore{}, &failingReviews{}, testLogger())

	// Every sub-score falls back to 0 and the assessment still returns.
	score := engine.CalculateScore(context.Background(), "u1")
	if score == nil {
		t.Fatal("expected a score despite store failure")
	}
	if score.Overall != 0 {
		t.Errorf("degraded overall = %f, want 0", score.Overall)
	}
	if score.RiskLevel != RiskLow {
		t.Errorf("degraded risk level = %s, want low", score.RiskLevel)
	}
}

func TestRunner_RunOnce(t *testing.T) {
	store := NewMemoryStore()
	engine := NewEngine(store, &staticReviews{}, testLogger())
	runner := NewRunner(engine, store, time.Hour, 100, 4, testLogger())
	ctx := context.Background()

	for _, u := range []string{"u1", "u2", "u3"} {
		addSessions(t, store, u, "10.0.0.1", []string{"agent-a"})
	}

	processed, err := runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if processed != 3 {
		t.Errorf("processed = %d, want 3", processed)
	}

	for _, u := range []string{"u1", "u2", "u3"} {
		if _, err := store.GetScore(ctx, u); err != nil {
			t.Errorf("no score for %s after batch run: %v", u, err)
		}
	}
}

func TestRunner_LimitsSample(t *testing.T) {
	store := NewMemoryStore()
	engine := NewEngine(store, &staticReviews{}, testLogger())
	runner := NewRunner(engine, store, time.Hour, 2, 4, testLogger())

	for _, u := range []string{"u1", "u2", "u3", "u4"} {
		addSessions(t, store, u, "10.0.0.1", []string{"agent-a"})
	}

	processed, err := runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if processed != 2 {
		t.Errorf("processed = %d, want limit 2", processed)
	}
}
