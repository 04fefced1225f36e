//go:build integration

package fraud

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/reviewflow/reviewflow/internal/testutil"
)

func TestPostgres_SessionsAndRecentIPs(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.1", "10.0.0.3"} {
		err := store.RecordSession(ctx, &SessionRecord{
			UserID:    "u1",
			IP:        ip,
			UserAgent: "agent-a",
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("RecordSession failed: %v", err)
		}
	}

	ips, err := store.RecentIPs(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("RecentIPs failed: %v", err)
	}
	if len(ips) != 3 {
		t.Errorf("Expected 3 distinct IPs, got %d: %v", len(ips), ips)
	}

	// Another user on a shared IP
	_ = store.RecordSession(ctx, &SessionRecord{
		UserID: "u2", IP: "10.0.0.1", UserAgent: "agent-b", CreatedAt: now,
	})

	n, err := store.UsersSharingIP(ctx, "10.0.0.1", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("UsersSharingIP failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 users sharing the IP, got %d", n)
	}

	agents, err := store.UserAgentCount(ctx, "u1", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("UserAgentCount failed: %v", err)
	}
	if agents != 1 {
		t.Errorf("Expected 1 distinct user-agent, got %d", agents)
	}
}

func TestPostgres_TaskQueries(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	day := time.Now().UTC().Truncate(24 * time.Hour).Add(10 * time.Hour)

	for i := 0; i < 5; i++ {
		created := day.Add(time.Duration(i) * time.Minute)
		err := store.RecordTask(ctx, &TaskRecord{
			UserID:      "u1",
			CreatedAt:   created,
			CompletedAt: created.Add(90 * time.Second),
			Rating:      4,
		})
		if err != nil {
			t.Fatalf("RecordTask failed: %v", err)
		}
	}

	times, err := store.CompletionTimes(ctx, "u1", 100)
	if err != nil {
		t.Fatalf("CompletionTimes failed: %v", err)
	}
	if len(times) != 5 {
		t.Fatalf("Expected 5 completion times, got %d", len(times))
	}
	for _, d := range times {
		if d < 89 || d > 91 {
			t.Errorf("Expected ~90s completion time, got %f", d)
		}
	}

	peak, err := store.PeakDailyTaskCount(ctx, "u1", day.Add(-48*time.Hour))
	if err != nil {
		t.Fatalf("PeakDailyTaskCount failed: %v", err)
	}
	if peak != 5 {
		t.Errorf("Expected peak day count 5, got %d", peak)
	}

	hours, err := store.ActivityHours(ctx, "u1")
	if err != nil {
		t.Fatalf("ActivityHours failed: %v", err)
	}
	if hours[10] != 5 {
		t.Errorf("Expected 5 tasks in hour 10, got %d", hours[10])
	}

	users, err := store.ActiveUserIDs(ctx, 10)
	if err != nil {
		t.Fatalf("ActiveUserIDs failed: %v", err)
	}
	if len(users) != 1 || users[0] != "u1" {
		t.Errorf("Expected [u1], got %v", users)
	}
}

func TestPostgres_ScoreRoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	score := &Score{
		UserID:    "u1",
		Overall:   63.25,
		RiskLevel: RiskHigh,
		SubScores: SubScores{IP: 55, Device: 40, Behavior: 55, Content: 60, Velocity: 50},
		Flags:     []string{FlagDuplicateContent},
		ComputedAt: time.Now().UTC(),
	}
	if err := store.UpsertScore(ctx, score); err != nil {
		t.Fatalf("UpsertScore failed: %v", err)
	}

	got, err := store.GetScore(ctx, "u1")
	if err != nil {
		t.Fatalf("GetScore failed: %v", err)
	}
	if got.Overall != 63.25 || got.RiskLevel != RiskHigh {
		t.Errorf("Score round trip mismatch: %+v", got)
	}
	if len(got.Flags) != 1 || got.Flags[0] != FlagDuplicateContent {
		t.Errorf("Flags round trip mismatch: %v", got.Flags)
	}

	// Upsert replaces the prior row
	score.Overall = 12.0
	score.RiskLevel = RiskLow
	if err := store.UpsertScore(ctx, score); err != nil {
		t.Fatalf("Second UpsertScore failed: %v", err)
	}
	got, _ = store.GetScore(ctx, "u1")
	if got.Overall != 12.0 {
		t.Errorf("Expected upsert to overwrite, got %f", got.Overall)
	}

	if _, err := store.GetScore(ctx, "unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown user, got %v", err)
	}
}

func TestPostgres_AlertLifecycle(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	alert := &Alert{
		ID: "alert_pg1", UserID: "u1", Score: 80, RiskLevel: RiskCritical,
		Flags: []string{FlagHighIPRisk}, Status: AlertNew,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := store.InsertAlert(ctx, alert); err != nil {
		t.Fatalf("InsertAlert failed: %v", err)
	}

	alerts, err := store.ListAlerts(ctx, AlertNew, 10)
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	if len(alerts) != 1 || alerts[0].ID != "alert_pg1" {
		t.Fatalf("Expected the new alert, got %v", alerts)
	}

	updated, err := store.UpdateAlertStatus(ctx, "alert_pg1", AlertReviewed)
	if err != nil {
		t.Fatalf("UpdateAlertStatus failed: %v", err)
	}
	if updated.Status != AlertReviewed {
		t.Errorf("Expected reviewed status, got %s", updated.Status)
	}

	alerts, _ = store.ListAlerts(ctx, AlertNew, 10)
	if len(alerts) != 0 {
		t.Errorf("Reviewed alert should not appear under new, got %d", len(alerts))
	}

	if _, err := store.UpdateAlertStatus(ctx, "missing", AlertDismissed); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown alert, got %v", err)
	}
}

func TestPostgres_IPIntelCache(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	intel := &IPIntel{
		IP: "10.9.9.9", IsVPN: true, IsTor: true, RiskScore: 7.5,
		CheckedAt: time.Now().UTC(),
	}
	if err := store.PutIPIntel(ctx, intel); err != nil {
		t.Fatalf("PutIPIntel failed: %v", err)
	}

	got, err := store.GetIPIntel(ctx, "10.9.9.9")
	if err != nil {
		t.Fatalf("GetIPIntel failed: %v", err)
	}
	if !got.IsVPN || !got.IsTor || got.RiskScore != 7.5 {
		t.Errorf("Intel round trip mismatch: %+v", got)
	}
}
