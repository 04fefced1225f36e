package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reviewflow/reviewflow/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testConfig returns a minimal in-memory config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:               "0",
		Env:                "development",
		LogLevel:           "error",
		TOTPIssuer:         "ReviewFlow",
		TOTPWindow:         1,
		BackupCodes:        10,
		TwoFARateRPM:       10,
		FraudBatchInterval: time.Hour,
		FraudBatchLimit:    10,
		FraudBatchWorkers:  2,
		RateLimitRPM:       600,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

func doJSON(s *Server, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	s.router.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, "GET", "/health/live", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessBeforeRun(t *testing.T) {
	s := newTestServer(t)

	// Run() hasn't been called, so the server is not yet ready
	w := doJSON(s, "GET", "/health/ready", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 before Run, got %d", w.Code)
	}

	s.ready.Store(true)
	w = doJSON(s, "GET", "/health/ready", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 when ready, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, "GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestInfoEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, "GET", "/api", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ReviewFlow") {
		t.Error("Info response should name the service")
	}
}

// ---------------------------------------------------------------------------
// Quality routes
// ---------------------------------------------------------------------------

func TestSubmitReviewAndFetchScore(t *testing.T) {
	s := newTestServer(t)

	body := `{"reviewId":"rev_1","userId":"u1","text":"This product works really well. The quality exceeded my expectations and delivery was quick. I would definitely recommend it to anyone shopping for something reliable."}`
	w := doJSON(s, "POST", "/v1/reviews", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(s, "GET", "/v1/reviews/rev_1/quality", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var score map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &score); err != nil {
		t.Fatalf("Failed to parse score: %v", err)
	}
	if score["reviewId"] != "rev_1" {
		t.Errorf("Expected reviewId rev_1, got %v", score["reviewId"])
	}
}

func TestGetScoreUnknownReview(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, "GET", "/v1/reviews/nope/quality", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Fraud routes
// ---------------------------------------------------------------------------

func TestFraudIngestAndRecompute(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, "POST", "/v1/events/session", `{"userId":"u1","ip":"192.168.1.1","userAgent":"Mozilla/5.0"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", w.Code, w.Body.String())
	}

	// No score yet
	w = doJSON(s, "GET", "/v1/users/u1/fraud", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 before recompute, got %d", w.Code)
	}

	// Admin recompute (no admin secret configured in dev, so open)
	w = doJSON(s, "POST", "/v1/users/u1/fraud/recompute", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(s, "GET", "/v1/users/u1/fraud", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 after recompute, got %d", w.Code)
	}
}

func TestInvalidUserIDParamRejected(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, "GET", "/v1/users/bad!id/fraud", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed userId, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// 2FA routes
// ---------------------------------------------------------------------------

func TestTwoFAEnroll(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, "POST", "/v1/2fa/enroll", `{"userId":"u1","accountLabel":"u1@example.com"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp["secret"] == "" {
		t.Error("Expected a provisioned secret")
	}
}

// ---------------------------------------------------------------------------
// Admin gating
// ---------------------------------------------------------------------------

func TestAdminRequiresSecret(t *testing.T) {
	cfg := testConfig()
	cfg.AdminSecret = "s3cret"
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	// Without the header
	w := doJSON(s, "GET", "/v1/fraud/alerts", "")
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 without secret, got %d", w.Code)
	}

	// With a wrong header
	req := httptest.NewRequest("GET", "/v1/fraud/alerts", nil)
	req.Header.Set("X-Admin-Secret", "wrong")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 with wrong secret, got %d", rec.Code)
	}

	// With the right header
	req = httptest.NewRequest("GET", "/v1/fraud/alerts", nil)
	req.Header.Set("X-Admin-Secret", "s3cret")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 with correct secret, got %d", rec.Code)
	}
}

func TestWSStatsEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, "GET", "/ws/stats", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var stats map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("Failed to parse stats: %v", err)
	}
	if _, ok := stats["connectedClients"]; !ok {
		t.Error("Expected connectedClients in stats")
	}
}
