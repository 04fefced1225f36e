package fraud

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reviewflow/reviewflow/internal/metrics"
)

const defaultAlertPageSize = 50

// Handler provides HTTP endpoints for fraud scoring and alert review.
type Handler struct {
	engine *Engine
	store  Store
	runner *Runner
}

// NewHandler creates a new fraud handler. runner may be nil when batch
// runs are disabled; the trigger endpoint then returns 503.
func NewHandler(engine *Engine, store Store, runner *Runner) *Handler {
	return &Handler{engine: engine, store: store, runner: runner}
}

// RegisterRoutes sets up public fraud routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/events/session", h.IngestSession)
	r.POST("/events/task", h.IngestTask)
	r.GET("/users/:userId/fraud", h.GetScore)
}

// RegisterAdminRoutes sets up admin-only fraud routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/users/:userId/fraud/recompute", h.Recompute)
	r.GET("/fraud/alerts", h.ListAlerts)
	r.POST("/fraud/alerts/:alertId/review", h.ReviewAlert)
	r.POST("/fraud/alerts/:alertId/dismiss", h.DismissAlert)
	r.POST("/fraud/batch", h.TriggerBatch)
}

// SessionEventRequest is the body for session event ingestion.
type SessionEventRequest struct {
	UserID    string `json:"userId" binding:"required"`
	IP        string `json:"ip" binding:"required"`
	UserAgent string `json:"userAgent"`
}

// IngestSession handles POST /events/session.
func (h *Handler) IngestSession(c *gin.Context) {
	var req SessionEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "userId and ip are required",
		})
		return
	}

	session := &SessionRecord{
		UserID:    req.UserID,
		IP:        req.IP,
		UserAgent: req.UserAgent,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.RecordSession(c.Request.Context(), session); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "storage_failed",
			"message": "Could not record the session",
		})
		return
	}

	metrics.SessionEventsTotal.Inc()
	c.JSON(http.StatusAccepted, gin.H{"recorded": true})
}

// TaskEventRequest is the body for task completion ingestion.
type TaskEventRequest struct {
	UserID      string    `json:"userId" binding:"required"`
	CreatedAt   time.Time `json:"createdAt" binding:"required"`
	CompletedAt time.Time `json:"completedAt" binding:"required"`
	Rating      int       `json:"rating"`
}

// IngestTask handles POST /events/task.
func (h *Handler) IngestTask(c *gin.Context) {
	var req TaskEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "userId, createdAt, and completedAt are required",
		})
		return
	}
	if req.CompletedAt.Before(req.CreatedAt) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "completedAt must not precede createdAt",
		})
		return
	}

	task := &TaskRecord{
		UserID:      req.UserID,
		CreatedAt:   req.CreatedAt,
		CompletedAt: req.CompletedAt,
		Rating:      req.Rating,
	}
	if err := h.store.RecordTask(c.Request.Context(), task); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "storage_failed",
			"message": "Could not record the task",
		})
		return
	}

	metrics.TaskEventsTotal.Inc()
	c.JSON(http.StatusAccepted, gin.H{"recorded": true})
}

// GetScore handles GET /users/:userId/fraud.
func (h *Handler) GetScore(c *gin.Context) {
	userID := c.Param("userId")

	score, err := h.store.GetScore(c.Request.Context(), userID)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No fraud score for this user yet",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "storage_failed",
			"message": "Could not load the fraud score",
		})
		return
	}

	c.JSON(http.StatusOK, score)
}

// Recompute handles POST /users/:userId/fraud/recompute.
func (h *Handler) Recompute(c *gin.Context) {
	userID := c.Param("userId")
	score := h.engine.CalculateScore(c.Request.Context(), userID)
	c.JSON(http.StatusOK, score)
}

// ListAlerts handles GET /fraud/alerts?status=new&limit=50.
func (h *Handler) ListAlerts(c *gin.Context) {
	status := AlertStatus(c.Query("status"))
	switch status {
	case "", AlertNew, AlertReviewed, AlertDismissed:
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "status must be new, reviewed, or dismissed",
		})
		return
	}

	limit := defaultAlertPageSize
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	alerts, err := h.store.ListAlerts(c.Request.Context(), status, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "storage_failed",
			"message": "Could not list fraud alerts",
		})
		return
	}
	if alerts == nil {
		alerts = []*Alert{}
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// ReviewAlert handles POST /fraud/alerts/:alertId/review.
func (h *Handler) ReviewAlert(c *gin.Context) {
	h.setAlertStatus(c, AlertReviewed)
}

// DismissAlert handles POST /fraud/alerts/:alertId/dismiss.
func (h *Handler) DismissAlert(c *gin.Context) {
	h.setAlertStatus(c, AlertDismissed)
}

func (h *Handler) setAlertStatus(c *gin.Context, status AlertStatus) {
	alertID := c.Param("alertId")

	alert, err := h.store.UpdateAlertStatus(c.Request.Context(), alertID, status)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Unknown alert",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "storage_failed",
			"message": "Could not update the alert",
		})
		return
	}

	c.JSON(http.StatusOK, alert)
}

// TriggerBatch handles POST /fraud/batch: runs one batch pass
// synchronously and reports the number of users processed.
func (h *Handler) TriggerBatch(c *gin.Context) {
	if h.runner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "batch_disabled",
			"message": "Batch fraud detection is not enabled",
		})
		return
	}

	processed, err := h.runner.RunOnce(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "batch_failed",
			"message": "Could not run batch fraud detection",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"processed": processed})
}
