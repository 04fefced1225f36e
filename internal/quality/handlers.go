package quality

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reviewflow/reviewflow/internal/idgen"
	"github.com/reviewflow/reviewflow/internal/metrics"
)

// EventEmitter receives notifications about flagged reviews.
type EventEmitter interface {
	ReviewFlagged(reviewID, userID string, quality int, flags []string)
}

// Handler provides HTTP endpoints for review quality scoring.
type Handler struct {
	analyzer *Analyzer
	store    Store
	events   EventEmitter
}

// NewHandler creates a new quality handler.
func NewHandler(analyzer *Analyzer, store Store) *Handler {
	return &Handler{analyzer: analyzer, store: store}
}

// WithEvents attaches a real-time event emitter for flagged reviews.
func (h *Handler) WithEvents(events EventEmitter) *Handler {
	h.events = events
	return h
}

// RegisterRoutes sets up public quality routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/reviews", h.SubmitReview)
	r.GET("/reviews/:reviewId/quality", h.GetScore)
}

// RegisterAdminRoutes sets up admin-only quality routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/reviews/:reviewId/reanalyze", h.Reanalyze)
}

// SubmitReviewRequest is the body for review submission.
type SubmitReviewRequest struct {
	ReviewID string `json:"reviewId"`
	UserID   string `json:"userId" binding:"required"`
	Text     string `json:"text" binding:"required"`
}

// SubmitReview handles POST /reviews: stores the body and scores it.
func (h *Handler) SubmitReview(c *gin.Context) {
	var req SubmitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "userId and text are required",
		})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "text must not be blank",
		})
		return
	}

	reviewID := req.ReviewID
	if reviewID == "" {
		reviewID = idgen.WithPrefix("rev_")
	}

	review := &ReviewText{
		ID:        reviewID,
		UserID:    req.UserID,
		Text:      req.Text,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.SaveReview(c.Request.Context(), review); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "storage_failed",
			"message": "Could not store the review",
		})
		return
	}

	score := h.analyzer.Analyze(c.Request.Context(), reviewID, req.Text)
	metrics.ReviewsSubmittedTotal.Inc()

	if score.Flagged && h.events != nil {
		h.events.ReviewFlagged(reviewID, req.UserID, score.Quality, score.Flags)
	}

	c.JSON(http.StatusCreated, gin.H{
		"reviewId": reviewID,
		"score":    score,
	})
}

// GetScore handles GET /reviews/:reviewId/quality.
func (h *Handler) GetScore(c *gin.Context) {
	reviewID := c.Param("reviewId")

	score, err := h.store.GetScore(c.Request.Context(), reviewID)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No quality score for this review",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "storage_failed",
			"message": "Could not load the quality score",
		})
		return
	}

	c.JSON(http.StatusOK, score)
}

// Reanalyze handles POST /reviews/:reviewId/reanalyze (admin re-review).
// The fresh score overwrites the stored one.
func (h *Handler) Reanalyze(c *gin.Context) {
	reviewID := c.Param("reviewId")

	score, err := h.analyzer.Recompute(c.Request.Context(), reviewID)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Unknown review",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "reanalysis_failed",
			"message": "Could not recompute the quality score",
		})
		return
	}

	c.JSON(http.StatusOK, score)
}
