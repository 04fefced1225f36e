package twofa

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reviewflow/reviewflow/internal/ratelimit"
)

// Handler provides HTTP endpoints for the 2FA lifecycle.
type Handler struct {
	manager *Manager
	limiter *ratelimit.Limiter
}

// NewHandler creates a new 2FA handler. limiter throttles code checks
// per user; pass the limiter built from ratelimit.VerifyConfig.
func NewHandler(manager *Manager, limiter *ratelimit.Limiter) *Handler {
	return &Handler{manager: manager, limiter: limiter}
}

// RegisterRoutes sets up the 2FA routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	grp := r.Group("/2fa")
	grp.POST("/enroll", h.Enroll)
	grp.POST("/confirm", h.Confirm)
	grp.POST("/verify", h.verifyLimit(), h.VerifyCode)
	grp.POST("/disable", h.Disable)
	grp.GET("/status/:userId", h.Status)
}

// verifyLimit throttles code guesses per user id, not per IP, so an
// attacker cannot dodge the limit by rotating addresses.
func (h *Handler) verifyLimit() gin.HandlerFunc {
	return h.limiter.KeyedMiddleware(func(c *gin.Context) string {
		var req codeRequest
		if err := c.ShouldBindBodyWithJSON(&req); err != nil {
			return ""
		}
		return "2fa:" + req.UserID
	})
}

type codeRequest struct {
	UserID string `json:"userId" binding:"required"`
	Code   string `json:"code" binding:"required"`
}

// EnrollRequest is the body for starting 2FA enrollment.
type EnrollRequest struct {
	UserID       string `json:"userId" binding:"required"`
	AccountLabel string `json:"accountLabel"`
}

// Enroll handles POST /2fa/enroll. The response carries the secret,
// the otpauth URL, and the plaintext backup codes exactly once.
func (h *Handler) Enroll(c *gin.Context) {
	var req EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "userId is required",
		})
		return
	}

	label := req.AccountLabel
	if label == "" {
		label = req.UserID
	}

	enrollment, err := h.manager.Enroll(c.Request.Context(), req.UserID, label)
	if errors.Is(err, ErrAlreadyEnabled) {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "already_enabled",
			"message": "2FA is already active. Disable it before re-enrolling.",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "enrollment_failed",
			"message": "Could not start 2FA enrollment",
		})
		return
	}

	c.JSON(http.StatusCreated, enrollment)
}

// Confirm handles POST /2fa/confirm: the first valid code activates
// the pending enrollment.
func (h *Handler) Confirm(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "userId and code are required",
		})
		return
	}

	err := h.manager.Confirm(c.Request.Context(), req.UserID, req.Code)
	switch {
	case errors.Is(err, ErrNotEnrolled):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_enrolled",
			"message": "No pending enrollment for this user",
		})
	case errors.Is(err, ErrAlreadyEnabled):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "already_enabled",
			"message": "2FA is already active",
		})
	case errors.Is(err, ErrInvalidCode):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "invalid_code",
			"message": "The code did not match",
		})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "confirmation_failed",
			"message": "Could not confirm 2FA enrollment",
		})
	default:
		c.JSON(http.StatusOK, gin.H{"enabled": true})
	}
}

// VerifyCode handles POST /2fa/verify. Rejections are uniform: the
// response never says whether the user is enrolled, the code was
// stale, or a backup code was already burned.
func (h *Handler) VerifyCode(c *gin.Context) {
	// BindBody variant because the rate-limit middleware already read
	// the body to extract the user id.
	var req codeRequest
	if err := c.ShouldBindBodyWithJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "userId and code are required",
		})
		return
	}

	if h.manager.Verify(c.Request.Context(), req.UserID, req.Code) {
		c.JSON(http.StatusOK, gin.H{"valid": true})
		return
	}
	c.JSON(http.StatusUnauthorized, gin.H{"valid": false})
}

// DisableRequest is the body for turning 2FA off.
type DisableRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// Disable handles POST /2fa/disable.
func (h *Handler) Disable(c *gin.Context) {
	var req DisableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "userId is required",
		})
		return
	}

	err := h.manager.Disable(c.Request.Context(), req.UserID)
	if errors.Is(err, ErrNotEnrolled) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_enrolled",
			"message": "2FA is not set up for this user",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "disable_failed",
			"message": "Could not disable 2FA",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"enabled": false})
}

// Status handles GET /2fa/status/:userId.
func (h *Handler) Status(c *gin.Context) {
	userID := c.Param("userId")

	enrolled, confirmed, err := h.manager.Status(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "status_failed",
			"message": "Could not load 2FA status",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":    userID,
		"enrolled":  enrolled,
		"confirmed": confirmed,
	})
}
