package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scolara-dev/admission-api/internal/middleware"
	"github.com/scolara-dev/admission-api/internal/models"
	"github.com/scolara-dev/admission-api/internal/service"
	appErrors "github.com/scolara-dev/admission-api/pkg/errors"
	"github.com/scolara-dev/admission-api/pkg/response"
)

// AnalyticsHandler exposes dashboard-ready admission analytics endpoints.
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
}

// NewAnalyticsHandler constructs the analytics handler.
func NewAnalyticsHandler(analytics *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// Funnel returns per-stage reach counts for a session's workflow.
func (h *AnalyticsHandler) Funnel(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "session_id is required"))
		return
	}
	scope, err := sessionScope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.analytics.AuthorizeSession(c.Request.Context(), sessionID, scope); err != nil {
		response.Error(c, err)
		return
	}
	start := time.Now()
	funnel, cacheHit, err := h.analytics.Funnel(c.Request.Context(), sessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respond(c, start, cacheHit, funnel)
}

// Conversion returns stage-to-stage conversion rates for a session.
func (h *AnalyticsHandler) Conversion(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "session_id is required"))
		return
	}
	scope, err := sessionScope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.analytics.AuthorizeSession(c.Request.Context(), sessionID, scope); err != nil {
		response.Error(c, err)
		return
	}
	start := time.Now()
	conversions, cacheHit, err := h.analytics.Conversion(c.Request.Context(), sessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respond(c, start, cacheHit, conversions)
}

// Workflows compares outcomes across workflow types for the caller's school.
func (h *AnalyticsHandler) Workflows(c *gin.Context) {
	schoolID, err := h.schoolScope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	start := time.Now()
	summaries, cacheHit, err := h.analytics.Workflows(c.Request.Context(), schoolID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respond(c, start, cacheHit, summaries)
}

// Fees summarises the external fee ledger for the caller's school.
func (h *AnalyticsHandler) Fees(c *gin.Context) {
	schoolID, err := h.schoolScope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	start := time.Now()
	analytics, cacheHit, err := h.analytics.Fees(c.Request.Context(), schoolID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respond(c, start, cacheHit, analytics)
}

// Bypasses summarises audited stage skips for the caller's school.
func (h *AnalyticsHandler) Bypasses(c *gin.Context) {
	schoolID, err := h.schoolScope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	start := time.Now()
	analytics, cacheHit, err := h.analytics.Bypasses(c.Request.Context(), schoolID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respond(c, start, cacheHit, analytics)
}

// Sources reports enrollment conversion per enquiry source, best first.
func (h *AnalyticsHandler) Sources(c *gin.Context) {
	schoolID, err := h.schoolScope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	start := time.Now()
	sources, cacheHit, err := h.analytics.Sources(c.Request.Context(), schoolID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respond(c, start, cacheHit, sources)
}

// Trends buckets enquiries by creation month for the caller's school.
func (h *AnalyticsHandler) Trends(c *gin.Context) {
	schoolID, err := h.schoolScope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	months := 0
	if raw := c.Query("months"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid months parameter"))
			return
		}
		months = parsed
	}
	start := time.Now()
	trends, cacheHit, err := h.analytics.Trends(c.Request.Context(), schoolID, months)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respond(c, start, cacheHit, trends)
}

// System returns instrumentation metrics snapshots.
func (h *AnalyticsHandler) System(c *gin.Context) {
	start := time.Now()
	metrics := h.analytics.SystemMetrics()
	h.respond(c, start, false, metrics)
}

func (h *AnalyticsHandler) respond(c *gin.Context, start time.Time, cacheHit bool, data interface{}) {
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = make(map[string]interface{})
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, data, nil, meta)
}

// schoolScope resolves the school the caller may query. Superadmins may
// override via the school_id query parameter.
func (h *AnalyticsHandler) schoolScope(c *gin.Context) (string, error) {
	claims := claimsFromContext(c)
	if claims == nil {
		return "", appErrors.ErrUnauthorized
	}
	if requested := c.Query("school_id"); requested != "" && requested != claims.SchoolID {
		if claims.Role != models.RoleSuperAdmin {
			return "", appErrors.Clone(appErrors.ErrForbidden, "cannot query analytics for another school")
		}
		return requested, nil
	}
	return claims.SchoolID, nil
}
