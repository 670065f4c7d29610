package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/scolara-dev/admission-api/internal/models"
	"github.com/scolara-dev/admission-api/internal/service"
	appErrors "github.com/scolara-dev/admission-api/pkg/errors"
	"github.com/scolara-dev/admission-api/pkg/response"
)

// EnquiryHandler exposes the enquiry lifecycle endpoints.
type EnquiryHandler struct {
	enquiries *service.EnquiryService
}

// NewEnquiryHandler constructs the enquiry handler.
func NewEnquiryHandler(enquiries *service.EnquiryService) *EnquiryHandler {
	return &EnquiryHandler{enquiries: enquiries}
}

// Create registers a new enquiry at the initial stage of its session.
func (h *EnquiryHandler) Create(c *gin.Context) {
	var req service.CreateEnquiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	enquiry, err := h.enquiries.Create(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enquiry)
}

// Get returns an enquiry with its full transition history.
func (h *EnquiryHandler) Get(c *gin.Context) {
	detail, err := h.enquiries.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// List returns enquiries matching the query filters.
func (h *EnquiryHandler) List(c *gin.Context) {
	filter := models.EnquiryFilter{
		SessionID: c.Query("session_id"),
		StageKey:  strings.ToUpper(c.Query("stage")),
		Source:    models.EnquirySource(strings.ToUpper(c.Query("source"))),
		Outcome:   strings.ToUpper(c.Query("outcome")),
		Page:      parseIntQuery(c, "page", 1),
		PageSize:  parseIntQuery(c, "page_size", 20),
	}
	enquiries, pagination, err := h.enquiries.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enquiries, pagination)
}

// Advance moves an enquiry to the next stage of its workflow.
func (h *EnquiryHandler) Advance(c *gin.Context) {
	var req service.AdvanceEnquiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	enquiry, err := h.enquiries.Advance(c.Request.Context(), c.Param("id"), strings.ToUpper(req.ToStage), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enquiry, nil)
}

// Reject closes an enquiry as rejected.
func (h *EnquiryHandler) Reject(c *gin.Context) {
	var req service.RejectEnquiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	enquiry, err := h.enquiries.Reject(c.Request.Context(), c.Param("id"), claims.UserID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enquiry, nil)
}

// Bypass skips the enquiry ahead to a later stage. Requires a reason and an
// authorised role, enforced by route middleware.
func (h *EnquiryHandler) Bypass(c *gin.Context) {
	var req service.BypassEnquiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	enquiry, err := h.enquiries.BypassTo(c.Request.Context(), c.Param("id"), strings.ToUpper(req.ToStage), claims.UserID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enquiry, nil)
}
