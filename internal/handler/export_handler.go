package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scolara-dev/admission-api/internal/service"
	appErrors "github.com/scolara-dev/admission-api/pkg/errors"
	"github.com/scolara-dev/admission-api/pkg/response"
)

// ExportHandler streams analytics snapshots as CSV or PDF downloads.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs the export handler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Funnel downloads the session funnel snapshot.
func (h *ExportHandler) Funnel(c *gin.Context) {
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
	format, err := service.ParseFormat(c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.exports.Funnel(c.Request.Context(), sessionID, scope, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.send(c, result)
}

// Sources downloads the per-source conversion snapshot.
func (h *ExportHandler) Sources(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	format, err := service.ParseFormat(c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.exports.Sources(c.Request.Context(), claims.SchoolID, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.send(c, result)
}

func (h *ExportHandler) send(c *gin.Context, result *service.ExportResult) {
	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Payload)
}
