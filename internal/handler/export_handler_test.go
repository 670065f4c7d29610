package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/scolara-dev/admission-api/internal/middleware"
	"github.com/scolara-dev/admission-api/internal/models"
)

func TestExportHandlerFunnelRequiresSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewExportHandler(nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/analytics/export/funnel", nil)

	handler.Funnel(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportHandlerFunnelRejectsUnknownFormat(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewExportHandler(nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/analytics/export/funnel?session_id=sess-1&format=xlsx", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{
		UserID:   "user-1",
		SchoolID: "school-1",
		Role:     models.RoleAdmin,
	})

	handler.Funnel(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportHandlerFunnelRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewExportHandler(nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/analytics/export/funnel?session_id=sess-1", nil)

	handler.Funnel(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExportHandlerSourcesRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewExportHandler(nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/analytics/export/sources", nil)

	handler.Sources(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
