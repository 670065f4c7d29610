package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/scolara-dev/admission-api/internal/models"
	appErrors "github.com/scolara-dev/admission-api/pkg/errors"
)

type sessionStore interface {
	Create(ctx context.Context, session *models.AdmissionSession) error
	FindByID(ctx context.Context, id string) (*models.AdmissionSession, error)
	List(ctx context.Context, filter models.SessionFilter) ([]models.AdmissionSession, int, error)
	Close(ctx context.Context, id string, endDate time.Time) error
}

// CreateSessionRequest describes admission session creation. The workflow
// type is immutable for the life of the session.
type CreateSessionRequest struct {
	SchoolID     string     `json:"school_id" validate:"required"`
	WorkflowType string     `json:"workflow_type" validate:"required"`
	Name         string     `json:"name" validate:"required"`
	StartDate    time.Time  `json:"start_date" validate:"required"`
	EndDate      *time.Time `json:"end_date"`
}

// SessionService manages admission session lifecycle.
type SessionService struct {
	repo      sessionStore
	registry  stageResolver
	audit     auditSink
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSessionService constructs SessionService.
func NewSessionService(repo sessionStore, registry stageResolver, audit auditSink, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{repo: repo, registry: registry, audit: audit, validator: validate, logger: logger}
}

// Create opens an admission session. The school's stage configuration for
// the chosen workflow type is resolved up front so malformed overrides
// surface here rather than on the first enquiry.
func (s *SessionService) Create(ctx context.Context, req CreateSessionRequest, actorID string) (*models.AdmissionSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	workflowType := models.WorkflowType(strings.ToUpper(req.WorkflowType))
	if !workflowType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown workflow type: %s", req.WorkflowType))
	}
	if req.EndDate != nil && !req.EndDate.After(req.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_date must be after start_date")
	}

	if _, err := s.registry.GetStages(ctx, req.SchoolID, workflowType); err != nil {
		return nil, err
	}

	session := &models.AdmissionSession{
		SchoolID:     req.SchoolID,
		WorkflowType: workflowType,
		Name:         req.Name,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}

	s.emitAudit(ctx, actorID, models.AuditActionSessionCreate, session)
	return session, nil
}

// Get returns one session.
func (s *SessionService) Get(ctx context.Context, id string) (*models.AdmissionSession, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// List returns sessions with pagination metadata.
func (s *SessionService) List(ctx context.Context, filter models.SessionFilter) ([]models.AdmissionSession, *models.Pagination, error) {
	sessions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return sessions, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Close deactivates a session. No new enquiries may be created afterwards;
// historical aggregation stays valid indefinitely.
func (s *SessionService) Close(ctx context.Context, id, actorID string) (*models.AdmissionSession, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.IsActive {
		return nil, appErrors.Clone(appErrors.ErrConflict, "session already closed")
	}

	now := time.Now().UTC()
	if err := s.repo.Close(ctx, id, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close session")
	}
	session.IsActive = false
	session.EndDate = &now

	s.emitAudit(ctx, actorID, models.AuditActionSessionClose, session)
	return session, nil
}

func (s *SessionService) emitAudit(ctx context.Context, actorID, action string, session *models.AdmissionSession) {
	if s.audit == nil {
		return
	}
	body, _ := json.Marshal(map[string]interface{}{
		"school_id":     session.SchoolID,
		"workflow_type": session.WorkflowType,
		"name":          session.Name,
		"is_active":     session.IsActive,
	})
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "admission_session",
		ResourceID: &session.ID,
		NewValues:  body,
		IPAddress:  "system",
		UserAgent:  "session-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
