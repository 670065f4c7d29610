package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/scolara-dev/admission-api/internal/models"
	"github.com/scolara-dev/admission-api/internal/repository"
	appErrors "github.com/scolara-dev/admission-api/pkg/errors"
)

type enquiryStore interface {
	Create(ctx context.Context, enquiry *models.Enquiry, actorID string) (*models.StageTransition, error)
	AppendTransition(ctx context.Context, params repository.AppendTransitionParams) (*models.StageTransition, error)
	FindByID(ctx context.Context, id string) (*models.Enquiry, error)
	ListTransitions(ctx context.Context, enquiryID string) ([]models.StageTransition, error)
	List(ctx context.Context, filter models.EnquiryFilter) ([]models.Enquiry, int, error)
}

type sessionReader interface {
	FindByID(ctx context.Context, id string) (*models.AdmissionSession, error)
}

type stageResolver interface {
	GetStages(ctx context.Context, schoolID string, workflowType models.WorkflowType) (models.StageList, error)
}

// stageAuthority additionally rules on transition legality, so the registry
// stays the single source of truth for what a legal advance is.
type stageAuthority interface {
	stageResolver
	IsLegalTransition(ctx context.Context, schoolID string, workflowType models.WorkflowType, fromKey, toKey string) (bool, error)
}

type auditSink interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type feeRecordReader interface {
	ListByEnquiry(ctx context.Context, enquiryID string) ([]models.FeeRecord, error)
}

// transitionListener is notified after a transition commits so read models
// can be refreshed out of band.
type transitionListener interface {
	TransitionCommitted(sessionID, schoolID string)
}

// CreateEnquiryRequest describes enquiry creation.
type CreateEnquiryRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	Source    string `json:"source" validate:"required"`
}

// AdvanceEnquiryRequest moves an enquiry one step forward.
type AdvanceEnquiryRequest struct {
	ToStage string `json:"to_stage" validate:"required"`
}

// RejectEnquiryRequest closes an enquiry as rejected.
type RejectEnquiryRequest struct {
	Reason string `json:"reason"`
}

// BypassEnquiryRequest skips ahead to a later stage with a mandatory reason.
type BypassEnquiryRequest struct {
	ToStage string `json:"to_stage" validate:"required"`
	Reason  string `json:"reason"`
}

// EnquiryService owns the enquiry lifecycle: current stage, history,
// terminal outcome. Transitions for the same enquiry are serialized through
// a sharded lock table; the repository additionally guards every write with
// an optimistic current-stage check.
type EnquiryService struct {
	repo      enquiryStore
	sessions  sessionReader
	registry  stageAuthority
	fees      feeRecordReader
	audit     auditSink
	listener  transitionListener
	validator *validator.Validate
	logger    *zap.Logger

	locks []sync.Mutex
}

// NewEnquiryService constructs EnquiryService. lockShards is rounded up to
// at least 1; fees, audit and listener may be nil.
func NewEnquiryService(repo enquiryStore, sessions sessionReader, registry stageAuthority, fees feeRecordReader, audit auditSink, listener transitionListener, validate *validator.Validate, logger *zap.Logger, lockShards int) *EnquiryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if lockShards <= 0 {
		lockShards = 64
	}
	return &EnquiryService{
		repo:      repo,
		sessions:  sessions,
		registry:  registry,
		fees:      fees,
		audit:     audit,
		listener:  listener,
		validator: validate,
		logger:    logger,
		locks:     make([]sync.Mutex, lockShards),
	}
}

// Create registers a new enquiry at the initial stage of its session's
// workflow and writes the first transition row.
func (s *EnquiryService) Create(ctx context.Context, req CreateEnquiryRequest, actorID string) (*models.Enquiry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enquiry payload")
	}
	source := models.EnquirySource(strings.ToUpper(req.Source))
	if !source.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown enquiry source: %s", req.Source))
	}

	session, err := s.activeSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	stages, err := s.registry.GetStages(ctx, session.SchoolID, session.WorkflowType)
	if err != nil {
		return nil, err
	}

	enquiry := &models.Enquiry{
		SessionID:       session.ID,
		Source:          source,
		CurrentStageKey: stages.Initial().Key,
		CreatedAt:       time.Now().UTC(),
	}
	if _, err := s.repo.Create(ctx, enquiry, actorID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enquiry")
	}

	s.emitAudit(ctx, actorID, models.AuditActionEnquiryCreate, enquiry.ID, map[string]interface{}{
		"session_id": enquiry.SessionID,
		"source":     enquiry.Source,
		"stage":      enquiry.CurrentStageKey,
	})
	s.notify(session)
	return enquiry, nil
}

// Advance moves the enquiry to the single next forward stage. Repeating an
// already-applied advance is a no-op success, not a double append.
func (s *EnquiryService) Advance(ctx context.Context, enquiryID, toStageKey, actorID string) (*models.Enquiry, error) {
	unlock := s.lock(enquiryID)
	defer unlock()

	enquiry, session, stages, err := s.loadForTransition(ctx, enquiryID)
	if err != nil {
		return nil, err
	}

	// Idempotent repeat: the requested stage is already current and no
	// further state change happened in between.
	if enquiry.CurrentStageKey == toStageKey {
		return enquiry, nil
	}

	if enquiry.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrIllegalTransition, "enquiry already reached a terminal stage")
	}

	from, ok := stages.Find(enquiry.CurrentStageKey)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, fmt.Sprintf("current stage %s is not part of workflow %s", enquiry.CurrentStageKey, session.WorkflowType))
	}
	to, ok := stages.Find(toStageKey)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrIllegalTransition, fmt.Sprintf("unknown target stage: %s", toStageKey))
	}
	legal, err := s.registry.IsLegalTransition(ctx, session.SchoolID, session.WorkflowType, from.Key, to.Key)
	if err != nil {
		return nil, err
	}
	if !legal {
		return nil, appErrors.Clone(appErrors.ErrIllegalTransition, fmt.Sprintf("cannot advance from %s to %s: only the next stage is reachable without a bypass", from.Key, to.Key))
	}

	params := repository.AppendTransitionParams{
		EnquiryID:        enquiry.ID,
		ExpectedStageKey: enquiry.CurrentStageKey,
		ToStageKey:       to.Key,
		ActorID:          actorID,
	}
	if to.IsTerminal {
		now := time.Now().UTC()
		params.EnrolledAt = &now
	}

	updated, err := s.applyTransition(ctx, enquiry, params)
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, actorID, models.AuditActionStageAdvance, enquiry.ID, map[string]interface{}{
		"from_stage": from.Key,
		"to_stage":   to.Key,
	})
	s.notify(session)
	return updated, nil
}

// Reject closes the enquiry from any non-terminal stage.
func (s *EnquiryService) Reject(ctx context.Context, enquiryID, actorID, reason string) (*models.Enquiry, error) {
	unlock := s.lock(enquiryID)
	defer unlock()

	enquiry, session, _, err := s.loadForTransition(ctx, enquiryID)
	if err != nil {
		return nil, err
	}
	if enquiry.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrIllegalTransition, "enquiry already reached a terminal stage")
	}

	now := time.Now().UTC()
	params := repository.AppendTransitionParams{
		EnquiryID:        enquiry.ID,
		ExpectedStageKey: enquiry.CurrentStageKey,
		ToStageKey:       models.StageRejectedKey,
		ActorID:          actorID,
		RejectedAt:       &now,
	}

	updated, err := s.applyTransition(ctx, enquiry, params)
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, actorID, models.AuditActionStageReject, enquiry.ID, map[string]interface{}{
		"from_stage": enquiry.CurrentStageKey,
		"reason":     reason,
	})
	s.notify(session)
	return updated, nil
}

// BypassTo skips one or more stages forward. The reason is mandatory and
// every bypass is recorded on the transition row itself plus the audit
// trail. Role checks happen at the HTTP layer before this is called.
func (s *EnquiryService) BypassTo(ctx context.Context, enquiryID, toStageKey, actorID, reason string) (*models.Enquiry, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, appErrors.Clone(appErrors.ErrMissingReason, "")
	}

	unlock := s.lock(enquiryID)
	defer unlock()

	enquiry, session, stages, err := s.loadForTransition(ctx, enquiryID)
	if err != nil {
		return nil, err
	}
	if enquiry.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrIllegalTransition, "enquiry already reached a terminal stage")
	}

	from, ok := stages.Find(enquiry.CurrentStageKey)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, fmt.Sprintf("current stage %s is not part of workflow %s", enquiry.CurrentStageKey, session.WorkflowType))
	}
	to, ok := stages.Find(toStageKey)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrIllegalTransition, fmt.Sprintf("unknown target stage: %s", toStageKey))
	}
	if to.Order <= from.Order {
		return nil, appErrors.Clone(appErrors.ErrIllegalTransition, "bypass must move forward")
	}
	if to.Order == from.Order+1 {
		return nil, appErrors.Clone(appErrors.ErrIllegalTransition, fmt.Sprintf("%s is the next stage after %s: use advance, not bypass", to.Key, from.Key))
	}

	trimmed := strings.TrimSpace(reason)
	params := repository.AppendTransitionParams{
		EnquiryID:        enquiry.ID,
		ExpectedStageKey: enquiry.CurrentStageKey,
		ToStageKey:       to.Key,
		ActorID:          actorID,
		WasBypass:        true,
		BypassReason:     &trimmed,
	}
	if to.IsTerminal {
		now := time.Now().UTC()
		params.EnrolledAt = &now
	}

	updated, err := s.applyTransition(ctx, enquiry, params)
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, actorID, models.AuditActionStageBypass, enquiry.ID, map[string]interface{}{
		"from_stage": from.Key,
		"to_stage":   to.Key,
		"reason":     trimmed,
	})
	s.notify(session)
	return updated, nil
}

// Get returns an enquiry with its full transition history.
func (s *EnquiryService) Get(ctx context.Context, enquiryID string) (*models.EnquiryDetail, error) {
	enquiry, err := s.repo.FindByID(ctx, enquiryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enquiry not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enquiry")
	}
	transitions, err := s.repo.ListTransitions(ctx, enquiryID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load transition history")
	}
	detail := &models.EnquiryDetail{Enquiry: *enquiry, Transitions: transitions}
	if s.fees != nil {
		records, err := s.fees.ListByEnquiry(ctx, enquiryID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee records")
		}
		if records == nil {
			records = []models.FeeRecord{}
		}
		detail.Fees = records
	}
	return detail, nil
}

// List returns enquiries with pagination metadata.
func (s *EnquiryService) List(ctx context.Context, filter models.EnquiryFilter) ([]models.Enquiry, *models.Pagination, error) {
	enquiries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enquiries")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return enquiries, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *EnquiryService) loadForTransition(ctx context.Context, enquiryID string) (*models.Enquiry, *models.AdmissionSession, models.StageList, error) {
	enquiry, err := s.repo.FindByID(ctx, enquiryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, models.StageList{}, appErrors.Clone(appErrors.ErrNotFound, "enquiry not found")
		}
		return nil, nil, models.StageList{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enquiry")
	}
	session, err := s.activeSession(ctx, enquiry.SessionID)
	if err != nil {
		return nil, nil, models.StageList{}, err
	}
	stages, err := s.registry.GetStages(ctx, session.SchoolID, session.WorkflowType)
	if err != nil {
		return nil, nil, models.StageList{}, err
	}
	return enquiry, session, stages, nil
}

func (s *EnquiryService) activeSession(ctx context.Context, sessionID string) (*models.AdmissionSession, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidSession, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if !session.IsActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidSession, "admission session is closed")
	}
	return session, nil
}

func (s *EnquiryService) applyTransition(ctx context.Context, enquiry *models.Enquiry, params repository.AppendTransitionParams) (*models.Enquiry, error) {
	transition, err := s.repo.AppendTransition(ctx, params)
	if err != nil {
		if errors.Is(err, repository.ErrStaleEnquiry) {
			return nil, appErrors.Clone(appErrors.ErrConcurrentModification, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record transition")
	}

	updated := *enquiry
	updated.CurrentStageKey = transition.ToStageKey
	updated.EnrolledAt = params.EnrolledAt
	updated.RejectedAt = params.RejectedAt
	return &updated, nil
}

func (s *EnquiryService) lock(enquiryID string) func() {
	h := fnv.New32a()
	h.Write([]byte(enquiryID)) //nolint:errcheck
	shard := &s.locks[h.Sum32()%uint32(len(s.locks))]
	shard.Lock()
	return shard.Unlock
}

func (s *EnquiryService) emitAudit(ctx context.Context, actorID, action, enquiryID string, payload map[string]interface{}) {
	if s.audit == nil {
		return
	}
	body, _ := json.Marshal(payload)
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "enquiry",
		ResourceID: &enquiryID,
		NewValues:  body,
		IPAddress:  "system",
		UserAgent:  "enquiry-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func (s *EnquiryService) notify(session *models.AdmissionSession) {
	if s.listener == nil || session == nil {
		return
	}
	s.listener.TransitionCommitted(session.ID, session.SchoolID)
}
