package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scolara-dev/admission-api/internal/models"
	"github.com/scolara-dev/admission-api/internal/repository"
	appErrors "github.com/scolara-dev/admission-api/pkg/errors"
)

type mockEnquiryRepo struct {
	enquiries map[string]models.Enquiry
	appended  []repository.AppendTransitionParams
	appendErr error
	created   *models.Enquiry
}

func (m *mockEnquiryRepo) Create(ctx context.Context, enquiry *models.Enquiry, actorID string) (*models.StageTransition, error) {
	if m.enquiries == nil {
		m.enquiries = make(map[string]models.Enquiry)
	}
	if enquiry.ID == "" {
		enquiry.ID = "new-enquiry"
	}
	m.enquiries[enquiry.ID] = *enquiry
	m.created = enquiry
	return &models.StageTransition{EnquiryID: enquiry.ID, ToStageKey: enquiry.CurrentStageKey, ActorID: actorID}, nil
}

func (m *mockEnquiryRepo) AppendTransition(ctx context.Context, params repository.AppendTransitionParams) (*models.StageTransition, error) {
	if m.appendErr != nil {
		return nil, m.appendErr
	}
	m.appended = append(m.appended, params)
	if e, ok := m.enquiries[params.EnquiryID]; ok {
		e.CurrentStageKey = params.ToStageKey
		e.EnrolledAt = params.EnrolledAt
		e.RejectedAt = params.RejectedAt
		m.enquiries[params.EnquiryID] = e
	}
	from := params.ExpectedStageKey
	return &models.StageTransition{
		EnquiryID:    params.EnquiryID,
		FromStageKey: &from,
		ToStageKey:   params.ToStageKey,
		ActorID:      params.ActorID,
		WasBypass:    params.WasBypass,
		BypassReason: params.BypassReason,
		OccurredAt:   time.Now().UTC(),
	}, nil
}

func (m *mockEnquiryRepo) FindByID(ctx context.Context, id string) (*models.Enquiry, error) {
	if e, ok := m.enquiries[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnquiryRepo) ListTransitions(ctx context.Context, enquiryID string) ([]models.StageTransition, error) {
	return nil, nil
}

func (m *mockEnquiryRepo) List(ctx context.Context, filter models.EnquiryFilter) ([]models.Enquiry, int, error) {
	var list []models.Enquiry
	for _, e := range m.enquiries {
		list = append(list, e)
	}
	return list, len(list), nil
}

type mockSessionReader struct {
	sessions map[string]models.AdmissionSession
}

func (m *mockSessionReader) FindByID(ctx context.Context, id string) (*models.AdmissionSession, error) {
	if s, ok := m.sessions[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

type mockAuditSink struct {
	logs []models.AuditLog
}

func (m *mockAuditSink) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, *log)
	return nil
}

type mockListener struct {
	notified int
}

func (m *mockListener) TransitionCommitted(sessionID, schoolID string) {
	m.notified++
}

func standardSessionReader() *mockSessionReader {
	return &mockSessionReader{sessions: map[string]models.AdmissionSession{
		"sess-1": {ID: "sess-1", SchoolID: "school-1", WorkflowType: models.WorkflowStandard, IsActive: true},
		"closed": {ID: "closed", SchoolID: "school-1", WorkflowType: models.WorkflowStandard, IsActive: false},
	}}
}

type mockFeeReader struct {
	records []models.FeeRecord
}

func (m *mockFeeReader) ListByEnquiry(ctx context.Context, enquiryID string) ([]models.FeeRecord, error) {
	return m.records, nil
}

func newTestEnquiryService(repo *mockEnquiryRepo, sessions *mockSessionReader, audit *mockAuditSink, listener *mockListener) *EnquiryService {
	registry := NewStageRegistry(nil, zap.NewNop())
	var auditIface auditSink
	if audit != nil {
		auditIface = audit
	}
	var listenerIface transitionListener
	if listener != nil {
		listenerIface = listener
	}
	return NewEnquiryService(repo, sessions, registry, nil, auditIface, listenerIface, validator.New(), zap.NewNop(), 8)
}

func errorCode(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	return appErrors.FromError(err).Code
}

func TestEnquiryServiceCreate(t *testing.T) {
	repo := &mockEnquiryRepo{}
	audit := &mockAuditSink{}
	listener := &mockListener{}
	svc := newTestEnquiryService(repo, standardSessionReader(), audit, listener)

	enquiry, err := svc.Create(context.Background(), CreateEnquiryRequest{SessionID: "sess-1", Source: "walk_in"}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "NEW", enquiry.CurrentStageKey)
	assert.Equal(t, models.SourceWalkIn, enquiry.Source)
	assert.NotNil(t, repo.created)
	assert.Len(t, audit.logs, 1)
	assert.Equal(t, 1, listener.notified)
}

func TestEnquiryServiceCreateClosedSession(t *testing.T) {
	svc := newTestEnquiryService(&mockEnquiryRepo{}, standardSessionReader(), nil, nil)

	_, err := svc.Create(context.Background(), CreateEnquiryRequest{SessionID: "closed", Source: "WEBSITE"}, "user-1")
	assert.Equal(t, appErrors.ErrInvalidSession.Code, errorCode(t, err))
}

func TestEnquiryServiceCreateUnknownSource(t *testing.T) {
	svc := newTestEnquiryService(&mockEnquiryRepo{}, standardSessionReader(), nil, nil)

	_, err := svc.Create(context.Background(), CreateEnquiryRequest{SessionID: "sess-1", Source: "CARRIER_PIGEON"}, "user-1")
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))
}

func TestEnquiryServiceAdvance(t *testing.T) {
	repo := &mockEnquiryRepo{enquiries: map[string]models.Enquiry{
		"e1": {ID: "e1", SessionID: "sess-1", CurrentStageKey: "NEW"},
	}}
	svc := newTestEnquiryService(repo, standardSessionReader(), nil, nil)

	updated, err := svc.Advance(context.Background(), "e1", "CONTACTED", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "CONTACTED", updated.CurrentStageKey)
	require.Len(t, repo.appended, 1)
	assert.Equal(t, "NEW", repo.appended[0].ExpectedStageKey)
	assert.False(t, repo.appended[0].WasBypass)
}

func TestEnquiryServiceAdvanceSkipRequiresBypass(t *testing.T) {
	repo := &mockEnquiryRepo{enquiries: map[string]models.Enquiry{
		"e1": {ID: "e1", SessionID: "sess-1", CurrentStageKey: "NEW"},
	}}
	svc := newTestEnquiryService(repo, standardSessionReader(), nil, nil)

	_, err := svc.Advance(context.Background(), "e1", "FORM_SUBMITTED", "user-1")
	assert.Equal(t, appErrors.ErrIllegalTransition.Code, errorCode(t, err))
	assert.Empty(t, repo.appended)
}

func TestEnquiryServiceAdvanceBackward(t *testing.T) {
	repo := &mockEnquiryRepo{enquiries: map[string]models.Enquiry{
		"e1": {ID: "e1", SessionID: "sess-1", CurrentStageKey: "FORM_SUBMITTED"},
	}}
	svc := newTestEnquiryService(repo, standardSessionReader(), nil, nil)

	_, err := svc.Advance(context.Background(), "e1", "NEW", "user-1")
	assert.Equal(t, appErrors.ErrIllegalTransition.Code, errorCode(t, err))
	assert.Empty(t, repo.appended)
}

func TestEnquiryServiceAdvanceToTerminalSetsEnrolled(t *testing.T) {
	repo := &mockEnquiryRepo{enquiries: map[string]models.Enquiry{
		"e1": {ID: "e1", SessionID: "sess-1", CurrentStageKey: "APPROVED"},
	}}
	svc := newTestEnquiryService(repo, standardSessionReader(), nil, nil)

	updated, err := svc.Advance(context.Background(), "e1", "ENROLLED", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "ENROLLED", updated.CurrentStageKey)
	require.NotNil(t, updated.EnrolledAt)
	assert.True(t, updated.Terminal())
}

func TestEnquiryServiceAdvanceIdempotentRepeat(t *testing.T) {
	repo := &mockEnquiryRepo{enquiries: map[string]models.Enquiry{
		"e1": {ID: "e1", SessionID: "sess-1", CurrentStageKey: "CONTACTED"},
	}}
	svc := newTestEnquiryService(repo, standardSessionReader(), nil, nil)

	updated, err := svc.Advance(context.Background(), "e1", "CONTACTED", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "CONTACTED", updated.CurrentStageKey)
	assert.Empty(t, repo.appended)
}

func TestEnquiryServiceAdvanceTerminalEnquiry(t *testing.T) {
	now := time.Now().UTC()
	repo := &mockEnquiryRepo{enquiries: map[string]models.Enquiry{
		"e1": {ID: "e1", SessionID: "sess-1", CurrentStageKey: "ENROLLED", EnrolledAt: &now},
	}}
	svc := newTestEnquiryService(repo, standardSessionReader(), nil, nil)

	_, err := svc.Advance(context.Background(), "e1", "CONTACTED", "user-1")
	assert.Equal(t, appErrors.ErrIllegalTransition.Code, errorCode(t, err))
}

func TestEnquiryServiceReject(t *testing.T) {
	repo := &mockEnquiryRepo{enquiries: map[string]models.Enquiry{
		"e1": {ID: "e1", SessionID: "sess-1", CurrentStageKey: "FORM_SUBMITTED"},
	}}
	audit := &mockAuditSink{}
	svc := newTestEnquiryService(repo, standardSessionReader(), audit, nil)

	updated, err := svc.Reject(context.Background(), "e1", "user-1", "budget constraints")
	require.NoError(t, err)
	assert.Equal(t, models.StageRejectedKey, updated.CurrentStageKey)
	require.NotNil(t, updated.RejectedAt)
	assert.Nil(t, updated.EnrolledAt)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionStageReject, audit.logs[0].Action)
}

func TestEnquiryServiceRejectTerminalEnquiry(t *testing.T) {
	now := time.Now().UTC()
	repo := &mockEnquiryRepo{enquiries: map[string]models.Enquiry{
		"e1": {ID: "e1", SessionID: "sess-1", CurrentStageKey: models.StageRejectedKey, RejectedAt: &now},
	}}
	svc := newTestEnquiryService(repo, standardSessionReader(), nil, nil)

	_, err := svc.Reject(context.Background(), "e1", "user-1", "again")
	assert.Equal(t, appErrors.ErrIllegalTransition.Code, errorCode(t, err))
}

func TestEnquiryServiceBypass(t *testing.T) {
	repo := &mockEnquiryRepo{enquiries: map[string]models.Enquiry{
		"e1": {ID: "e1", SessionID: "sess-1", CurrentStageKey: "NEW"},
	}}
	audit := &mockAuditSink{}
	svc := newTestEnquiryService(repo, standardSessionReader(), audit, nil)

	updated, err := svc.BypassTo(context.Background(), "e1", "APPROVED", "admin-1", "urgent sibling case")
	require.NoError(t, err)
	assert.Equal(t, "APPROVED", updated.CurrentStageKey)
	require.Len(t, repo.appended, 1)
	assert.True(t, repo.appended[0].WasBypass)
	require.NotNil(t, repo.appended[0].BypassReason)
	assert.Equal(t, "urgent sibling case", *repo.appended[0].BypassReason)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionStageBypass, audit.logs[0].Action)
}

func TestEnquiryServiceBypassMissingReason(t *testing.T) {
	repo := &mockEnquiryRepo{enquiries: map[string]models.Enquiry{
		"e1": {ID: "e1", SessionID: "sess-1", CurrentStageKey: "NEW"},
	}}
	svc := newTestEnquiryService(repo, standardSessionReader(), nil, nil)

	_, err := svc.BypassTo(context.Background(), "e1", "APPROVED", "admin-1", "   ")
	assert.Equal(t, appErrors.ErrMissingReason.Code, errorCode(t, err))
	assert.Empty(t, repo.appended)
}

func TestEnquiryServiceBypassNextStage(t *testing.T) {
	repo := &mockEnquiryRepo{enquiries: map[string]models.Enquiry{
		"e1": {ID: "e1", SessionID: "sess-1", CurrentStageKey: "NEW"},
	}}
	svc := newTestEnquiryService(repo, standardSessionReader(), nil, nil)

	_, err := svc.BypassTo(context.Background(), "e1", "CONTACTED", "admin-1", "no need")
	assert.Equal(t, appErrors.ErrIllegalTransition.Code, errorCode(t, err))
}

func TestEnquiryServiceBypassBackward(t *testing.T) {
	repo := &mockEnquiryRepo{enquiries: map[string]models.Enquiry{
		"e1": {ID: "e1", SessionID: "sess-1", CurrentStageKey: "APPROVED"},
	}}
	svc := newTestEnquiryService(repo, standardSessionReader(), nil, nil)

	_, err := svc.BypassTo(context.Background(), "e1", "NEW", "admin-1", "undo")
	assert.Equal(t, appErrors.ErrIllegalTransition.Code, errorCode(t, err))
}

func TestEnquiryServiceBypassToTerminalSetsEnrolled(t *testing.T) {
	repo := &mockEnquiryRepo{enquiries: map[string]models.Enquiry{
		"e1": {ID: "e1", SessionID: "sess-1", CurrentStageKey: "FORM_SUBMITTED"},
	}}
	svc := newTestEnquiryService(repo, standardSessionReader(), nil, nil)

	updated, err := svc.BypassTo(context.Background(), "e1", "ENROLLED", "admin-1", "transfer student with records")
	require.NoError(t, err)
	require.NotNil(t, updated.EnrolledAt)
}

func TestEnquiryServiceConcurrentModification(t *testing.T) {
	repo := &mockEnquiryRepo{
		enquiries: map[string]models.Enquiry{
			"e1": {ID: "e1", SessionID: "sess-1", CurrentStageKey: "NEW"},
		},
		appendErr: repository.ErrStaleEnquiry,
	}
	svc := newTestEnquiryService(repo, standardSessionReader(), nil, nil)

	_, err := svc.Advance(context.Background(), "e1", "CONTACTED", "user-1")
	assert.Equal(t, appErrors.ErrConcurrentModification.Code, errorCode(t, err))
}

func TestEnquiryServiceAdvanceNotFound(t *testing.T) {
	svc := newTestEnquiryService(&mockEnquiryRepo{}, standardSessionReader(), nil, nil)

	_, err := svc.Advance(context.Background(), "missing", "CONTACTED", "user-1")
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))
}

func TestEnquiryServiceTransitionsOnClosedSession(t *testing.T) {
	newRepo := func() *mockEnquiryRepo {
		return &mockEnquiryRepo{enquiries: map[string]models.Enquiry{
			"e1": {ID: "e1", SessionID: "closed", CurrentStageKey: "NEW"},
		}}
	}

	t.Run("advance", func(t *testing.T) {
		repo := newRepo()
		svc := newTestEnquiryService(repo, standardSessionReader(), nil, nil)

		_, err := svc.Advance(context.Background(), "e1", "CONTACTED", "user-1")
		assert.Equal(t, appErrors.ErrInvalidSession.Code, errorCode(t, err))
		assert.Empty(t, repo.appended)
	})

	t.Run("reject", func(t *testing.T) {
		repo := newRepo()
		svc := newTestEnquiryService(repo, standardSessionReader(), nil, nil)

		_, err := svc.Reject(context.Background(), "e1", "user-1", "no longer interested")
		assert.Equal(t, appErrors.ErrInvalidSession.Code, errorCode(t, err))
		assert.Empty(t, repo.appended)
	})

	t.Run("bypass", func(t *testing.T) {
		repo := newRepo()
		svc := newTestEnquiryService(repo, standardSessionReader(), nil, nil)

		_, err := svc.BypassTo(context.Background(), "e1", "APPROVED", "admin-1", "urgent sibling case")
		assert.Equal(t, appErrors.ErrInvalidSession.Code, errorCode(t, err))
		assert.Empty(t, repo.appended)
	})
}

func TestEnquiryServiceGetIncludesFeeRecords(t *testing.T) {
	repo := &mockEnquiryRepo{enquiries: map[string]models.Enquiry{
		"e1": {ID: "e1", SessionID: "sess-1", CurrentStageKey: "APPROVED"},
	}}
	fees := &mockFeeReader{records: []models.FeeRecord{
		{EnquiryID: "e1", AmountDue: 1000, AmountPaid: 250, Status: models.FeeStatusPartial},
	}}
	registry := NewStageRegistry(nil, zap.NewNop())
	svc := NewEnquiryService(repo, standardSessionReader(), registry, fees, nil, nil, validator.New(), zap.NewNop(), 8)

	detail, err := svc.Get(context.Background(), "e1")
	require.NoError(t, err)
	require.Len(t, detail.Fees, 1)
	assert.Equal(t, models.FeeStatusPartial, detail.Fees[0].Status)
}

func TestEnquiryServiceGetEmptyFeeLedger(t *testing.T) {
	repo := &mockEnquiryRepo{enquiries: map[string]models.Enquiry{
		"e1": {ID: "e1", SessionID: "sess-1", CurrentStageKey: "NEW"},
	}}
	registry := NewStageRegistry(nil, zap.NewNop())
	svc := NewEnquiryService(repo, standardSessionReader(), registry, &mockFeeReader{}, nil, nil, validator.New(), zap.NewNop(), 8)

	detail, err := svc.Get(context.Background(), "e1")
	require.NoError(t, err)
	assert.NotNil(t, detail.Fees)
	assert.Empty(t, detail.Fees)
}
