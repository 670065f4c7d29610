package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scolara-dev/admission-api/internal/models"
	appErrors "github.com/scolara-dev/admission-api/pkg/errors"
)

type mockAnalyticsRepo struct {
	total     int
	reach     []models.StageReachCount
	workflows []models.WorkflowAggregateRow
	bypasses  models.BypassAggregateRow
	byUser    []models.BypassByUser
	sources   []models.SourceAggregateRow
	monthly   []models.MonthlyAggregateRow
}

func (m *mockAnalyticsRepo) StageReachCounts(ctx context.Context, sessionID string) ([]models.StageReachCount, error) {
	return m.reach, nil
}

func (m *mockAnalyticsRepo) TotalEnquiries(ctx context.Context, sessionID string) (int, error) {
	return m.total, nil
}

func (m *mockAnalyticsRepo) WorkflowAggregates(ctx context.Context, schoolID string) ([]models.WorkflowAggregateRow, error) {
	return m.workflows, nil
}

func (m *mockAnalyticsRepo) BypassAggregates(ctx context.Context, schoolID string) (*models.BypassAggregateRow, error) {
	row := m.bypasses
	return &row, nil
}

func (m *mockAnalyticsRepo) BypassByUser(ctx context.Context, schoolID string) ([]models.BypassByUser, error) {
	return m.byUser, nil
}

func (m *mockAnalyticsRepo) SourceAggregates(ctx context.Context, schoolID string) ([]models.SourceAggregateRow, error) {
	return m.sources, nil
}

func (m *mockAnalyticsRepo) MonthlyAggregates(ctx context.Context, schoolID string, from time.Time) ([]models.MonthlyAggregateRow, error) {
	return m.monthly, nil
}

type mockFeeLedger struct {
	totals    models.FeeTotals
	breakdown []models.FeeStatusBreakdown
}

func (m *mockFeeLedger) TotalsForSchool(ctx context.Context, schoolID string) (*models.FeeTotals, error) {
	totals := m.totals
	return &totals, nil
}

func (m *mockFeeLedger) BreakdownForSchool(ctx context.Context, schoolID string) ([]models.FeeStatusBreakdown, error) {
	return m.breakdown, nil
}

func newTestAnalyticsService(repo *mockAnalyticsRepo, fees *mockFeeLedger) *AnalyticsService {
	registry := NewStageRegistry(nil, zap.NewNop())
	return NewAnalyticsService(repo, fees, standardSessionReader(), registry, nil, nil, zap.NewNop(), 6)
}

func TestAnalyticsFunnel(t *testing.T) {
	repo := &mockAnalyticsRepo{
		total: 10,
		reach: []models.StageReachCount{
			{StageKey: "NEW", Count: 10},
			{StageKey: "CONTACTED", Count: 8},
			{StageKey: "FORM_SUBMITTED", Count: 5},
			{StageKey: "APPROVED", Count: 2},
			{StageKey: "ENROLLED", Count: 2},
		},
	}
	svc := newTestAnalyticsService(repo, &mockFeeLedger{})

	funnel, cacheHit, err := svc.Funnel(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.False(t, cacheHit)
	require.Len(t, funnel, 5)

	assert.Equal(t, "NEW", funnel[0].StageKey)
	assert.Equal(t, 10, funnel[0].Count)
	assert.Equal(t, 100.0, funnel[0].Percentage)
	assert.Equal(t, 80.0, funnel[1].Percentage)
	assert.Equal(t, 50.0, funnel[2].Percentage)
	assert.Equal(t, 20.0, funnel[3].Percentage)
	assert.Equal(t, 20.0, funnel[4].Percentage)
}

func TestAnalyticsFunnelEmptySession(t *testing.T) {
	svc := newTestAnalyticsService(&mockAnalyticsRepo{}, &mockFeeLedger{})

	funnel, _, err := svc.Funnel(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, funnel, 5)
	for _, stage := range funnel {
		assert.Equal(t, 0, stage.Count)
		assert.Equal(t, 0.0, stage.Percentage)
	}
}

func TestAnalyticsFunnelCoversUnreachedStages(t *testing.T) {
	repo := &mockAnalyticsRepo{
		total: 4,
		reach: []models.StageReachCount{{StageKey: "NEW", Count: 4}},
	}
	svc := newTestAnalyticsService(repo, &mockFeeLedger{})

	funnel, _, err := svc.Funnel(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, funnel, 5)
	assert.Equal(t, 0, funnel[4].Count)
	assert.Equal(t, "ENROLLED", funnel[4].StageKey)
}

func TestAnalyticsConversion(t *testing.T) {
	repo := &mockAnalyticsRepo{
		total: 10,
		reach: []models.StageReachCount{
			{StageKey: "CONTACTED", Count: 8},
			{StageKey: "FORM_SUBMITTED", Count: 5},
			{StageKey: "APPROVED", Count: 2},
			{StageKey: "ENROLLED", Count: 2},
		},
	}
	svc := newTestAnalyticsService(repo, &mockFeeLedger{})

	conversions, _, err := svc.Conversion(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, conversions, 4)

	assert.Equal(t, "NEW", conversions[0].FromStage)
	assert.Equal(t, "CONTACTED", conversions[0].ToStage)
	assert.Equal(t, 80.0, conversions[0].ConversionRate)
	assert.Equal(t, 62.5, conversions[1].ConversionRate)
	assert.Equal(t, 40.0, conversions[2].ConversionRate)
	assert.Equal(t, 100.0, conversions[3].ConversionRate)
}

func TestAnalyticsConversionZeroDenominator(t *testing.T) {
	repo := &mockAnalyticsRepo{
		total: 3,
		reach: []models.StageReachCount{{StageKey: "CONTACTED", Count: 0}},
	}
	svc := newTestAnalyticsService(repo, &mockFeeLedger{})

	conversions, _, err := svc.Conversion(context.Background(), "sess-1")
	require.NoError(t, err)
	for _, conv := range conversions[1:] {
		assert.Equal(t, 0.0, conv.ConversionRate)
	}
}

func TestAnalyticsWorkflows(t *testing.T) {
	repo := &mockAnalyticsRepo{workflows: []models.WorkflowAggregateRow{
		{WorkflowType: models.WorkflowStandard, TotalEnquiries: 20, Enrolled: 4, Rejected: 6, SessionCount: 2, TotalEnrollmentDays: 14.0},
		{WorkflowType: models.WorkflowSimple, TotalEnquiries: 5, Enrolled: 0, Rejected: 1, SessionCount: 1},
	}}
	svc := newTestAnalyticsService(repo, &mockFeeLedger{})

	summaries, _, err := svc.Workflows(context.Background(), "school-1")
	require.NoError(t, err)

	standard := summaries[models.WorkflowStandard]
	assert.Equal(t, 10, standard.Pending)
	assert.Equal(t, 20.0, standard.ConversionRate)
	require.NotNil(t, standard.AvgDaysToEnrollment)
	assert.Equal(t, 3.5, *standard.AvgDaysToEnrollment)

	simple := summaries[models.WorkflowSimple]
	assert.Equal(t, 0.0, simple.ConversionRate)
	assert.Nil(t, simple.AvgDaysToEnrollment)
}

func TestAnalyticsFees(t *testing.T) {
	fees := &mockFeeLedger{
		totals: models.FeeTotals{TotalAmount: 1500, TotalCollected: 1000, PendingCount: 2, TotalRecords: 5},
		breakdown: []models.FeeStatusBreakdown{
			{Status: models.FeeStatusCompleted, Count: 3, AmountDue: 900, AmountPaid: 900},
			{Status: models.FeeStatusPartial, Count: 1, AmountDue: 400, AmountPaid: 100},
			{Status: models.FeeStatusPending, Count: 1, AmountDue: 200, AmountPaid: 0},
		},
	}
	svc := newTestAnalyticsService(&mockAnalyticsRepo{}, fees)

	analytics, _, err := svc.Fees(context.Background(), "school-1")
	require.NoError(t, err)
	assert.Equal(t, 1500.0, analytics.TotalFeeAmount)
	assert.Equal(t, 1000.0, analytics.TotalCollected)
	assert.Equal(t, 66.67, analytics.CollectionRate)
	assert.Len(t, analytics.ByStatus, 3)
}

func TestAnalyticsFeesZeroTotal(t *testing.T) {
	svc := newTestAnalyticsService(&mockAnalyticsRepo{}, &mockFeeLedger{})

	analytics, _, err := svc.Fees(context.Background(), "school-1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, analytics.CollectionRate)
	assert.NotNil(t, analytics.ByStatus)
}

func TestAnalyticsBypasses(t *testing.T) {
	repo := &mockAnalyticsRepo{
		bypasses: models.BypassAggregateRow{TotalBypasses: 5, EnquiriesWithBypass: 4, TotalEnquiries: 20},
		byUser:   []models.BypassByUser{{ActorID: "admin-1", Bypasses: 3}, {ActorID: "admin-2", Bypasses: 2}},
	}
	svc := newTestAnalyticsService(repo, &mockFeeLedger{})

	analytics, _, err := svc.Bypasses(context.Background(), "school-1")
	require.NoError(t, err)
	assert.Equal(t, 5, analytics.TotalBypasses)
	assert.Equal(t, 20.0, analytics.BypassRate)
	assert.Len(t, analytics.ByUser, 2)
}

func TestAnalyticsSourcesSorted(t *testing.T) {
	repo := &mockAnalyticsRepo{sources: []models.SourceAggregateRow{
		{Source: models.SourceWalkIn, TotalEnquiries: 10, Enrolled: 1},
		{Source: models.SourceReferral, TotalEnquiries: 4, Enrolled: 3},
		{Source: models.SourceWebsite, TotalEnquiries: 8, Enrolled: 2},
	}}
	svc := newTestAnalyticsService(repo, &mockFeeLedger{})

	sources, _, err := svc.Sources(context.Background(), "school-1")
	require.NoError(t, err)
	require.Len(t, sources, 3)
	assert.Equal(t, models.SourceReferral, sources[0].Source)
	assert.Equal(t, 75.0, sources[0].ConversionRate)
	assert.Equal(t, models.SourceWebsite, sources[1].Source)
	assert.Equal(t, models.SourceWalkIn, sources[2].Source)
}

func TestAnalyticsTrendsZeroFill(t *testing.T) {
	repo := &mockAnalyticsRepo{monthly: []models.MonthlyAggregateRow{
		{Month: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), TotalEnquiries: 8, Enrolled: 2, Rejected: 1},
		{Month: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), TotalEnquiries: 4, Enrolled: 1},
	}}
	svc := newTestAnalyticsService(repo, &mockFeeLedger{})
	svc.now = func() time.Time { return time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC) }

	trends, _, err := svc.Trends(context.Background(), "school-1", 4)
	require.NoError(t, err)
	require.Len(t, trends, 4)

	assert.Equal(t, "2026-05", trends[0].Month)
	assert.Equal(t, 0, trends[0].TotalEnquiries)
	assert.Equal(t, "2026-06", trends[1].Month)
	assert.Equal(t, 8, trends[1].TotalEnquiries)
	assert.Equal(t, 25.0, trends[1].ConversionRate)
	assert.Equal(t, "2026-07", trends[2].Month)
	assert.Equal(t, 0.0, trends[2].ConversionRate)
	assert.Equal(t, "2026-08", trends[3].Month)
	assert.Equal(t, 4, trends[3].TotalEnquiries)
}

func TestAnalyticsTrendsDefaultWindow(t *testing.T) {
	svc := newTestAnalyticsService(&mockAnalyticsRepo{}, &mockFeeLedger{})
	svc.now = func() time.Time { return time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC) }

	trends, _, err := svc.Trends(context.Background(), "school-1", 0)
	require.NoError(t, err)
	assert.Len(t, trends, 6)
}

func TestRound2HalfUp(t *testing.T) {
	assert.Equal(t, 66.67, round2(1000.0/1500.0*100))
	assert.Equal(t, 0.13, round2(0.125))
	assert.Equal(t, 50.0, round2(50.0))
}

func TestAnalyticsAuthorizeSession(t *testing.T) {
	svc := newTestAnalyticsService(&mockAnalyticsRepo{}, &mockFeeLedger{})

	assert.NoError(t, svc.AuthorizeSession(context.Background(), "sess-1", "school-1"))
	assert.NoError(t, svc.AuthorizeSession(context.Background(), "sess-1", ""))

	err := svc.AuthorizeSession(context.Background(), "sess-1", "school-2")
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))

	err = svc.AuthorizeSession(context.Background(), "missing", "school-1")
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))
}
