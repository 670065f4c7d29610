package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scolara-dev/admission-api/internal/models"
	appErrors "github.com/scolara-dev/admission-api/pkg/errors"
)

// AnalyticsRepository describes the persistence layer required by AnalyticsService.
type AnalyticsRepository interface {
	StageReachCounts(ctx context.Context, sessionID string) ([]models.StageReachCount, error)
	TotalEnquiries(ctx context.Context, sessionID string) (int, error)
	WorkflowAggregates(ctx context.Context, schoolID string) ([]models.WorkflowAggregateRow, error)
	BypassAggregates(ctx context.Context, schoolID string) (*models.BypassAggregateRow, error)
	BypassByUser(ctx context.Context, schoolID string) ([]models.BypassByUser, error)
	SourceAggregates(ctx context.Context, schoolID string) ([]models.SourceAggregateRow, error)
	MonthlyAggregates(ctx context.Context, schoolID string, from time.Time) ([]models.MonthlyAggregateRow, error)
}

// FeeLedger is the read-only view over externally-owned fee records.
type FeeLedger interface {
	TotalsForSchool(ctx context.Context, schoolID string) (*models.FeeTotals, error)
	BreakdownForSchool(ctx context.Context, schoolID string) ([]models.FeeStatusBreakdown, error)
}

// AnalyticsService computes funnel, conversion, workflow comparison, fee,
// bypass, source and trend statistics over committed transition and fee
// data. It holds no state between calls; results are point-in-time
// snapshots, optionally served from cache with the configured TTL.
type AnalyticsService struct {
	repo        AnalyticsRepository
	fees        FeeLedger
	sessions    sessionReader
	registry    stageResolver
	cache       *CacheService
	metrics     *MetricsService
	logger      *zap.Logger
	trendMonths int
	now         func() time.Time
}

// NewAnalyticsService constructs an analytics service. trendMonths is the
// default window for Trends when the caller passes months <= 0.
func NewAnalyticsService(repo AnalyticsRepository, fees FeeLedger, sessions sessionReader, registry stageResolver, cache *CacheService, metrics *MetricsService, logger *zap.Logger, trendMonths int) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if trendMonths <= 0 {
		trendMonths = 6
	}
	return &AnalyticsService{
		repo:        repo,
		fees:        fees,
		sessions:    sessions,
		registry:    registry,
		cache:       cache,
		metrics:     metrics,
		logger:      logger,
		trendMonths: trendMonths,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Funnel returns per-stage reach counts and percentages for a session. The
// result always covers the full registry stage list, never a sparse subset.
// The boolean indicates whether data originated from cache.
func (s *AnalyticsService) Funnel(ctx context.Context, sessionID string) ([]models.FunnelStage, bool, error) {
	cacheKey := makeAnalyticsCacheKey("funnel", sessionID)
	var cached []models.FunnelStage
	if hit, err := s.cacheGet(ctx, cacheKey, &cached); err != nil {
		return nil, false, err
	} else if hit {
		return cached, true, nil
	}

	funnel, err := s.computeFunnel(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	s.cacheSet(ctx, cacheKey, funnel)
	return funnel, false, nil
}

// Conversion returns per-consecutive-pair conversion rates for a session.
func (s *AnalyticsService) Conversion(ctx context.Context, sessionID string) ([]models.StageConversion, bool, error) {
	cacheKey := makeAnalyticsCacheKey("conversion", sessionID)
	var cached []models.StageConversion
	if hit, err := s.cacheGet(ctx, cacheKey, &cached); err != nil {
		return nil, false, err
	} else if hit {
		return cached, true, nil
	}

	funnel, err := s.computeFunnel(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}

	conversions := make([]models.StageConversion, 0, len(funnel))
	for i := 0; i+1 < len(funnel); i++ {
		from, to := funnel[i], funnel[i+1]
		conversions = append(conversions, models.StageConversion{
			FromStage:      from.StageKey,
			ToStage:        to.StageKey,
			FromCount:      from.Count,
			ToCount:        to.Count,
			ConversionRate: safeRate(to.Count, from.Count),
		})
	}
	s.cacheSet(ctx, cacheKey, conversions)
	return conversions, false, nil
}

// Workflows compares outcomes across workflow types for a school.
func (s *AnalyticsService) Workflows(ctx context.Context, schoolID string) (map[models.WorkflowType]models.WorkflowSummary, bool, error) {
	cacheKey := makeAnalyticsCacheKey("workflows", schoolID)
	var cached map[models.WorkflowType]models.WorkflowSummary
	if hit, err := s.cacheGet(ctx, cacheKey, &cached); err != nil {
		return nil, false, err
	} else if hit {
		return cached, true, nil
	}

	start := time.Now()
	rows, err := s.repo.WorkflowAggregates(ctx, schoolID)
	if err != nil {
		return nil, false, err
	}
	s.observe("analytics_workflows", start)

	result := make(map[models.WorkflowType]models.WorkflowSummary, len(rows))
	for _, row := range rows {
		summary := models.WorkflowSummary{
			TotalEnquiries: row.TotalEnquiries,
			Enrolled:       row.Enrolled,
			Rejected:       row.Rejected,
			Pending:        row.TotalEnquiries - row.Enrolled - row.Rejected,
			ConversionRate: safeRate(row.Enrolled, row.TotalEnquiries),
			SessionCount:   row.SessionCount,
		}
		if row.Enrolled > 0 {
			avg := round2(row.TotalEnrollmentDays / float64(row.Enrolled))
			summary.AvgDaysToEnrollment = &avg
		}
		result[row.WorkflowType] = summary
	}
	s.cacheSet(ctx, cacheKey, result)
	return result, false, nil
}

// Fees summarises the external fee ledger for a school.
func (s *AnalyticsService) Fees(ctx context.Context, schoolID string) (*models.FeeAnalytics, bool, error) {
	cacheKey := makeAnalyticsCacheKey("fees", schoolID)
	var cached models.FeeAnalytics
	if hit, err := s.cacheGet(ctx, cacheKey, &cached); err != nil {
		return nil, false, err
	} else if hit {
		return &cached, true, nil
	}

	start := time.Now()
	totals, err := s.fees.TotalsForSchool(ctx, schoolID)
	if err != nil {
		return nil, false, err
	}
	breakdown, err := s.fees.BreakdownForSchool(ctx, schoolID)
	if err != nil {
		return nil, false, err
	}
	s.observe("analytics_fees", start)

	if breakdown == nil {
		breakdown = []models.FeeStatusBreakdown{}
	}
	analytics := &models.FeeAnalytics{
		TotalFeeAmount: totals.TotalAmount,
		TotalCollected: totals.TotalCollected,
		CollectionRate: safeRateFloat(totals.TotalCollected, totals.TotalAmount),
		PendingCount:   totals.PendingCount,
		ByStatus:       breakdown,
		TotalRecords:   totals.TotalRecords,
	}
	s.cacheSet(ctx, cacheKey, analytics)
	return analytics, false, nil
}

// Bypasses summarises audited stage skips for a school.
func (s *AnalyticsService) Bypasses(ctx context.Context, schoolID string) (*models.BypassAnalytics, bool, error) {
	cacheKey := makeAnalyticsCacheKey("bypasses", schoolID)
	var cached models.BypassAnalytics
	if hit, err := s.cacheGet(ctx, cacheKey, &cached); err != nil {
		return nil, false, err
	} else if hit {
		return &cached, true, nil
	}

	start := time.Now()
	aggregates, err := s.repo.BypassAggregates(ctx, schoolID)
	if err != nil {
		return nil, false, err
	}
	byUser, err := s.repo.BypassByUser(ctx, schoolID)
	if err != nil {
		return nil, false, err
	}
	s.observe("analytics_bypasses", start)

	if byUser == nil {
		byUser = []models.BypassByUser{}
	}
	analytics := &models.BypassAnalytics{
		TotalBypasses:            aggregates.TotalBypasses,
		TotalEnquiriesWithBypass: aggregates.EnquiriesWithBypass,
		BypassRate:               safeRate(aggregates.EnquiriesWithBypass, aggregates.TotalEnquiries),
		ByUser:                   byUser,
	}
	s.cacheSet(ctx, cacheKey, analytics)
	return analytics, false, nil
}

// Sources reports enrollment conversion per enquiry source, best first.
func (s *AnalyticsService) Sources(ctx context.Context, schoolID string) ([]models.SourcePerformance, bool, error) {
	cacheKey := makeAnalyticsCacheKey("sources", schoolID)
	var cached []models.SourcePerformance
	if hit, err := s.cacheGet(ctx, cacheKey, &cached); err != nil {
		return nil, false, err
	} else if hit {
		return cached, true, nil
	}

	start := time.Now()
	rows, err := s.repo.SourceAggregates(ctx, schoolID)
	if err != nil {
		return nil, false, err
	}
	s.observe("analytics_sources", start)

	performance := make([]models.SourcePerformance, 0, len(rows))
	for _, row := range rows {
		performance = append(performance, models.SourcePerformance{
			Source:         row.Source,
			TotalEnquiries: row.TotalEnquiries,
			Enrolled:       row.Enrolled,
			ConversionRate: safeRate(row.Enrolled, row.TotalEnquiries),
		})
	}
	sort.SliceStable(performance, func(i, j int) bool {
		return performance[i].ConversionRate > performance[j].ConversionRate
	})
	s.cacheSet(ctx, cacheKey, performance)
	return performance, false, nil
}

// Trends buckets a school's enquiries by creation month over a trailing
// window of the requested number of months including the current one,
// oldest first. Months without enquiries appear with zero counts.
func (s *AnalyticsService) Trends(ctx context.Context, schoolID string, months int) ([]models.MonthlyTrend, bool, error) {
	if months <= 0 {
		months = s.trendMonths
	}
	if months > 24 {
		months = 24
	}

	cacheKey := makeAnalyticsCacheKey("trends", schoolID, fmt.Sprintf("%d", months))
	var cached []models.MonthlyTrend
	if hit, err := s.cacheGet(ctx, cacheKey, &cached); err != nil {
		return nil, false, err
	} else if hit {
		return cached, true, nil
	}

	current := s.now()
	windowStart := time.Date(current.Year(), current.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(months - 1), 0)

	start := time.Now()
	rows, err := s.repo.MonthlyAggregates(ctx, schoolID, windowStart)
	if err != nil {
		return nil, false, err
	}
	s.observe("analytics_trends", start)

	buckets := make(map[string]models.MonthlyAggregateRow, len(rows))
	for _, row := range rows {
		buckets[row.Month.UTC().Format("2006-01")] = row
	}

	trends := make([]models.MonthlyTrend, 0, months)
	for i := 0; i < months; i++ {
		month := windowStart.AddDate(0, i, 0).Format("2006-01")
		row := buckets[month]
		trends = append(trends, models.MonthlyTrend{
			Month:          month,
			TotalEnquiries: row.TotalEnquiries,
			Enrolled:       row.Enrolled,
			Rejected:       row.Rejected,
			ConversionRate: safeRate(row.Enrolled, row.TotalEnquiries),
		})
	}
	s.cacheSet(ctx, cacheKey, trends)
	return trends, false, nil
}

// RefreshSession drops cached aggregates touched by a transition in the
// given session and re-primes the session funnel. Used by the background
// refresh queue after writes.
func (s *AnalyticsService) RefreshSession(ctx context.Context, sessionID, schoolID string) error {
	if s.cache == nil || !s.cache.Enabled() {
		return nil
	}
	for _, pattern := range []string{
		"analytics:funnel:" + sessionID,
		"analytics:conversion:" + sessionID,
		"analytics:*:" + schoolID + "*",
	} {
		if err := s.cache.Invalidate(ctx, pattern); err != nil {
			return err
		}
	}

	funnel, err := s.computeFunnel(ctx, sessionID)
	if err != nil {
		return err
	}
	s.cacheSet(ctx, makeAnalyticsCacheKey("funnel", sessionID), funnel)
	return nil
}

// AuthorizeSession verifies the session exists and belongs to the given
// school. An empty schoolID grants unrestricted access, used for
// superadmins and internal callers.
func (s *AnalyticsService) AuthorizeSession(ctx context.Context, sessionID, schoolID string) error {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if schoolID != "" && session.SchoolID != schoolID {
		return appErrors.Clone(appErrors.ErrForbidden, "session belongs to another school")
	}
	return nil
}

// SystemMetrics returns the instrumentation snapshot.
func (s *AnalyticsService) SystemMetrics() models.AnalyticsSystemMetrics {
	if s.metrics == nil {
		return models.AnalyticsSystemMetrics{}
	}
	return s.metrics.Snapshot()
}

func (s *AnalyticsService) computeFunnel(ctx context.Context, sessionID string) ([]models.FunnelStage, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	stages, err := s.registry.GetStages(ctx, session.SchoolID, session.WorkflowType)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	total, err := s.repo.TotalEnquiries(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	reach, err := s.repo.StageReachCounts(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.observe("analytics_funnel", start)

	counts := make(map[string]int, len(reach))
	for _, row := range reach {
		counts[row.StageKey] = row.Count
	}

	funnel := make([]models.FunnelStage, 0, len(stages.Stages))
	for i, stage := range stages.Stages {
		entry := models.FunnelStage{
			StageKey: stage.Key,
			Label:    stage.Label,
			Order:    stage.Order,
			Count:    counts[stage.Key],
		}
		if i == 0 {
			// Every enquiry enters at the first stage.
			entry.Count = total
			if total > 0 {
				entry.Percentage = 100.0
			}
		} else {
			entry.Percentage = safeRate(entry.Count, total)
		}
		funnel = append(funnel, entry)
	}
	return funnel, nil
}

func (s *AnalyticsService) cacheGet(ctx context.Context, key string, dest interface{}) (bool, error) {
	if s.cache == nil {
		return false, nil
	}
	hit, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		return false, fmt.Errorf("get analytics cache: %w", err)
	}
	return hit, nil
}

func (s *AnalyticsService) cacheSet(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, 0); err != nil {
		s.logger.Warn("cache analytics", zap.String("key", key), zap.Error(err))
	}
}

func (s *AnalyticsService) observe(label string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveDBQuery(label, time.Since(start))
	}
}

func makeAnalyticsCacheKey(parts ...string) string {
	var builder strings.Builder
	builder.Grow(len(parts) * 16)
	builder.WriteString("analytics")
	for _, part := range parts {
		if part == "" {
			continue
		}
		builder.WriteByte(':')
		builder.WriteString(strings.ReplaceAll(part, ":", "|"))
	}
	return builder.String()
}

// round2 rounds half-up to two decimal places. Inputs are non-negative.
func round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}

// safeRate returns round2(num/den*100), defined as 0.0 when den is zero.
func safeRate(num, den int) float64 {
	if den == 0 {
		return 0.0
	}
	return round2(float64(num) / float64(den) * 100)
}

func safeRateFloat(num, den float64) float64 {
	if den == 0 {
		return 0.0
	}
	return round2(num / den * 100)
}
