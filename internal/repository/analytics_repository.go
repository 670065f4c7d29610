package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/scolara-dev/admission-api/internal/models"
)

// AnalyticsRepository exposes read-only aggregation queries over enquiries,
// stage transitions and sessions. It never mutates data.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository instantiates the repository.
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// StageReachCounts counts, per stage, the distinct enquiries of a session
// whose history contains at least one transition into that stage. Bypassed
// stages are absent because no transition row ever targeted them.
func (r *AnalyticsRepository) StageReachCounts(ctx context.Context, sessionID string) ([]models.StageReachCount, error) {
	const query = `SELECT t.to_stage_key, COUNT(DISTINCT t.enquiry_id) AS reach_count
        FROM stage_transitions t
        JOIN enquiries e ON e.id = t.enquiry_id
        WHERE e.session_id = $1
        GROUP BY t.to_stage_key`
	var counts []models.StageReachCount
	if err := r.db.SelectContext(ctx, &counts, query, sessionID); err != nil {
		return nil, fmt.Errorf("query stage reach counts: %w", err)
	}
	return counts, nil
}

// TotalEnquiries counts all enquiries in a session.
func (r *AnalyticsRepository) TotalEnquiries(ctx context.Context, sessionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enquiries WHERE session_id = $1`
	var total int
	if err := r.db.GetContext(ctx, &total, query, sessionID); err != nil {
		return 0, fmt.Errorf("count session enquiries: %w", err)
	}
	return total, nil
}

// WorkflowAggregates returns per-workflow-type outcome aggregates across
// all sessions of a school. Sessions without enquiries still contribute to
// session_count through the left join.
func (r *AnalyticsRepository) WorkflowAggregates(ctx context.Context, schoolID string) ([]models.WorkflowAggregateRow, error) {
	const query = `SELECT s.workflow_type,
        COUNT(e.id) AS total_enquiries,
        COALESCE(SUM(CASE WHEN e.enrolled_at IS NOT NULL THEN 1 ELSE 0 END), 0) AS enrolled,
        COALESCE(SUM(CASE WHEN e.rejected_at IS NOT NULL THEN 1 ELSE 0 END), 0) AS rejected,
        COUNT(DISTINCT s.id) AS session_count,
        COALESCE(SUM(CASE WHEN e.enrolled_at IS NOT NULL
            THEN EXTRACT(EPOCH FROM (e.enrolled_at - e.created_at)) / 86400.0
            ELSE 0 END), 0) AS total_enrollment_days
        FROM admission_sessions s
        LEFT JOIN enquiries e ON e.session_id = s.id
        WHERE s.school_id = $1
        GROUP BY s.workflow_type`
	var rows []models.WorkflowAggregateRow
	if err := r.db.SelectContext(ctx, &rows, query, schoolID); err != nil {
		return nil, fmt.Errorf("query workflow aggregates: %w", err)
	}
	return rows, nil
}

// BypassAggregates returns school-wide bypass counts.
func (r *AnalyticsRepository) BypassAggregates(ctx context.Context, schoolID string) (*models.BypassAggregateRow, error) {
	const query = `SELECT
        COALESCE(SUM(CASE WHEN t.was_bypass THEN 1 ELSE 0 END), 0) AS total_bypasses,
        COUNT(DISTINCT CASE WHEN t.was_bypass THEN t.enquiry_id END) AS enquiries_with_bypass,
        COUNT(DISTINCT e.id) AS total_enquiries
        FROM enquiries e
        JOIN admission_sessions s ON s.id = e.session_id
        LEFT JOIN stage_transitions t ON t.enquiry_id = e.id
        WHERE s.school_id = $1`
	var row models.BypassAggregateRow
	if err := r.db.GetContext(ctx, &row, query, schoolID); err != nil {
		return nil, fmt.Errorf("query bypass aggregates: %w", err)
	}
	return &row, nil
}

// BypassByUser counts bypass transitions per actor for a school.
func (r *AnalyticsRepository) BypassByUser(ctx context.Context, schoolID string) ([]models.BypassByUser, error) {
	const query = `SELECT t.actor_id, COUNT(*) AS bypasses
        FROM stage_transitions t
        JOIN enquiries e ON e.id = t.enquiry_id
        JOIN admission_sessions s ON s.id = e.session_id
        WHERE s.school_id = $1 AND t.was_bypass
        GROUP BY t.actor_id
        ORDER BY bypasses DESC`
	var rows []models.BypassByUser
	if err := r.db.SelectContext(ctx, &rows, query, schoolID); err != nil {
		return nil, fmt.Errorf("query bypass by user: %w", err)
	}
	return rows, nil
}

// SourceAggregates groups enquiries by source for a school.
func (r *AnalyticsRepository) SourceAggregates(ctx context.Context, schoolID string) ([]models.SourceAggregateRow, error) {
	const query = `SELECT e.source,
        COUNT(*) AS total_enquiries,
        COALESCE(SUM(CASE WHEN e.enrolled_at IS NOT NULL THEN 1 ELSE 0 END), 0) AS enrolled
        FROM enquiries e
        JOIN admission_sessions s ON s.id = e.session_id
        WHERE s.school_id = $1
        GROUP BY e.source`
	var rows []models.SourceAggregateRow
	if err := r.db.SelectContext(ctx, &rows, query, schoolID); err != nil {
		return nil, fmt.Errorf("query source aggregates: %w", err)
	}
	return rows, nil
}

// MonthlyAggregates buckets a school's enquiries by creation month, starting
// at the provided lower bound.
func (r *AnalyticsRepository) MonthlyAggregates(ctx context.Context, schoolID string, from time.Time) ([]models.MonthlyAggregateRow, error) {
	const query = `SELECT DATE_TRUNC('month', e.created_at) AS month,
        COUNT(*) AS total_enquiries,
        COALESCE(SUM(CASE WHEN e.enrolled_at IS NOT NULL THEN 1 ELSE 0 END), 0) AS enrolled,
        COALESCE(SUM(CASE WHEN e.rejected_at IS NOT NULL THEN 1 ELSE 0 END), 0) AS rejected
        FROM enquiries e
        JOIN admission_sessions s ON s.id = e.session_id
        WHERE s.school_id = $1 AND e.created_at >= $2
        GROUP BY DATE_TRUNC('month', e.created_at)
        ORDER BY month ASC`
	var rows []models.MonthlyAggregateRow
	if err := r.db.SelectContext(ctx, &rows, query, schoolID, from); err != nil {
		return nil, fmt.Errorf("query monthly aggregates: %w", err)
	}
	return rows, nil
}
