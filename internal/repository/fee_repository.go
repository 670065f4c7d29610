package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/scolara-dev/admission-api/internal/models"
)

// FeeRepository is a read-only adapter over the externally-owned fee
// ledger. Records are joined to schools through admission sessions; this
// service never inserts or updates fee_records.
type FeeRepository struct {
	db *sqlx.DB
}

// NewFeeRepository constructs the adapter.
func NewFeeRepository(db *sqlx.DB) *FeeRepository {
	return &FeeRepository{db: db}
}

// TotalsForSchool returns school-wide fee sums.
func (r *FeeRepository) TotalsForSchool(ctx context.Context, schoolID string) (*models.FeeTotals, error) {
	const query = `SELECT
        COALESCE(SUM(f.amount_due), 0) AS total_amount,
        COALESCE(SUM(f.amount_paid), 0) AS total_collected,
        COALESCE(SUM(CASE WHEN f.status = 'PENDING' THEN 1 ELSE 0 END), 0) AS pending_count,
        COUNT(f.enquiry_id) AS total_records
        FROM fee_records f
        JOIN enquiries e ON e.id = f.enquiry_id
        JOIN admission_sessions s ON s.id = e.session_id
        WHERE s.school_id = $1`
	var totals models.FeeTotals
	if err := r.db.GetContext(ctx, &totals, query, schoolID); err != nil {
		return nil, fmt.Errorf("query fee totals: %w", err)
	}
	return &totals, nil
}

// BreakdownForSchool returns per-status fee aggregates.
func (r *FeeRepository) BreakdownForSchool(ctx context.Context, schoolID string) ([]models.FeeStatusBreakdown, error) {
	const query = `SELECT f.status,
        COUNT(*) AS count,
        COALESCE(SUM(f.amount_due), 0) AS amount_due,
        COALESCE(SUM(f.amount_paid), 0) AS amount_paid
        FROM fee_records f
        JOIN enquiries e ON e.id = f.enquiry_id
        JOIN admission_sessions s ON s.id = e.session_id
        WHERE s.school_id = $1
        GROUP BY f.status
        ORDER BY f.status`
	var breakdown []models.FeeStatusBreakdown
	if err := r.db.SelectContext(ctx, &breakdown, query, schoolID); err != nil {
		return nil, fmt.Errorf("query fee breakdown: %w", err)
	}
	return breakdown, nil
}

// ListByEnquiry returns the raw fee records attached to one enquiry.
func (r *FeeRepository) ListByEnquiry(ctx context.Context, enquiryID string) ([]models.FeeRecord, error) {
	const query = `SELECT enquiry_id, amount_due, amount_paid, status FROM fee_records WHERE enquiry_id = $1`
	var records []models.FeeRecord
	if err := r.db.SelectContext(ctx, &records, query, enquiryID); err != nil {
		return nil, fmt.Errorf("list fee records: %w", err)
	}
	return records, nil
}
