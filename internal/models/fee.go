package models

// FeeStatus mirrors the payment states of the external fee ledger.
type FeeStatus string

const (
	FeeStatusPending   FeeStatus = "PENDING"
	FeeStatusPartial   FeeStatus = "PARTIAL"
	FeeStatusCompleted FeeStatus = "COMPLETED"
)

// FeeRecord is a read-only view over an externally-owned fee payment row.
// This service never writes fee_records.
type FeeRecord struct {
	EnquiryID  string    `db:"enquiry_id" json:"enquiry_id"`
	AmountDue  float64   `db:"amount_due" json:"amount_due"`
	AmountPaid float64   `db:"amount_paid" json:"amount_paid"`
	Status     FeeStatus `db:"status" json:"status"`
}

// FeeStatusBreakdown aggregates fee records per status.
type FeeStatusBreakdown struct {
	Status     FeeStatus `db:"status" json:"status"`
	Count      int       `db:"count" json:"count"`
	AmountDue  float64   `db:"amount_due" json:"amount_due"`
	AmountPaid float64   `db:"amount_paid" json:"amount_paid"`
}

// FeeTotals is the raw school-wide aggregate read from the ledger.
type FeeTotals struct {
	TotalAmount    float64 `db:"total_amount"`
	TotalCollected float64 `db:"total_collected"`
	PendingCount   int     `db:"pending_count"`
	TotalRecords   int     `db:"total_records"`
}
