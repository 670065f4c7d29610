package models

import "time"

// FunnelStage is one row of the pipeline funnel. Count is the number of
// distinct enquiries whose history ever reached the stage; the funnel is
// always complete over the registry's stage list, never sparse.
type FunnelStage struct {
	StageKey   string  `json:"stage_key"`
	Label      string  `json:"label"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
	Order      int     `json:"order"`
}

// StageConversion reports progression between one consecutive stage pair.
type StageConversion struct {
	FromStage      string  `json:"from_stage"`
	ToStage        string  `json:"to_stage"`
	FromCount      int     `json:"from_count"`
	ToCount        int     `json:"to_count"`
	ConversionRate float64 `json:"conversion_rate"`
}

// WorkflowSummary aggregates outcomes across all sessions of one workflow
// type for a school. AvgDaysToEnrollment is nil until something enrolls.
type WorkflowSummary struct {
	TotalEnquiries      int      `json:"total_enquiries"`
	Enrolled            int      `json:"enrolled"`
	Rejected            int      `json:"rejected"`
	Pending             int      `json:"pending"`
	ConversionRate      float64  `json:"conversion_rate"`
	AvgDaysToEnrollment *float64 `json:"avg_days_to_enrollment"`
	SessionCount        int      `json:"session_count"`
}

// FeeAnalytics summarises the external fee ledger for a school.
type FeeAnalytics struct {
	TotalFeeAmount float64              `json:"total_fee_amount"`
	TotalCollected float64              `json:"total_collected"`
	CollectionRate float64              `json:"collection_rate"`
	PendingCount   int                  `json:"pending_count"`
	ByStatus       []FeeStatusBreakdown `json:"by_status"`
	TotalRecords   int                  `json:"total_records"`
}

// BypassByUser counts bypass transitions recorded by one actor.
type BypassByUser struct {
	ActorID  string `db:"actor_id" json:"actor_id"`
	Bypasses int    `db:"bypasses" json:"bypasses"`
}

// BypassAnalytics summarises audited stage skips for a school.
type BypassAnalytics struct {
	TotalBypasses            int            `json:"total_bypasses"`
	TotalEnquiriesWithBypass int            `json:"total_enquiries_with_bypass"`
	BypassRate               float64        `json:"bypass_rate"`
	ByUser                   []BypassByUser `json:"by_user"`
}

// SourcePerformance reports enrollment conversion per enquiry source.
type SourcePerformance struct {
	Source         EnquirySource `json:"source"`
	TotalEnquiries int           `json:"total_enquiries"`
	Enrolled       int           `json:"enrolled"`
	ConversionRate float64       `json:"conversion_rate"`
}

// MonthlyTrend buckets enquiries by creation month (YYYY-MM).
type MonthlyTrend struct {
	Month          string  `json:"month"`
	TotalEnquiries int     `json:"total_enquiries"`
	Enrolled       int     `json:"enrolled"`
	Rejected       int     `json:"rejected"`
	ConversionRate float64 `json:"conversion_rate"`
}

// Raw aggregate rows returned by the analytics repository. The service
// layer turns these into the derived shapes above.

// StageReachCount counts distinct enquiries that ever reached a stage.
type StageReachCount struct {
	StageKey string `db:"to_stage_key"`
	Count    int    `db:"reach_count"`
}

// WorkflowAggregateRow is one per-workflow-type aggregate for a school.
type WorkflowAggregateRow struct {
	WorkflowType   WorkflowType `db:"workflow_type"`
	TotalEnquiries int          `db:"total_enquiries"`
	Enrolled       int          `db:"enrolled"`
	Rejected       int          `db:"rejected"`
	SessionCount   int          `db:"session_count"`
	// Sum of (enrolled_at - created_at) in fractional days over enrolled
	// enquiries only.
	TotalEnrollmentDays float64 `db:"total_enrollment_days"`
}

// BypassAggregateRow holds school-wide bypass counts.
type BypassAggregateRow struct {
	TotalBypasses       int `db:"total_bypasses"`
	EnquiriesWithBypass int `db:"enquiries_with_bypass"`
	TotalEnquiries      int `db:"total_enquiries"`
}

// SourceAggregateRow is one per-source aggregate for a school.
type SourceAggregateRow struct {
	Source         EnquirySource `db:"source"`
	TotalEnquiries int           `db:"total_enquiries"`
	Enrolled       int           `db:"enrolled"`
}

// MonthlyAggregateRow is one month bucket read from enquiries.
type MonthlyAggregateRow struct {
	Month          time.Time `db:"month"`
	TotalEnquiries int       `db:"total_enquiries"`
	Enrolled       int       `db:"enrolled"`
	Rejected       int       `db:"rejected"`
}
