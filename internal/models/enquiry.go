package models

import "time"

// EnquirySource records how an admission candidate first reached the school.
type EnquirySource string

const (
	SourceWalkIn     EnquirySource = "WALK_IN"
	SourceReferral   EnquirySource = "REFERRAL"
	SourceWebsite    EnquirySource = "WEBSITE"
	SourcePhone      EnquirySource = "PHONE"
	SourceAdCampaign EnquirySource = "AD_CAMPAIGN"
	SourceOther      EnquirySource = "OTHER"
)

// Valid reports whether the source is a known enum value.
func (s EnquirySource) Valid() bool {
	switch s {
	case SourceWalkIn, SourceReferral, SourceWebsite, SourcePhone, SourceAdCampaign, SourceOther:
		return true
	}
	return false
}

// Enquiry is a single admission candidate moving through the pipeline.
// It is never deleted; it only reaches a terminal stage. Exactly one of
// EnrolledAt/RejectedAt is set once terminal, both nil while active.
type Enquiry struct {
	ID              string        `db:"id" json:"id"`
	SessionID       string        `db:"session_id" json:"session_id"`
	Source          EnquirySource `db:"source" json:"source"`
	CurrentStageKey string        `db:"current_stage_key" json:"current_stage_key"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	EnrolledAt      *time.Time    `db:"enrolled_at" json:"enrolled_at,omitempty"`
	RejectedAt      *time.Time    `db:"rejected_at" json:"rejected_at,omitempty"`
}

// Terminal reports whether the enquiry has reached a terminal outcome.
func (e Enquiry) Terminal() bool {
	return e.EnrolledAt != nil || e.RejectedAt != nil
}

// StageTransition is one append-only history row. CurrentStageKey on the
// owning enquiry always equals the ToStageKey of its most recent row.
type StageTransition struct {
	ID           string    `db:"id" json:"id"`
	EnquiryID    string    `db:"enquiry_id" json:"enquiry_id"`
	FromStageKey *string   `db:"from_stage_key" json:"from_stage_key,omitempty"`
	ToStageKey   string    `db:"to_stage_key" json:"to_stage_key"`
	ActorID      string    `db:"actor_id" json:"actor_id"`
	OccurredAt   time.Time `db:"occurred_at" json:"occurred_at"`
	WasBypass    bool      `db:"was_bypass" json:"was_bypass"`
	BypassReason *string   `db:"bypass_reason" json:"bypass_reason,omitempty"`
}

// EnquiryDetail enriches an enquiry with its full transition history and
// the fee records the external ledger holds against it.
type EnquiryDetail struct {
	Enquiry
	Transitions []StageTransition `json:"transitions"`
	Fees        []FeeRecord       `json:"fees,omitempty"`
}

// EnquiryFilter provides filters for listing enquiries.
type EnquiryFilter struct {
	SessionID string
	StageKey  string
	Source    EnquirySource
	// Outcome filters: "ACTIVE", "ENROLLED", "REJECTED" or empty for all.
	Outcome  string
	Page     int
	PageSize int
}
