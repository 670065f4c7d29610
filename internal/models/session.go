package models

import "time"

// AdmissionSession represents one admission cycle for a school.
type AdmissionSession struct {
	ID           string       `db:"id" json:"id"`
	SchoolID     string       `db:"school_id" json:"school_id"`
	WorkflowType WorkflowType `db:"workflow_type" json:"workflow_type"`
	Name         string       `db:"name" json:"name"`
	StartDate    time.Time    `db:"start_date" json:"start_date"`
	EndDate      *time.Time   `db:"end_date" json:"end_date,omitempty"`
	IsActive     bool         `db:"is_active" json:"is_active"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
}

// SessionFilter captures filtering criteria for listing admission sessions.
type SessionFilter struct {
	SchoolID     string
	WorkflowType WorkflowType
	Active       *bool
	Page         int
	PageSize     int
}
