package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/scolara-dev/admission-api/internal/models"
)

// ErrStaleEnquiry signals that the optimistic current-stage check failed:
// another transition landed between the caller's read and this write.
var ErrStaleEnquiry = errors.New("enquiry current stage changed")

// EnquiryRepository handles persistence of enquiries and their append-only
// stage transition history.
type EnquiryRepository struct {
	db *sqlx.DB
}

// NewEnquiryRepository constructs the repository.
func NewEnquiryRepository(db *sqlx.DB) *EnquiryRepository {
	return &EnquiryRepository{db: db}
}

// Create inserts the enquiry together with its initial transition
// (from_stage_key NULL) in one transaction.
func (r *EnquiryRepository) Create(ctx context.Context, enquiry *models.Enquiry, actorID string) (*models.StageTransition, error) {
	if enquiry.ID == "" {
		enquiry.ID = uuid.NewString()
	}
	if enquiry.CreatedAt.IsZero() {
		enquiry.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create enquiry: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insertEnquiry = `INSERT INTO enquiries (id, session_id, source, current_stage_key, created_at)
        VALUES (:id, :session_id, :source, :current_stage_key, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertEnquiry, enquiry); err != nil {
		return nil, fmt.Errorf("create enquiry: %w", err)
	}

	transition := &models.StageTransition{
		ID:         uuid.NewString(),
		EnquiryID:  enquiry.ID,
		ToStageKey: enquiry.CurrentStageKey,
		ActorID:    actorID,
		OccurredAt: enquiry.CreatedAt,
	}
	const insertTransition = `INSERT INTO stage_transitions (id, enquiry_id, from_stage_key, to_stage_key, actor_id, occurred_at, was_bypass, bypass_reason)
        VALUES (:id, :enquiry_id, :from_stage_key, :to_stage_key, :actor_id, :occurred_at, :was_bypass, :bypass_reason)`
	if _, err := tx.NamedExecContext(ctx, insertTransition, transition); err != nil {
		return nil, fmt.Errorf("create initial transition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create enquiry: %w", err)
	}
	return transition, nil
}

// AppendTransitionParams carries one transition write. ExpectedStageKey is
// the stage the caller observed; the write fails with ErrStaleEnquiry when
// the enquiry has moved since.
type AppendTransitionParams struct {
	EnquiryID        string
	ExpectedStageKey string
	ToStageKey       string
	ActorID          string
	WasBypass        bool
	BypassReason     *string
	EnrolledAt       *time.Time
	RejectedAt       *time.Time
}

// AppendTransition updates the enquiry's current stage, guarded by the
// expected stage, and appends the matching history row in one transaction.
func (r *EnquiryRepository) AppendTransition(ctx context.Context, params AppendTransitionParams) (*models.StageTransition, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const update = `UPDATE enquiries
        SET current_stage_key = $2,
            enrolled_at = COALESCE($3, enrolled_at),
            rejected_at = COALESCE($4, rejected_at)
        WHERE id = $1 AND current_stage_key = $5 AND enrolled_at IS NULL AND rejected_at IS NULL`
	res, err := tx.ExecContext(ctx, update, params.EnquiryID, params.ToStageKey, params.EnrolledAt, params.RejectedAt, params.ExpectedStageKey)
	if err != nil {
		return nil, fmt.Errorf("update enquiry stage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("transition rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrStaleEnquiry
	}

	from := params.ExpectedStageKey
	transition := &models.StageTransition{
		ID:           uuid.NewString(),
		EnquiryID:    params.EnquiryID,
		FromStageKey: &from,
		ToStageKey:   params.ToStageKey,
		ActorID:      params.ActorID,
		OccurredAt:   time.Now().UTC(),
		WasBypass:    params.WasBypass,
		BypassReason: params.BypassReason,
	}
	const insert = `INSERT INTO stage_transitions (id, enquiry_id, from_stage_key, to_stage_key, actor_id, occurred_at, was_bypass, bypass_reason)
        VALUES (:id, :enquiry_id, :from_stage_key, :to_stage_key, :actor_id, :occurred_at, :was_bypass, :bypass_reason)`
	if _, err := tx.NamedExecContext(ctx, insert, transition); err != nil {
		return nil, fmt.Errorf("append transition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return transition, nil
}

// FindByID returns an enquiry by its ID.
func (r *EnquiryRepository) FindByID(ctx context.Context, id string) (*models.Enquiry, error) {
	const query = `SELECT id, session_id, source, current_stage_key, created_at, enrolled_at, rejected_at
        FROM enquiries WHERE id = $1`
	var enquiry models.Enquiry
	if err := r.db.GetContext(ctx, &enquiry, query, id); err != nil {
		return nil, err
	}
	return &enquiry, nil
}

// ListTransitions returns the ordered history for an enquiry.
func (r *EnquiryRepository) ListTransitions(ctx context.Context, enquiryID string) ([]models.StageTransition, error) {
	const query = `SELECT id, enquiry_id, from_stage_key, to_stage_key, actor_id, occurred_at, was_bypass, bypass_reason
        FROM stage_transitions WHERE enquiry_id = $1 ORDER BY occurred_at ASC, id ASC`
	var transitions []models.StageTransition
	if err := r.db.SelectContext(ctx, &transitions, query, enquiryID); err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	return transitions, nil
}

// List returns enquiries filtered by the provided criteria.
func (r *EnquiryRepository) List(ctx context.Context, filter models.EnquiryFilter) ([]models.Enquiry, int, error) {
	base := "FROM enquiries"
	var conditions []string
	var args []interface{}

	if filter.SessionID != "" {
		conditions = append(conditions, fmt.Sprintf("session_id = $%d", len(args)+1))
		args = append(args, filter.SessionID)
	}
	if filter.StageKey != "" {
		conditions = append(conditions, fmt.Sprintf("current_stage_key = $%d", len(args)+1))
		args = append(args, filter.StageKey)
	}
	if filter.Source != "" {
		conditions = append(conditions, fmt.Sprintf("source = $%d", len(args)+1))
		args = append(args, filter.Source)
	}
	switch filter.Outcome {
	case "ACTIVE":
		conditions = append(conditions, "enrolled_at IS NULL AND rejected_at IS NULL")
	case "ENROLLED":
		conditions = append(conditions, "enrolled_at IS NOT NULL")
	case "REJECTED":
		conditions = append(conditions, "rejected_at IS NOT NULL")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, session_id, source, current_stage_key, created_at, enrolled_at, rejected_at
        %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var enquiries []models.Enquiry
	if err := r.db.SelectContext(ctx, &enquiries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enquiries: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enquiries: %w", err)
	}
	return enquiries, total, nil
}
