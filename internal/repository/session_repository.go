package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/scolara-dev/admission-api/internal/models"
)

// SessionRepository handles persistence of admission sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create persists a new admission session.
func (r *SessionRepository) Create(ctx context.Context, session *models.AdmissionSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO admission_sessions (id, school_id, workflow_type, name, start_date, end_date, is_active, created_at)
        VALUES (:id, :school_id, :workflow_type, :name, :start_date, :end_date, :is_active, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create admission session: %w", err)
	}
	return nil
}

// FindByID returns a session by its ID.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.AdmissionSession, error) {
	const query = `SELECT id, school_id, workflow_type, name, start_date, end_date, is_active, created_at
        FROM admission_sessions WHERE id = $1`
	var session models.AdmissionSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// List returns sessions filtered by the provided criteria.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.AdmissionSession, int, error) {
	base := "FROM admission_sessions"
	var conditions []string
	var args []interface{}

	if filter.SchoolID != "" {
		conditions = append(conditions, fmt.Sprintf("school_id = $%d", len(args)+1))
		args = append(args, filter.SchoolID)
	}
	if filter.WorkflowType != "" {
		conditions = append(conditions, fmt.Sprintf("workflow_type = $%d", len(args)+1))
		args = append(args, filter.WorkflowType)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)+1))
		args = append(args, *filter.Active)
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

	query := fmt.Sprintf(`SELECT id, school_id, workflow_type, name, start_date, end_date, is_active, created_at
        %s ORDER BY start_date DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var sessions []models.AdmissionSession
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list admission sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count admission sessions: %w", err)
	}
	return sessions, total, nil
}

// Close deactivates a session. Closed sessions accept no new enquiries but
// remain readable for analytics.
func (r *SessionRepository) Close(ctx context.Context, id string, endDate time.Time) error {
	const query = `UPDATE admission_sessions SET is_active = FALSE, end_date = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, endDate); err != nil {
		return fmt.Errorf("close admission session: %w", err)
	}
	return nil
}
