package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/scolara-dev/admission-api/internal/models"
)

// StageRepository reads per-school stage definition overrides. Schools
// without overrides fall back to the built-in stage lists.
type StageRepository struct {
	db *sqlx.DB
}

// NewStageRepository constructs the repository.
func NewStageRepository(db *sqlx.DB) *StageRepository {
	return &StageRepository{db: db}
}

// ListForSchool returns the custom stage definitions for a school and
// workflow type ordered by stage_order. An empty slice means no override.
func (r *StageRepository) ListForSchool(ctx context.Context, schoolID string, workflowType models.WorkflowType) ([]models.StageDefinition, error) {
	const query = `SELECT key, label, stage_order, is_terminal
        FROM stage_definitions
        WHERE school_id = $1 AND workflow_type = $2
        ORDER BY stage_order ASC`
	var stages []models.StageDefinition
	if err := r.db.SelectContext(ctx, &stages, query, schoolID, workflowType); err != nil {
		return nil, fmt.Errorf("list stage definitions: %w", err)
	}
	return stages, nil
}
