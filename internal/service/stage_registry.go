package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/scolara-dev/admission-api/internal/models"
	appErrors "github.com/scolara-dev/admission-api/pkg/errors"
)

type stageOverrideReader interface {
	ListForSchool(ctx context.Context, schoolID string, workflowType models.WorkflowType) ([]models.StageDefinition, error)
}

// Built-in stage lists per workflow shape. A school without overrides in
// stage_definitions runs on these.
var builtinStages = map[models.WorkflowType][]models.StageDefinition{
	models.WorkflowSimple: {
		{Key: "NEW", Label: "New Enquiry", Order: 0},
		{Key: "FORM_SUBMITTED", Label: "Form Submitted", Order: 1},
		{Key: "ENROLLED", Label: "Enrolled", Order: 2, IsTerminal: true},
	},
	models.WorkflowStandard: {
		{Key: "NEW", Label: "New Enquiry", Order: 0},
		{Key: "CONTACTED", Label: "Contacted", Order: 1},
		{Key: "FORM_SUBMITTED", Label: "Form Submitted", Order: 2},
		{Key: "APPROVED", Label: "Approved", Order: 3},
		{Key: "ENROLLED", Label: "Enrolled", Order: 4, IsTerminal: true},
	},
	models.WorkflowComplex: {
		{Key: "NEW", Label: "New Enquiry", Order: 0},
		{Key: "CONTACTED", Label: "Contacted", Order: 1},
		{Key: "FORM_SUBMITTED", Label: "Form Submitted", Order: 2},
		{Key: "TEST_SCHEDULED", Label: "Test Scheduled", Order: 3},
		{Key: "TEST_COMPLETED", Label: "Test Completed", Order: 4},
		{Key: "INTERVIEW", Label: "Interview", Order: 5},
		{Key: "APPROVED", Label: "Approved", Order: 6},
		{Key: "ENROLLED", Label: "Enrolled", Order: 7, IsTerminal: true},
	},
}

// StageRegistry is the single source of truth for which stages exist, in
// what order, per school and workflow type. Resolved lists are immutable
// and cached; the registry is safe for concurrent reads.
type StageRegistry struct {
	overrides stageOverrideReader
	logger    *zap.Logger

	mu    sync.RWMutex
	cache map[string]models.StageList
}

// NewStageRegistry constructs a registry. overrides may be nil, in which
// case only the built-in stage lists are served.
func NewStageRegistry(overrides stageOverrideReader, logger *zap.Logger) *StageRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StageRegistry{
		overrides: overrides,
		logger:    logger,
		cache:     make(map[string]models.StageList),
	}
}

// GetStages returns the ordered stage list for a school and workflow type.
// Malformed definitions fail with a configuration error.
func (r *StageRegistry) GetStages(ctx context.Context, schoolID string, workflowType models.WorkflowType) (models.StageList, error) {
	if !workflowType.Valid() {
		return models.StageList{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown workflow type: %s", workflowType))
	}

	key := schoolID + "|" + string(workflowType)
	r.mu.RLock()
	if list, ok := r.cache[key]; ok {
		r.mu.RUnlock()
		return list, nil
	}
	r.mu.RUnlock()

	stages, err := r.resolve(ctx, schoolID, workflowType)
	if err != nil {
		return models.StageList{}, err
	}
	if err := validateStages(workflowType, stages); err != nil {
		return models.StageList{}, err
	}

	list := models.StageList{WorkflowType: workflowType, Stages: stages}
	r.mu.Lock()
	r.cache[key] = list
	r.mu.Unlock()
	return list, nil
}

// IsLegalTransition reports whether from->to is a legal non-bypass move:
// either the single next forward step, or a rejection from a non-terminal
// stage. Bypass legality is the bypass authority's concern, not the
// registry's.
func (r *StageRegistry) IsLegalTransition(ctx context.Context, schoolID string, workflowType models.WorkflowType, fromKey, toKey string) (bool, error) {
	list, err := r.GetStages(ctx, schoolID, workflowType)
	if err != nil {
		return false, err
	}

	from, ok := list.Find(fromKey)
	if !ok {
		return false, nil
	}
	if from.IsTerminal {
		return false, nil
	}
	if toKey == models.StageRejectedKey {
		return true, nil
	}
	to, ok := list.Find(toKey)
	if !ok {
		return false, nil
	}
	return to.Order == from.Order+1, nil
}

// Invalidate drops any cached stage list for the school, forcing a reload
// of overrides on the next lookup.
func (r *StageRegistry) Invalidate(schoolID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, wt := range []models.WorkflowType{models.WorkflowSimple, models.WorkflowStandard, models.WorkflowComplex} {
		delete(r.cache, schoolID+"|"+string(wt))
	}
}

func (r *StageRegistry) resolve(ctx context.Context, schoolID string, workflowType models.WorkflowType) ([]models.StageDefinition, error) {
	if r.overrides != nil {
		custom, err := r.overrides.ListForSchool(ctx, schoolID, workflowType)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stage definitions")
		}
		if len(custom) > 0 {
			return custom, nil
		}
	}

	builtin := builtinStages[workflowType]
	stages := make([]models.StageDefinition, len(builtin))
	copy(stages, builtin)
	return stages, nil
}

func validateStages(workflowType models.WorkflowType, stages []models.StageDefinition) error {
	if len(stages) == 0 {
		return appErrors.Clone(appErrors.ErrConfiguration, fmt.Sprintf("no stages defined for workflow %s", workflowType))
	}
	seen := make(map[string]struct{}, len(stages))
	for i, stage := range stages {
		if stage.Key == "" {
			return appErrors.Clone(appErrors.ErrConfiguration, fmt.Sprintf("workflow %s: stage at order %d has empty key", workflowType, i))
		}
		if stage.Key == models.StageRejectedKey {
			return appErrors.Clone(appErrors.ErrConfiguration, fmt.Sprintf("workflow %s: %s is a reserved pseudo-stage", workflowType, models.StageRejectedKey))
		}
		if _, dup := seen[stage.Key]; dup {
			return appErrors.Clone(appErrors.ErrConfiguration, fmt.Sprintf("workflow %s: duplicate stage key %s", workflowType, stage.Key))
		}
		seen[stage.Key] = struct{}{}
		if stage.Order != i {
			return appErrors.Clone(appErrors.ErrConfiguration, fmt.Sprintf("workflow %s: stage orders must be contiguous from 0, got %d at position %d", workflowType, stage.Order, i))
		}
		last := i == len(stages)-1
		if last && !stage.IsTerminal {
			return appErrors.Clone(appErrors.ErrConfiguration, fmt.Sprintf("workflow %s: final stage %s must be terminal", workflowType, stage.Key))
		}
		if !last && stage.IsTerminal {
			return appErrors.Clone(appErrors.ErrConfiguration, fmt.Sprintf("workflow %s: terminal stage %s must be last", workflowType, stage.Key))
		}
	}
	return nil
}
