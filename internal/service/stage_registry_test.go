package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scolara-dev/admission-api/internal/models"
	appErrors "github.com/scolara-dev/admission-api/pkg/errors"
)

type mockStageOverrides struct {
	stages map[string][]models.StageDefinition
	err    error
	calls  int
}

func (m *mockStageOverrides) ListForSchool(ctx context.Context, schoolID string, workflowType models.WorkflowType) ([]models.StageDefinition, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.stages[schoolID+"|"+string(workflowType)], nil
}

func TestStageRegistryBuiltins(t *testing.T) {
	registry := NewStageRegistry(nil, zap.NewNop())

	simple, err := registry.GetStages(context.Background(), "school-1", models.WorkflowSimple)
	require.NoError(t, err)
	assert.Len(t, simple.Stages, 3)
	assert.Equal(t, "NEW", simple.Initial().Key)
	assert.Equal(t, "ENROLLED", simple.Terminal().Key)
	assert.True(t, simple.Terminal().IsTerminal)

	standard, err := registry.GetStages(context.Background(), "school-1", models.WorkflowStandard)
	require.NoError(t, err)
	assert.Len(t, standard.Stages, 5)

	complexList, err := registry.GetStages(context.Background(), "school-1", models.WorkflowComplex)
	require.NoError(t, err)
	assert.Len(t, complexList.Stages, 8)
}

func TestStageRegistryUnknownWorkflowType(t *testing.T) {
	registry := NewStageRegistry(nil, zap.NewNop())

	_, err := registry.GetStages(context.Background(), "school-1", models.WorkflowType("BESPOKE"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStageRegistryOverrides(t *testing.T) {
	overrides := &mockStageOverrides{stages: map[string][]models.StageDefinition{
		"school-1|SIMPLE": {
			{Key: "NEW", Label: "New", Order: 0},
			{Key: "DONE", Label: "Done", Order: 1, IsTerminal: true},
		},
	}}
	registry := NewStageRegistry(overrides, zap.NewNop())

	list, err := registry.GetStages(context.Background(), "school-1", models.WorkflowSimple)
	require.NoError(t, err)
	require.Len(t, list.Stages, 2)
	assert.Equal(t, "DONE", list.Terminal().Key)

	// Another school without overrides falls back to the builtin list.
	fallback, err := registry.GetStages(context.Background(), "school-2", models.WorkflowSimple)
	require.NoError(t, err)
	assert.Len(t, fallback.Stages, 3)
}

func TestStageRegistryCachesResolvedLists(t *testing.T) {
	overrides := &mockStageOverrides{}
	registry := NewStageRegistry(overrides, zap.NewNop())

	_, err := registry.GetStages(context.Background(), "school-1", models.WorkflowStandard)
	require.NoError(t, err)
	_, err = registry.GetStages(context.Background(), "school-1", models.WorkflowStandard)
	require.NoError(t, err)
	assert.Equal(t, 1, overrides.calls)

	registry.Invalidate("school-1")
	_, err = registry.GetStages(context.Background(), "school-1", models.WorkflowStandard)
	require.NoError(t, err)
	assert.Equal(t, 2, overrides.calls)
}

func TestStageRegistryRejectsMalformedOverrides(t *testing.T) {
	cases := []struct {
		name   string
		stages []models.StageDefinition
	}{
		{
			"reserved rejected key",
			[]models.StageDefinition{
				{Key: "NEW", Order: 0},
				{Key: models.StageRejectedKey, Order: 1, IsTerminal: true},
			},
		},
		{
			"duplicate keys",
			[]models.StageDefinition{
				{Key: "NEW", Order: 0},
				{Key: "NEW", Order: 1, IsTerminal: true},
			},
		},
		{
			"gapped orders",
			[]models.StageDefinition{
				{Key: "NEW", Order: 0},
				{Key: "DONE", Order: 2, IsTerminal: true},
			},
		},
		{
			"final stage not terminal",
			[]models.StageDefinition{
				{Key: "NEW", Order: 0},
				{Key: "DONE", Order: 1},
			},
		},
		{
			"terminal stage in the middle",
			[]models.StageDefinition{
				{Key: "NEW", Order: 0, IsTerminal: true},
				{Key: "DONE", Order: 1, IsTerminal: true},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			overrides := &mockStageOverrides{stages: map[string][]models.StageDefinition{
				"school-1|SIMPLE": tc.stages,
			}}
			registry := NewStageRegistry(overrides, zap.NewNop())

			_, err := registry.GetStages(context.Background(), "school-1", models.WorkflowSimple)
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrConfiguration.Code, appErrors.FromError(err).Code)
		})
	}
}

func TestStageRegistryIsLegalTransition(t *testing.T) {
	registry := NewStageRegistry(nil, zap.NewNop())
	ctx := context.Background()

	legal, err := registry.IsLegalTransition(ctx, "school-1", models.WorkflowStandard, "NEW", "CONTACTED")
	require.NoError(t, err)
	assert.True(t, legal)

	legal, err = registry.IsLegalTransition(ctx, "school-1", models.WorkflowStandard, "NEW", "FORM_SUBMITTED")
	require.NoError(t, err)
	assert.False(t, legal)

	legal, err = registry.IsLegalTransition(ctx, "school-1", models.WorkflowStandard, "CONTACTED", "NEW")
	require.NoError(t, err)
	assert.False(t, legal)

	legal, err = registry.IsLegalTransition(ctx, "school-1", models.WorkflowStandard, "FORM_SUBMITTED", models.StageRejectedKey)
	require.NoError(t, err)
	assert.True(t, legal)

	legal, err = registry.IsLegalTransition(ctx, "school-1", models.WorkflowStandard, "ENROLLED", models.StageRejectedKey)
	require.NoError(t, err)
	assert.False(t, legal)
}
