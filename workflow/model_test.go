package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/hubflow/types"
)

func TestDefinitionValidate(t *testing.T) {
	tests := []struct {
		name     string
		def      *Definition
		wantCode types.ErrorCode
	}{
		{
			name: "valid",
			def: &Definition{
				Name: "ok",
				Steps: []StepDef{
					{ID: "a", Action: "noop"},
					{ID: "b", Action: "noop", DependsOn: []string{"a"}},
				},
			},
		},
		{
			name:     "empty name",
			def:      &Definition{Steps: []StepDef{{ID: "a", Action: "noop"}}},
			wantCode: types.ErrInvalidDefinition,
		},
		{
			name:     "no steps",
			def:      &Definition{Name: "empty"},
			wantCode: types.ErrInvalidDefinition,
		},
		{
			name: "empty step id",
			def: &Definition{
				Name:  "bad",
				Steps: []StepDef{{Action: "noop"}},
			},
			wantCode: types.ErrInvalidDefinition,
		},
		{
			name: "duplicate step id",
			def: &Definition{
				Name: "bad",
				Steps: []StepDef{
					{ID: "a", Action: "noop"},
					{ID: "a", Action: "noop"},
				},
			},
			wantCode: types.ErrInvalidDefinition,
		},
		{
			name: "missing action",
			def: &Definition{
				Name:  "bad",
				Steps: []StepDef{{ID: "a"}},
			},
			wantCode: types.ErrInvalidDefinition,
		},
		{
			name: "undeclared dependency",
			def: &Definition{
				Name:  "bad",
				Steps: []StepDef{{ID: "a", Action: "noop", DependsOn: []string{"ghost"}}},
			},
			wantCode: types.ErrInvalidDefinition,
		},
		{
			name: "self dependency",
			def: &Definition{
				Name:  "bad",
				Steps: []StepDef{{ID: "a", Action: "noop", DependsOn: []string{"a"}}},
			},
			wantCode: types.ErrCyclicWorkflow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, types.GetErrorCode(err))
		})
	}
}

func TestActionRegistry(t *testing.T) {
	reg := NewActionRegistry()
	noop := ActionFunc(func(_ context.Context, _ map[string]any) (map[string]any, error) {
		return nil, nil
	})

	require.NoError(t, reg.Register("noop", noop))
	require.NoError(t, reg.Register("other", noop))

	err := reg.Register("noop", noop)
	require.Error(t, err)
	assert.Equal(t, types.ErrDuplicateName, types.GetErrorCode(err))

	_, ok := reg.Get("noop")
	assert.True(t, ok)
	_, ok = reg.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"noop", "other"}, reg.Names())
}
