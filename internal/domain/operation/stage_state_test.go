package operation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageState_ValidateTransition_Valid(t *testing.T) {
	tests := []struct {
		name    string
		current StageState
		target  StageState
	}{
		{name: "Pending to Active is valid", current: StagePending, target: StageActive},
		{name: "Pending to Completed is valid", current: StagePending, target: StageCompleted},
		{name: "Pending to Error is valid", current: StagePending, target: StageError},
		{name: "Pending to Cancelled is valid", current: StagePending, target: StageCancelled},
		{name: "Active to Completed is valid", current: StageActive, target: StageCompleted},
		{name: "Active to Error is valid", current: StageActive, target: StageError},
		{name: "Active to Cancelled is valid", current: StageActive, target: StageCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, tt.current.ValidateTransition(tt.target),
				"expected valid transition from %s to %s", tt.current, tt.target)
		})
	}
}

func TestStageState_ValidateTransition_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		current StageState
		target  StageState
		wantErr error
	}{
		{name: "Active to Pending is invalid", current: StageActive, target: StagePending, wantErr: ErrInvalidStageTransition},
		{name: "Active to Active is invalid", current: StageActive, target: StageActive, wantErr: ErrInvalidStageTransition},
		{name: "Pending to Pending is invalid", current: StagePending, target: StagePending, wantErr: ErrInvalidStageTransition},
		{name: "Completed is terminal", current: StageCompleted, target: StageActive, wantErr: ErrStageTerminal},
		{name: "Error is terminal", current: StageError, target: StageCompleted, wantErr: ErrStageTerminal},
		{name: "Cancelled is terminal", current: StageCancelled, target: StageError, wantErr: ErrStageTerminal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.current.ValidateTransition(tt.target)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseStageState(t *testing.T) {
	assert.Equal(t, StageActive, ParseStageState("ACTIVE"))
	assert.Equal(t, StageCancelled, ParseStageState("cancelled"))
	assert.Equal(t, StageState(""), ParseStageState("bogus"))
}
