package operation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfile_Resolve(t *testing.T) {
	base := Profile{Kind: KindSQLBackup, Stages: backupStages()}

	tests := []struct {
		name       string
		deployment string
		params     map[string]string
		wantHidden []string
	}{
		{
			name:       "production hides resources",
			deployment: "production",
			wantHidden: []string{"resources"},
		},
		{
			name:       "development shows resources",
			deployment: "Development",
		},
		{
			name:       "dev environment skipped",
			deployment: "development",
			params:     map[string]string{ParamCreateDevEnvironment: "FALSE"},
			wantHidden: []string{"dev"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base.Resolve(tt.deployment, tt.params)
			var hidden []string
			for _, st := range p.Stages {
				if st.Hidden {
					hidden = append(hidden, st.ID)
				}
			}
			assert.Equal(t, tt.wantHidden, hidden)
		})
	}

	for _, st := range base.Stages {
		assert.False(t, st.Hidden, "resolve must not mutate the base profile")
	}
}

func TestProfile_ResolveOrdersStages(t *testing.T) {
	p := Profile{Kind: KindGitPush, Stages: []StageDefinition{
		{ID: "b", Order: 2},
		{ID: "a", Order: 1},
	}}.Resolve("", nil)
	assert.Equal(t, "a", p.Stages[0].ID)
	assert.Equal(t, "b", p.Stages[1].ID)
}

func TestProfile_Validate(t *testing.T) {
	policy := PollPolicy{Interval: 2 * time.Second, MaxPolls: 450, ErrorStreakThreshold: DefaultErrorStreakThreshold}
	assert.Equal(t, 15*time.Minute, policy.Budget())

	valid := Profile{Kind: KindSQLBackup, Polling: policy, Stages: backupStages()}
	require.NoError(t, valid.Validate())

	dup := valid
	dup.Stages = append(backupStages(), StageDefinition{ID: "init"})
	assert.Error(t, dup.Validate())

	noPolls := valid
	noPolls.Polling.MaxPolls = 0
	assert.Error(t, noPolls.Validate())

	badKind := valid
	badKind.Kind = "nope"
	assert.ErrorIs(t, badKind.Validate(), ErrUnknownKind)
}
