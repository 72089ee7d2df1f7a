package operation

import "time"

// mockTimeProvider helps control time in tests.
type mockTimeProvider struct {
	currentTime time.Time
}

func (m *mockTimeProvider) Now() time.Time { return m.currentTime }

func (m *mockTimeProvider) Advance(d time.Duration) { m.currentTime = m.currentTime.Add(d) }

func backupStages() []StageDefinition {
	return []StageDefinition{
		{ID: "init", Label: "Initialize", Order: 0},
		{ID: "resources", Label: "Sync Resources", Order: 1, Floor: 25, Profiles: []string{"development"}},
		{ID: "database", Label: "Database Backup", Order: 2, Floor: 50},
		{ID: "dev", Label: "DEV Environment", Order: 3, Floor: 75,
			SkipWhen: map[string]string{ParamCreateDevEnvironment: "false"}},
		{ID: "complete", Label: "Complete", Order: 4, Terminal: true},
	}
}
