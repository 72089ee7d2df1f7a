package config

import (
	"time"

	"github.com/ahrav/adminops/internal/domain/operation"
)

const (
	defaultPollInterval = 2 * time.Second
	// Git and simple jobs report through structured status only.
	simpleMaxPolls = 450
	// Batch script driven SQL jobs are slower and chattier.
	batchMaxPolls = 900
)

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Deployment: "production",
		Backend: BackendConfig{
			BaseURL:         "http://localhost:8080/api/admin",
			Timeout:         30 * time.Second,
			StatusRateLimit: 5,
			StatusBurst:     1,
		},
		Orchestration: OrchestrationConfig{
			ETAAlmostDone: 10 * time.Second,
			StallPolls:    60,
			HistorySize:   50,
			CancelTimeout: 30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "adminops",
			SampleRatio: 1,
		},
		Log: LogConfig{Level: "info"},
	}
}

func polling(maxPolls int) operation.PollPolicy {
	return operation.PollPolicy{
		Interval:             defaultPollInterval,
		MaxPolls:             maxPolls,
		ErrorStreakThreshold: operation.DefaultErrorStreakThreshold,
	}
}

var (
	gitSuccessStages = []string{"Completed", "SUCCESS"}
	gitErrorStages   = []string{"Error", "Failed"}
	gitErrorMarkers  = []string{`(?m)^fatal:`, `\berror\b`}
)

// DefaultProfiles returns the built-in profile for every kind.
func DefaultProfiles() map[operation.Kind]operation.Profile {
	return map[operation.Kind]operation.Profile{
		operation.KindGitCommit: {
			Kind:    operation.KindGitCommit,
			Polling: polling(simpleMaxPolls),
			Stages: []operation.StageDefinition{
				{ID: "init", Label: "Prepare Commit", Order: 0},
				{
					ID: "stage", Label: "Stage Changes", Order: 1, Floor: 20,
					Aliases: []string{"Staging", "Staging Changes"},
				},
				{
					ID: "commit", Label: "Create Commit", Order: 2, Floor: 60,
					Aliases: []string{"Committing"},
				},
				{ID: "complete", Label: "Commit Complete", Order: 3, Terminal: true},
			},
			ErrorMarkers:  gitErrorMarkers,
			SuccessStages: gitSuccessStages,
			ErrorStages:   gitErrorStages,
		},
		operation.KindGitPush: {
			Kind:    operation.KindGitPush,
			Polling: polling(simpleMaxPolls),
			Stages: []operation.StageDefinition{
				{ID: "init", Label: "Prepare Push", Order: 0},
				{
					ID: "push", Label: "Push to Remote", Order: 1, Floor: 20,
					Aliases: []string{"Pushing"},
				},
				{ID: "complete", Label: "Push Complete", Order: 2, Terminal: true},
			},
			ErrorMarkers:  gitErrorMarkers,
			SuccessStages: gitSuccessStages,
			ErrorStages:   gitErrorStages,
		},
		operation.KindGitCommitAndPush: {
			Kind:    operation.KindGitCommitAndPush,
			Polling: polling(simpleMaxPolls),
			Stages: []operation.StageDefinition{
				{ID: "init", Label: "Prepare", Order: 0},
				{
					ID: "commit", Label: "Create Commit", Order: 1, Floor: 10,
					Aliases: []string{"Staging", "Committing"},
				},
				{
					ID: "push", Label: "Push to Remote", Order: 2, Floor: 50,
					Aliases: []string{"Pushing"},
				},
				{ID: "complete", Label: "Commit and Push Complete", Order: 3, Terminal: true},
			},
			ErrorMarkers:  gitErrorMarkers,
			SuccessStages: gitSuccessStages,
			ErrorStages:   gitErrorStages,
		},
		operation.KindGitForceReset: {
			Kind:    operation.KindGitForceReset,
			Polling: polling(simpleMaxPolls),
			Stages: []operation.StageDefinition{
				{ID: "init", Label: "Prepare Reset", Order: 0},
				{
					ID: "fetch", Label: "Fetch Remote", Order: 1, Floor: 10,
					Aliases: []string{"Fetching"},
				},
				{
					ID: "reset", Label: "Hard Reset", Order: 2, Floor: 40,
					Aliases: []string{"Resetting"},
				},
				{
					ID: "clean", Label: "Clean Working Tree", Order: 3, Floor: 80,
					Aliases: []string{"Cleaning"},
				},
				{ID: "complete", Label: "Reset Complete", Order: 4, Terminal: true},
			},
			ErrorMarkers:  gitErrorMarkers,
			SuccessStages: gitSuccessStages,
			ErrorStages:   gitErrorStages,
		},
		operation.KindSQLBackup: {
			Kind:    operation.KindSQLBackup,
			Polling: polling(batchMaxPolls),
			Stages: []operation.StageDefinition{
				{ID: "init", Label: "Initialize Backup", Order: 0},
				{
					ID: "resources", Label: "Sync Resources", Order: 1, Floor: 25,
					Profiles:        []string{"development"},
					Aliases:         []string{"Resource Synchronization", "File Synchronization"},
					EnterMarkers:    []string{`\[1/3\]`, `resource synchronization`},
					CompleteMarkers: []string{`resource synchronization complete`},
				},
				{
					ID: "database", Label: "Database Backup", Order: 2, Floor: 50,
					Aliases:         []string{"Database Backup"},
					EnterMarkers:    []string{`\[2/3\]`, `database backup`},
					CompleteMarkers: []string{`database backup complete`},
				},
				{
					ID: "dev", Label: "DEV Environment", Order: 3, Floor: 75,
					SkipWhen:        map[string]string{operation.ParamCreateDevEnvironment: "false"},
					Aliases:         []string{"DEV Environment"},
					EnterMarkers:    []string{`\[3/3\]`, `dev environment`},
					CompleteMarkers: []string{`dev created successfully`},
				},
				{ID: "complete", Label: "Backup Complete", Order: 4, Terminal: true},
			},
			CompletionMarkers: []string{`all operations completed`},
			ErrorMarkers:      []string{`\berror\b`},
			SuccessStages:     []string{"Completed", "SUCCESS"},
			ErrorStages:       []string{"Error"},
		},
		operation.KindSQLRestore: {
			Kind:    operation.KindSQLRestore,
			Polling: polling(batchMaxPolls),
			Stages: []operation.StageDefinition{
				{ID: "init", Label: "Initialize Restore", Order: 0},
				{
					ID: "validate", Label: "Validate Backup File", Order: 1, Floor: 10,
					Aliases:         []string{"Validating Backup"},
					EnterMarkers:    []string{`\[1/3\]`, `verifying backup file`},
					CompleteMarkers: []string{`backup file verified`},
				},
				{
					ID: "restore", Label: "Restore Database", Order: 2, Floor: 30,
					Aliases:         []string{"Restoring Database", "Database Restore"},
					EnterMarkers:    []string{`\[2/3\]`, `restoring database`},
					CompleteMarkers: []string{`restore database successfully processed`},
				},
				{
					ID: "verify", Label: "Verify Database", Order: 3, Floor: 85,
					Aliases:      []string{"Verifying", "Verifying Database"},
					EnterMarkers: []string{`\[3/3\]`, `checking database`},
				},
				{ID: "complete", Label: "Restore Complete", Order: 4, Terminal: true},
			},
			CompletionMarkers: []string{`restore completed successfully`},
			ErrorMarkers:      []string{`\berror\b`, `\bmsg \d+, level 1[6-9]\b`},
			SuccessStages:     []string{"Completed", "SUCCESS"},
			ErrorStages:       []string{"Error"},
		},
		operation.KindSQLExport: {
			Kind:    operation.KindSQLExport,
			Polling: polling(batchMaxPolls),
			Stages: []operation.StageDefinition{
				{ID: "init", Label: "Initialize Export", Order: 0},
				{
					ID: "export", Label: "Export Data", Order: 1, Floor: 20,
					Aliases:         []string{"Exporting Data", "Export"},
					EnterMarkers:    []string{`\[1/2\]`, `exporting`},
					CompleteMarkers: []string{`export finished`},
				},
				{
					ID: "package", Label: "Package Export", Order: 2, Floor: 80,
					Aliases:      []string{"Packaging"},
					EnterMarkers: []string{`\[2/2\]`, `packaging`},
				},
				{ID: "complete", Label: "Export Complete", Order: 3, Terminal: true},
			},
			CompletionMarkers: []string{`export completed successfully`},
			ErrorMarkers:      []string{`\berror\b`},
			SuccessStages:     []string{"Completed", "SUCCESS"},
			ErrorStages:       []string{"Error"},
		},
	}
}
