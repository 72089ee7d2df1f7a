package simulator

import (
	"fmt"
	"strings"

	"github.com/ahrav/adminops/internal/domain/operation"
	"github.com/ahrav/adminops/internal/infra/backend"
)

// Fault names accepted in the simulate parameter.
const (
	ParamSimulate = "simulate"

	FaultError  = "error"
	FaultHang   = "hang"
	FaultCrash  = "crash"
	FaultFlaky  = "flaky"
	FaultReject = "reject"
)

// step is one scripted status response. Output is appended to the job's
// accumulated output and also returned as the delta.
type step struct {
	stage   string
	message string
	output  string
	percent int
}

func intPtr(v int) *int { return &v }

// script returns the status responses a job walks through, one per status
// call. The last response is repeated once the script is exhausted.
func script(kind operation.Kind, params map[string]string) []backend.StatusResponse {
	steps := scriptSteps(kind, params)
	fault := strings.ToLower(strings.TrimSpace(params[ParamSimulate]))

	switch fault {
	case FaultError:
		cut := max(len(steps)/2, 1)
		steps = steps[:cut]
		return toResponses(steps, backend.StatusResponse{
			Stage:    errorStage(kind),
			Message:  "operation failed",
			Output:   failureLine(kind),
			ExitCode: intPtr(1),
			Error:    strings.TrimSpace(failureLine(kind)),
		})
	case FaultCrash:
		cut := max(len(steps)/2, 1)
		return toResponses(steps[:cut], backend.StatusResponse{Message: "process exited"})
	case FaultHang:
		// Never finishes; the last running step repeats forever.
		return toResponses(steps, backend.StatusResponse{})[:len(steps)]
	}

	return toResponses(steps, finalResponse(kind))
}

func toResponses(steps []step, final backend.StatusResponse) []backend.StatusResponse {
	out := make([]backend.StatusResponse, 0, len(steps)+1)
	for _, st := range steps {
		out = append(out, backend.StatusResponse{
			IsRunning:       true,
			PercentComplete: st.percent,
			Stage:           st.stage,
			Message:         st.message,
			RawOutputDelta:  st.output,
		})
	}
	final.IsRunning = false
	final.RawOutputDelta = final.Output
	final.Output = ""
	if final.PercentComplete == 0 && len(steps) > 0 {
		final.PercentComplete = steps[len(steps)-1].percent
	}
	return append(out, final)
}

func finalResponse(kind operation.Kind) backend.StatusResponse {
	resp := backend.StatusResponse{
		PercentComplete: 100,
		Message:         "completed successfully",
		ExitCode:        intPtr(0),
		Success:         boolPtr(true),
	}
	switch kind {
	case operation.KindSQLBackup:
		resp.Output = "all operations completed\n"
	case operation.KindSQLRestore:
		resp.Output = "restore completed successfully\n"
	case operation.KindSQLExport:
		resp.Output = "export completed successfully\n"
	default:
		resp.Stage = "Completed"
	}
	return resp
}

func boolPtr(v bool) *bool { return &v }

func errorStage(kind operation.Kind) string {
	if kind.Family() == operation.FamilyGit {
		return "Error"
	}
	return ""
}

func failureLine(kind operation.Kind) string {
	switch kind {
	case operation.KindGitPush, operation.KindGitCommitAndPush:
		return "fatal: unable to access remote: connection refused\n"
	case operation.KindGitCommit:
		return "fatal: unable to create index.lock: file exists\n"
	case operation.KindGitForceReset:
		return "fatal: ambiguous argument: unknown revision\n"
	case operation.KindSQLRestore:
		return "ERROR: Msg 3201, Level 16: cannot open backup device\n"
	default:
		return "ERROR: operation failed: disk full\n"
	}
}

func scriptSteps(kind operation.Kind, params map[string]string) []step {
	switch kind {
	case operation.KindGitCommit:
		return []step{
			{stage: "Staging", message: "staging changes", percent: 20},
			{stage: "Committing", message: "creating commit", percent: 60,
				output: fmt.Sprintf("[main 1a2b3c4] %s\n", params[operation.ParamCommitMessage])},
		}
	case operation.KindGitPush:
		return []step{
			{stage: "Pushing", message: "pushing to origin", percent: 30},
			{stage: "Pushing", message: "writing objects", percent: 70,
				output: "Writing objects: 100% (3/3), done.\n"},
		}
	case operation.KindGitCommitAndPush:
		return []step{
			{stage: "Staging", message: "staging changes", percent: 10},
			{stage: "Committing", message: "creating commit", percent: 30,
				output: fmt.Sprintf("[main 1a2b3c4] %s\n", params[operation.ParamCommitMessage])},
			{stage: "Pushing", message: "pushing to origin", percent: 60},
			{stage: "Pushing", message: "writing objects", percent: 90},
		}
	case operation.KindGitForceReset:
		target := params[operation.ParamBranch]
		if target == "" {
			target = params[operation.ParamCommitHash]
		}
		return []step{
			{stage: "Fetching", message: "fetching origin", percent: 15},
			{stage: "Resetting", message: "resetting to " + target, percent: 45,
				output: "HEAD is now at 1a2b3c4\n"},
			{stage: "Cleaning", message: "removing untracked files", percent: 85},
		}
	case operation.KindSQLBackup:
		steps := []step{
			{message: "starting backup batch", percent: 5, output: "Starting backup batch\n"},
			{message: "syncing resources", percent: 10, output: "[1/3] Resource synchronization started\n"},
			{percent: 30, output: "resource synchronization complete\n"},
			{message: "backing up database", percent: 40, output: "[2/3] Database backup started\n"},
			{percent: 60, output: "database backup complete\n"},
		}
		if !strings.EqualFold(strings.TrimSpace(params[operation.ParamCreateDevEnvironment]), "false") {
			steps = append(steps,
				step{message: "creating dev environment", percent: 70, output: "[3/3] DEV environment creation\n"},
				step{percent: 90, output: "dev created successfully\n"},
			)
		}
		return steps
	case operation.KindSQLRestore:
		return []step{
			{message: "verifying backup", percent: 5,
				output: fmt.Sprintf("[1/3] Verifying backup file %s\n", params[operation.ParamBackupFile])},
			{percent: 20, output: "backup file verified\n"},
			{message: "restoring", percent: 35,
				output: fmt.Sprintf("[2/3] Restoring database %s\n", params[operation.ParamTargetDatabase])},
			{percent: 70, output: "RESTORE DATABASE successfully processed 18342 pages\n"},
			{message: "checking consistency", percent: 90, output: "[3/3] Checking database consistency\n"},
		}
	case operation.KindSQLExport:
		return []step{
			{message: "exporting", percent: 10,
				output: fmt.Sprintf("[1/2] Exporting %s\n", params[operation.ParamDatabase])},
			{percent: 60, output: "export finished\n"},
			{message: "packaging", percent: 80, output: "[2/2] Packaging export\n"},
		}
	}
	return nil
}
