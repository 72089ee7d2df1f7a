package operation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Well known request parameter keys.
const (
	ParamCommitMessage        = "commitMessage"
	ParamBranch               = "branch"
	ParamCommitHash           = "commitHash"
	ParamBackupFile           = "backupFile"
	ParamTargetDatabase       = "targetDatabase"
	ParamDatabase             = "database"
	ParamCreateDevEnvironment = "createDevEnvironment"
)

// JobRequest is what a caller asks the orchestrator to run.
type JobRequest struct {
	Kind       Kind              `json:"kind" validate:"required,oneof=git-commit git-push git-commit-and-push git-force-reset sql-backup sql-restore sql-export"`
	Parameters map[string]string `json:"parameters,omitempty" validate:"omitempty,dive,keys,required,endkeys,max=4096"`

	// AllowedWhenProduction is carried for the caller's production guard. The
	// orchestrator does not enforce it.
	AllowedWhenProduction bool `json:"allowedWhenProduction"`
}

// NewJobRequest builds a request, copying params.
func NewJobRequest(kind Kind, params map[string]string) JobRequest {
	cp := make(map[string]string, len(params))
	for k, v := range params {
		cp[k] = v
	}
	return JobRequest{Kind: kind, Parameters: cp}
}

// Param returns the trimmed value of a parameter.
func (r JobRequest) Param(key string) string {
	return strings.TrimSpace(r.Parameters[key])
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// requiredParams lists parameters every request of a kind must carry.
var requiredParams = map[Kind][]string{
	KindGitCommit:        {ParamCommitMessage},
	KindGitCommitAndPush: {ParamCommitMessage},
	KindSQLRestore:       {ParamBackupFile},
	KindSQLExport:        {ParamDatabase},
}

// Validate checks the request envelope and the kind specific parameters.
// Every failure wraps ErrInvalidRequest.
func (r JobRequest) Validate() error {
	if err := requestValidator().Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	var missing []string
	for _, key := range requiredParams[r.Kind] {
		if r.Param(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s requires %s", ErrInvalidRequest, r.Kind, strings.Join(missing, ", "))
	}

	if r.Kind == KindGitForceReset {
		branch, hash := r.Param(ParamBranch), r.Param(ParamCommitHash)
		if (branch == "") == (hash == "") {
			return fmt.Errorf("%w: %s requires exactly one of %s or %s",
				ErrInvalidRequest, r.Kind, ParamBranch, ParamCommitHash)
		}
	}

	return nil
}
