package operation

import (
	"slices"
	"strings"
)

// StageDefinition describes one checklist item a job of a given kind moves
// through. Definitions are static per kind; which of them apply to a given
// job is decided by Profile.Resolve.
type StageDefinition struct {
	ID    string
	Label string
	Order int

	// Hidden marks a stage that does not apply to this job configuration. It
	// stays in the checklist so ordering is stable, but it is never transitioned
	// and is excluded from results.
	Hidden bool

	// Terminal marks the finalize stage closed by the job completion marker.
	Terminal bool

	// Floor is the percentage the job is advanced to when this stage is entered.
	Floor int

	// Aliases are explicit stage names a structured status report may use for
	// this stage (e.g. "Database Backup").
	Aliases []string

	// EnterMarkers and CompleteMarkers are regular expressions scanned against
	// accumulated output by the text parser strategy.
	EnterMarkers    []string
	CompleteMarkers []string

	// Profiles restricts the stage to the listed deployment profiles. Empty
	// means every profile.
	Profiles []string

	// SkipWhen hides the stage when any listed request parameter has the given
	// value (case-insensitive).
	SkipWhen map[string]string
}

// MatchesAlias reports whether name refers to this stage.
func (d StageDefinition) MatchesAlias(name string) bool {
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, d.ID) {
		return true
	}
	for _, a := range d.Aliases {
		if strings.EqualFold(name, a) {
			return true
		}
	}
	return false
}

// appliesTo reports whether the stage is visible for the deployment profile
// and request parameters.
func (d StageDefinition) appliesTo(deployment string, params map[string]string) bool {
	if len(d.Profiles) > 0 && !slices.ContainsFunc(d.Profiles, func(p string) bool {
		return strings.EqualFold(p, deployment)
	}) {
		return false
	}
	for key, val := range d.SkipWhen {
		if got, ok := params[key]; ok && strings.EqualFold(strings.TrimSpace(got), val) {
			return false
		}
	}
	return true
}

func (d StageDefinition) clone() StageDefinition {
	d.Aliases = slices.Clone(d.Aliases)
	d.EnterMarkers = slices.Clone(d.EnterMarkers)
	d.CompleteMarkers = slices.Clone(d.CompleteMarkers)
	d.Profiles = slices.Clone(d.Profiles)
	if d.SkipWhen != nil {
		skip := make(map[string]string, len(d.SkipWhen))
		for k, v := range d.SkipWhen {
			skip[k] = v
		}
		d.SkipWhen = skip
	}
	return d
}
