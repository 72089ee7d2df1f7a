package orchestration

import (
	"fmt"

	regexp "github.com/wasilibs/go-re2"

	"github.com/ahrav/adminops/internal/domain/operation"
)

// markerSet is a group of compiled output markers. Markers are matched case
// insensitively.
type markerSet []*regexp.Regexp

func compileMarkers(patterns []string) (markerSet, error) {
	set := make(markerSet, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("compile marker %q: %w", p, err)
		}
		set = append(set, re)
	}
	return set, nil
}

func (m markerSet) empty() bool { return len(m) == 0 }

func (m markerSet) match(text string) bool {
	for _, re := range m {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// stageMarkers holds the compiled markers of one stage definition.
type stageMarkers struct {
	def      operation.StageDefinition
	enter    markerSet
	complete markerSet
}

// compiledProfile is a profile with every marker compiled once per job.
type compiledProfile struct {
	profile    operation.Profile
	stages     []stageMarkers
	completion markerSet
	errors     markerSet
}

func compileProfile(p operation.Profile) (*compiledProfile, error) {
	cp := &compiledProfile{profile: p, stages: make([]stageMarkers, len(p.Stages))}

	var err error
	for i, def := range p.Stages {
		sm := stageMarkers{def: def}
		if sm.enter, err = compileMarkers(def.EnterMarkers); err != nil {
			return nil, fmt.Errorf("stage %s: %w", def.ID, err)
		}
		if sm.complete, err = compileMarkers(def.CompleteMarkers); err != nil {
			return nil, fmt.Errorf("stage %s: %w", def.ID, err)
		}
		cp.stages[i] = sm
	}
	if cp.completion, err = compileMarkers(p.CompletionMarkers); err != nil {
		return nil, fmt.Errorf("completion: %w", err)
	}
	if cp.errors, err = compileMarkers(p.ErrorMarkers); err != nil {
		return nil, fmt.Errorf("error: %w", err)
	}
	return cp, nil
}

// scansOutput reports whether the profile declares any output marker.
func (cp *compiledProfile) scansOutput() bool {
	if !cp.completion.empty() || !cp.errors.empty() {
		return true
	}
	for _, sm := range cp.stages {
		if !sm.enter.empty() || !sm.complete.empty() {
			return true
		}
	}
	return false
}
