package orchestration

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ahrav/adminops/internal/domain/operation"
)

// ParseOutcome summarizes what applying one snapshot did to a checklist.
type ParseOutcome struct {
	// Changed is true when at least one stage transitioned.
	Changed bool
	// Completed is set once the job signalled overall success, either through
	// a success stage name or a job completion marker.
	Completed bool
	// Failed is set once a stage was resolved to error. Parsing is halted for
	// the rest of the job.
	Failed      bool
	FailedStage string
}

// Terminal reports whether the outcome ends observation of the job.
func (o ParseOutcome) Terminal() bool { return o.Completed || o.Failed }

// Parser translates accumulated progress snapshots into checklist
// transitions. It prefers the explicit stage field of structured
// collaborators and falls back to scanning output for the profile's markers.
//
// A Parser is bound to one job and is not safe for concurrent use.
type Parser struct {
	cp *compiledProfile

	// entered and markedComplete remember which stage markers already fired so
	// accumulated output is not re-applied on every poll.
	entered        map[string]bool
	markedComplete map[string]bool

	completed bool
	halted    bool
}

// NewParser compiles the profile's markers. The profile should already be
// resolved for the job so hidden stages are known.
func NewParser(p operation.Profile) (*Parser, error) {
	cp, err := compileProfile(p)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", p.Kind, err)
	}
	return &Parser{
		cp:             cp,
		entered:        make(map[string]bool, len(p.Stages)),
		markedComplete: make(map[string]bool, len(p.Stages)),
	}, nil
}

// Halted reports whether an error stopped parsing for this job.
func (p *Parser) Halted() bool { return p.halted }

// Apply updates the checklist from snap and returns the snapshot with its
// percentage raised to any stage floor that was entered.
func (p *Parser) Apply(
	c *operation.Checklist,
	snap operation.ProgressSnapshot,
) (operation.ProgressSnapshot, ParseOutcome, error) {
	if p.halted {
		return snap, ParseOutcome{Failed: true}, nil
	}

	a := &application{parser: p, checklist: c, snap: snap}
	if snap.Stage != "" {
		a.applyStageName(snap.Stage)
	}
	if !a.done() && p.cp.scansOutput() {
		a.applyMarkers(snap.RawOutput + "\n" + snap.Message)
	}
	if !a.done() && !p.completed && !snap.IsRunning {
		text := snap.RawOutput + "\n" + snap.Message
		switch {
		case p.cp.errors.match(text):
			a.fail(firstNonEmpty(snap.ErrorDetail, "process reported an error"))
		case snap.Failed():
			a.fail(firstNonEmpty(snap.ErrorDetail, fmt.Sprintf("process exited with code %d", *snap.ExitCode)))
		}
	}

	a.out.Completed = p.completed
	return a.snap, a.out, errors.Join(a.errs...)
}

// application carries the state of one Apply call.
type application struct {
	parser    *Parser
	checklist *operation.Checklist
	snap      operation.ProgressSnapshot
	out       ParseOutcome
	errs      []error
}

func (a *application) done() bool { return a.out.Failed }

func (a *application) applyStageName(name string) {
	prof := a.parser.cp.profile
	switch {
	case matchesAny(prof.ErrorStages, name):
		a.fail(firstNonEmpty(a.snap.ErrorDetail, a.snap.Message, "an error occurred"))
	case matchesAny(prof.SuccessStages, name):
		a.finishAll(a.snap.Message)
	default:
		for i, sm := range a.parser.cp.stages {
			if !sm.def.Hidden && sm.def.MatchesAlias(name) {
				a.enter(i, a.snap.Message)
				return
			}
		}
	}
}

func (a *application) applyMarkers(text string) {
	p := a.parser
	for i, sm := range p.cp.stages {
		if sm.def.Hidden || p.entered[sm.def.ID] || !sm.enter.match(text) {
			continue
		}
		p.entered[sm.def.ID] = true
		a.enter(i, "")
	}
	for i, sm := range p.cp.stages {
		if sm.def.Hidden || p.markedComplete[sm.def.ID] || !sm.complete.match(text) {
			continue
		}
		p.markedComplete[sm.def.ID] = true
		a.complete(i, "")
	}
	if !p.completed && p.cp.completion.match(text) {
		a.finishTerminal()
	}
}

// enter activates stage i, completing every earlier open stage except the
// finalize stage, and raises the percentage to the stage floor.
func (a *application) enter(i int, message string) {
	stages := a.parser.cp.stages
	for j := 0; j < i; j++ {
		if def := stages[j].def; !def.Terminal {
			a.complete(j, "")
		}
	}

	def := stages[i].def
	if st, ok := a.checklist.Get(def.ID); ok && st.State == operation.StagePending {
		a.transition(def.ID, operation.StageActive, message)
	}
	a.snap = a.snap.WithPercent(def.Floor)
}

// complete moves stage i to completed if it is still open.
func (a *application) complete(i int, message string) {
	def := a.parser.cp.stages[i].def
	if def.Hidden {
		return
	}
	st, ok := a.checklist.Get(def.ID)
	if !ok || st.State.IsTerminal() {
		return
	}
	a.transition(def.ID, operation.StageCompleted, message)
}

// finishTerminal handles the job completion marker: the active stage and the
// finalize stage complete and the job is at 100%.
func (a *application) finishTerminal() {
	if st, ok := a.checklist.Active(); ok {
		a.transition(st.ID, operation.StageCompleted, "")
	}
	for i, sm := range a.parser.cp.stages {
		if sm.def.Terminal {
			a.complete(i, a.snap.Message)
		}
	}
	a.markCompleted()
}

// finishAll handles an explicit success stage: every open stage completes.
func (a *application) finishAll(message string) {
	for i, sm := range a.parser.cp.stages {
		msg := ""
		if sm.def.Terminal {
			msg = message
		}
		a.complete(i, msg)
	}
	a.markCompleted()
}

func (a *application) markCompleted() {
	a.parser.completed = true
	a.snap = a.snap.WithPercent(100)
}

// fail resolves the active stage, else the first pending one, to error and
// halts the parser.
func (a *application) fail(message string) {
	st, ok := a.checklist.Active()
	if !ok {
		st, ok = a.checklist.FirstPending()
	}
	if ok {
		a.transition(st.ID, operation.StageError, message)
		a.out.FailedStage = st.ID
	}
	a.parser.halted = true
	a.out.Failed = true
}

func (a *application) transition(stageID string, state operation.StageState, message string) {
	if err := a.checklist.Transition(stageID, state, message); err != nil {
		a.errs = append(a.errs, err)
		return
	}
	a.out.Changed = true
}

func matchesAny(names []string, name string) bool {
	name = strings.TrimSpace(name)
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
