package operation

import (
	"fmt"
	"time"

	"github.com/ahrav/adminops/pkg/common/timeutil"
)

// StageStatus is a point in time view of one checklist stage.
type StageStatus struct {
	ID        string     `json:"id"`
	Label     string     `json:"label"`
	Order     int        `json:"order"`
	Hidden    bool       `json:"hidden,omitempty"`
	State     StageState `json:"state"`
	Message   string     `json:"message,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Checklist holds one StageState per stage definition of a job and enforces
// monotonic transitions. It is not safe for concurrent use; the supervisor
// serializes access.
type Checklist struct {
	stages []StageStatus
	index  map[string]int
	// active is the index of the active stage or -1.
	active int

	timeProvider timeutil.Provider
}

// NewChecklist builds a checklist with every stage pending.
func NewChecklist(defs []StageDefinition, timeProvider timeutil.Provider) *Checklist {
	if timeProvider == nil {
		timeProvider = timeutil.Default()
	}
	now := timeProvider.Now()

	c := &Checklist{
		stages:       make([]StageStatus, len(defs)),
		index:        make(map[string]int, len(defs)),
		active:       -1,
		timeProvider: timeProvider,
	}
	for i, d := range defs {
		c.stages[i] = StageStatus{
			ID:        d.ID,
			Label:     d.Label,
			Order:     d.Order,
			Hidden:    d.Hidden,
			State:     StagePending,
			UpdatedAt: now,
		}
		c.index[d.ID] = i
	}
	return c
}

// Transition moves a stage to newState. Activating a stage while another one
// is active completes the previous one first (last writer wins), so at most
// one stage is ever active.
func (c *Checklist) Transition(stageID string, newState StageState, message string) error {
	return c.transition(stageID, newState, message, false)
}

// TransitionExclusive behaves like Transition but refuses to activate a stage
// while a different stage is active.
func (c *Checklist) TransitionExclusive(stageID string, newState StageState, message string) error {
	return c.transition(stageID, newState, message, true)
}

func (c *Checklist) transition(stageID string, newState StageState, message string, exclusive bool) error {
	i, ok := c.index[stageID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStage, stageID)
	}
	st := &c.stages[i]
	if st.Hidden {
		return fmt.Errorf("%w: %q", ErrStageHidden, stageID)
	}
	if err := st.State.ValidateTransition(newState); err != nil {
		return fmt.Errorf("stage %q: %w", stageID, err)
	}

	if newState == StageActive && c.active >= 0 && c.active != i {
		if exclusive {
			return fmt.Errorf("%w: %q is active", ErrStageAlreadyActive, c.stages[c.active].ID)
		}
		c.set(c.active, StageCompleted, "")
	}

	c.set(i, newState, message)
	return nil
}

func (c *Checklist) set(i int, state StageState, message string) {
	st := &c.stages[i]
	st.State = state
	if message != "" {
		st.Message = message
	}
	st.UpdatedAt = c.timeProvider.Now()

	switch {
	case state == StageActive:
		c.active = i
	case c.active == i:
		c.active = -1
	}
}

// Get returns the status of one stage.
func (c *Checklist) Get(stageID string) (StageStatus, bool) {
	i, ok := c.index[stageID]
	if !ok {
		return StageStatus{}, false
	}
	return c.stages[i], true
}

// Active returns the active stage, if any.
func (c *Checklist) Active() (StageStatus, bool) {
	if c.active < 0 {
		return StageStatus{}, false
	}
	return c.stages[c.active], true
}

// FirstPending returns the first visible stage still pending.
func (c *Checklist) FirstPending() (StageStatus, bool) {
	for _, st := range c.stages {
		if !st.Hidden && st.State == StagePending {
			return st, true
		}
	}
	return StageStatus{}, false
}

// CancelOpen marks every visible pending or active stage cancelled and
// returns how many stages changed.
func (c *Checklist) CancelOpen(message string) int {
	n := 0
	for i, st := range c.stages {
		if st.Hidden || st.State.IsTerminal() {
			continue
		}
		c.set(i, StageCancelled, message)
		n++
	}
	return n
}

// States returns an ordered copy of every stage, hidden ones included.
func (c *Checklist) States() []StageStatus {
	out := make([]StageStatus, len(c.stages))
	copy(out, c.stages)
	return out
}

// Visible returns an ordered copy of the stages that apply to this job.
func (c *Checklist) Visible() []StageStatus {
	out := make([]StageStatus, 0, len(c.stages))
	for _, st := range c.stages {
		if !st.Hidden {
			out = append(out, st)
		}
	}
	return out
}

// Has reports whether any visible stage is in state.
func (c *Checklist) Has(state StageState) bool {
	for _, st := range c.stages {
		if !st.Hidden && st.State == state {
			return true
		}
	}
	return false
}
