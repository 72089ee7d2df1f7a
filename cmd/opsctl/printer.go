package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/ahrav/adminops/internal/domain/events"
	"github.com/ahrav/adminops/internal/domain/operation"
)

// progressPrinter renders operation events received on the in-process broker.
// In JSON mode only the final result is printed.
type progressPrinter struct {
	mu     sync.Mutex
	w      io.Writer
	asJSON bool
	labels map[string]string
}

func newProgressPrinter(w io.Writer, asJSON bool) *progressPrinter {
	return &progressPrinter{w: w, asJSON: asJSON, labels: make(map[string]string)}
}

func (p *progressPrinter) eventTypes() []events.EventType {
	return []events.EventType{
		operation.EventTypeOperationLaunched,
		operation.EventTypeOperationProgressed,
		operation.EventTypeOperationStallNotice,
	}
}

func (p *progressPrinter) handle(_ context.Context, env events.EventEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch evt := env.Payload.(type) {
	case operation.OperationLaunchedEvent:
		for _, st := range evt.Stages {
			p.labels[st.ID] = st.Label
		}
		if p.asJSON {
			return nil
		}
		fmt.Fprintf(p.w, "launched %s as %s\n", evt.Kind, evt.JobID)
		for _, st := range evt.Stages {
			fmt.Fprintf(p.w, "  [ ] %s\n", st.Label)
		}
	case operation.OperationProgressedEvent:
		if p.asJSON {
			return nil
		}
		line := fmt.Sprintf("[%3d%%]", evt.PercentComplete)
		if label := p.label(evt.Stage); label != "" {
			line += " " + label
		}
		if msg := strings.TrimSpace(evt.Message); msg != "" {
			line += ": " + msg
		}
		fmt.Fprintln(p.w, line)
	case operation.OperationStallNoticeEvent:
		if p.asJSON {
			return nil
		}
		fmt.Fprintf(p.w, "no progress for %d polls, still waiting at %d%%\n",
			evt.PollsWithoutChange, evt.PercentComplete)
	}
	return nil
}

func (p *progressPrinter) label(stageID string) string {
	if l, ok := p.labels[stageID]; ok {
		return l
	}
	return stageID
}

func stageMark(s operation.StageState) string {
	switch s {
	case operation.StageCompleted:
		return "x"
	case operation.StageError:
		return "!"
	case operation.StageCancelled:
		return "-"
	case operation.StageActive:
		return ">"
	default:
		return " "
	}
}

// result prints the final result of a launch.
func (p *progressPrinter) result(res operation.OperationResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.asJSON {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(res)
		return
	}

	for _, st := range res.StageResults() {
		fmt.Fprintf(p.w, "  [%s] %s\n", stageMark(st.State), st.Label)
	}
	fmt.Fprintf(p.w, "%s: %s", res.Outcome(), res.Message())
	if d := res.Detail(); d != "" && d != res.Message() {
		fmt.Fprintf(p.w, " (%s)", d)
	}
	if !res.StartedAt().IsZero() && !res.EndedAt().IsZero() {
		fmt.Fprintf(p.w, " after %s", res.Duration().Round(time.Millisecond))
	}
	fmt.Fprintln(p.w)
}
