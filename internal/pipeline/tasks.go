package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/CVTS/cvts/internal/monitoring"
)

// Task is one idempotent pipeline stage. A task declares its upstream
// dependencies and the artifacts it produces; the runner skips any task
// whose artifacts already exist.
type Task interface {
	Name() string
	Requires() []Task
	Outputs() []string
	Run(ctx context.Context) error
}

// doneChecker lets a task refine the default all-outputs-exist check,
// e.g. the matching stage also requires every vehicle's artifacts.
type doneChecker interface {
	Done() (bool, error)
}

// Runner executes task graphs depth-first, once per task, skipping
// completed work. Each run carries an id so interleaved log lines from
// successive invocations can be told apart.
type Runner struct {
	runID string
	state map[string]runState
}

type runState int

const (
	statePending runState = iota
	stateRunning
	stateDone
)

// NewRunner creates a runner with a fresh run id.
func NewRunner() *Runner {
	return &Runner{
		runID: uuid.NewString(),
		state: make(map[string]runState),
	}
}

// RunID returns this invocation's identifier.
func (r *Runner) RunID() string { return r.runID }

// Run executes the given targets and everything they require.
func (r *Runner) Run(ctx context.Context, targets ...Task) error {
	for _, t := range targets {
		if err := r.run(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) run(ctx context.Context, t Task) error {
	switch r.state[t.Name()] {
	case stateDone:
		return nil
	case stateRunning:
		return fmt.Errorf("task %s depends on itself", t.Name())
	}
	r.state[t.Name()] = stateRunning

	for _, dep := range t.Requires() {
		if err := r.run(ctx, dep); err != nil {
			return err
		}
	}

	done, err := taskDone(t)
	if err != nil {
		return fmt.Errorf("checking %s: %w", t.Name(), err)
	}
	if done {
		monitoring.Logf("run %s: skipping %s (outputs exist)", r.runID, t.Name())
		r.state[t.Name()] = stateDone
		return nil
	}

	monitoring.Logf("run %s: running %s", r.runID, t.Name())
	if err := t.Run(ctx); err != nil {
		r.state[t.Name()] = statePending
		return fmt.Errorf("task %s: %w", t.Name(), err)
	}
	r.state[t.Name()] = stateDone
	return nil
}

func taskDone(t Task) (bool, error) {
	if dc, ok := t.(doneChecker); ok {
		return dc.Done()
	}
	outputs := t.Outputs()
	if len(outputs) == 0 {
		return false, nil
	}
	for _, out := range outputs {
		if !fileExists(out) {
			return false, nil
		}
	}
	return true, nil
}
