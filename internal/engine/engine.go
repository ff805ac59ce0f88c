// Package engine executes a task's subtasks in dependency order. Execution
// proceeds in waves: every currently-ready subtask runs concurrently, the
// wave boundary acts as a synchronization barrier, and each transition is
// checkpointed to the state store before the next ready-set computation.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ferrule/maestro/internal/capability"
	"github.com/ferrule/maestro/internal/graph"
	"github.com/ferrule/maestro/internal/state"
	"github.com/ferrule/maestro/pkg/models"
)

// Config tunes engine behavior.
type Config struct {
	// MaxRetries is the number of additional attempts after a transient
	// failure. Defaults to 2.
	MaxRetries int
	// Backoff is the fixed delay between attempts. Defaults to 2s.
	Backoff time.Duration
	// SubtaskTimeout bounds one invocation attempt. Defaults to 2m.
	SubtaskTimeout time.Duration
	// DefaultCapability is invoked when a subtask's required capabilities
	// are all unregistered, so execution degrades instead of failing on a
	// classifier hallucination. Empty disables the fallback.
	DefaultCapability string
	// Logf receives debug tracing. Nil disables tracing.
	Logf func(format string, args ...interface{})
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.MaxRetries == 0 {
		out.MaxRetries = 2
	}
	if out.Backoff <= 0 {
		out.Backoff = 2 * time.Second
	}
	if out.SubtaskTimeout <= 0 {
		out.SubtaskTimeout = 2 * time.Minute
	}
	if out.Logf == nil {
		out.Logf = func(string, ...interface{}) {}
	}
	return out
}

// Outcome summarizes how a run ended.
type Outcome struct {
	// Paused is true when the run halted at a wave boundary on request.
	Paused bool
	// Failed is true when the decisive subtask failed or was skipped.
	Failed bool
	// FailedSubtaskID identifies the root failing subtask when Failed.
	FailedSubtaskID string
	// FailureReason classifies the failure for callers.
	FailureReason string
	// DegradedSubtasks counts non-decisive subtasks that failed or were
	// skipped on a completed run.
	DegradedSubtasks int
}

// Engine runs one task's subtasks against a capability snapshot.
type Engine struct {
	store state.RecordStore
	caps  *capability.Snapshot
	cfg   Config
}

// New creates an Engine. The store receives a synchronous checkpoint after
// every transition.
func New(store state.RecordStore, caps *capability.Snapshot, cfg Config) *Engine {
	return &Engine{store: store, caps: caps, cfg: cfg.withDefaults()}
}

// waveResult carries one subtask's outcome across the wave barrier.
type waveResult struct {
	id       string
	payload  json.RawMessage
	err      error
	attempts int
}

// Run executes the record's subtasks until every one is terminal, a pause
// is requested, or the dependency graph deadlocks. The record is mutated
// and checkpointed as execution progresses; rec.Status reflects the ending
// state except on successful completion, which the caller finalizes after
// synthesis.
func (e *Engine) Run(ctx context.Context, rec *state.TaskRecord, pauseRequested func() bool) (Outcome, error) {
	g := graph.New()
	if err := g.Build(rec.Subtasks); err != nil {
		if errors.Is(err, graph.ErrCycleDetected) {
			return e.failCycle(rec, g)
		}
		return Outcome{}, fmt.Errorf("build dependency graph: %w", err)
	}

	if rec.TotalSteps == 0 {
		rec.TotalSteps = waveCount(rec.Subtasks)
	}

	started := time.Now()
	defer func() {
		rec.ExecutionSeconds += time.Since(started).Seconds()
	}()

	for {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		if e.shouldPause(rec, pauseRequested) {
			rec.PauseRequested = false
			rec.Status = models.TaskStatusPaused
			rec.AppendLog(fmt.Sprintf("paused at step %d/%d", rec.CurrentStep, rec.TotalSteps))
			if err := e.store.Put(rec); err != nil {
				return Outcome{}, fmt.Errorf("checkpoint pause: %w", err)
			}
			return Outcome{Paused: true}, nil
		}

		ready := g.GetReady()
		if len(ready) == 0 {
			if g.Remaining() == 0 {
				break
			}
			// Ready set empty with work remaining: the graph deadlocked.
			return e.failCycle(rec, g)
		}

		e.cfg.Logf("[engine] task %s wave %d: %d ready subtasks %v", rec.TaskID, rec.CurrentStep+1, len(ready), ready)

		// pending -> ready, persisted before dispatch.
		for _, id := range ready {
			rec.Subtask(id).Status = models.SubtaskStatusReady
		}
		if err := e.store.Put(rec); err != nil {
			return Outcome{}, fmt.Errorf("checkpoint ready set: %w", err)
		}

		// ready -> running, persisted before dispatch.
		for _, id := range ready {
			st := rec.Subtask(id)
			st.Status = models.SubtaskStatusRunning
			rec.AppendLog(fmt.Sprintf("subtask %s running on agent %s", id, st.AssignedAgent))
		}
		if err := e.store.Put(rec); err != nil {
			return Outcome{}, fmt.Errorf("checkpoint wave start: %w", err)
		}

		results := make(chan waveResult, len(ready))
		for _, id := range ready {
			go func(st *models.Subtask) {
				payload, attempts, err := e.runSubtask(ctx, rec, st)
				results <- waveResult{id: st.ID, payload: payload, err: err, attempts: attempts}
			}(rec.Subtask(id))
		}

		// Wave barrier: collect every result before moving on.
		var failed []string
		for range ready {
			res := <-results
			st := rec.Subtask(res.id)
			st.Attempts += res.attempts
			if res.err != nil {
				st.Status = models.SubtaskStatusFailed
				st.Error = res.err.Error()
				failed = append(failed, res.id)
				rec.AppendLog(fmt.Sprintf("subtask %s failed after %d attempts: %v", res.id, st.Attempts, res.err))
				continue
			}
			st.Status = models.SubtaskStatusCompleted
			st.Result = res.payload
			g.MarkComplete(res.id)
			rec.MarkSubtaskCompleted(res.id)
			rec.AppendLog(fmt.Sprintf("subtask %s completed", res.id))
		}

		// Propagate skips to everything downstream of a failure.
		for _, id := range failed {
			for _, depID := range g.Dependents(id) {
				st := rec.Subtask(depID)
				if st.Status.Terminal() {
					continue
				}
				st.Status = models.SubtaskStatusSkipped
				rec.AppendLog(fmt.Sprintf("subtask %s skipped: depends on failed subtask %s", depID, id))
			}
		}

		// Absorb a pause request set by another worker during the wave so
		// the wave-end checkpoint does not erase it.
		e.shouldPause(rec, nil)

		rec.CurrentStep++
		if err := e.store.Put(rec); err != nil {
			return Outcome{}, fmt.Errorf("checkpoint wave end: %w", err)
		}
	}

	return e.finish(rec)
}

// shouldPause reports whether a pause was requested, either locally through
// the callback or by another worker through the record's persisted
// pause-request flag. A flag found in the store is folded into rec so it
// survives the record's own checkpoints.
func (e *Engine) shouldPause(rec *state.TaskRecord, local func() bool) bool {
	if local != nil && local() {
		return true
	}
	if stored, err := e.store.Get(rec.TaskID); err == nil && stored.PauseRequested {
		rec.PauseRequested = true
	}
	return rec.PauseRequested
}

// runSubtask invokes the subtask's capability with retries for transient
// failures. Returns the marshaled payload and the number of attempts made.
func (e *Engine) runSubtask(ctx context.Context, rec *state.TaskRecord, st *models.Subtask) (json.RawMessage, int, error) {
	capName, degraded := e.selectCapability(st)
	if capName == "" {
		return nil, 1, fmt.Errorf("no registered capability for %v: %w", st.RequiredCapabilities, capability.ErrUnknownCapability)
	}
	if degraded {
		e.cfg.Logf("[engine] subtask %s: capabilities %v unregistered, degrading to %q", st.ID, st.RequiredCapabilities, capName)
	}

	params := map[string]any{
		"description": st.Description,
		"agent":       st.AssignedAgent,
	}
	for k, v := range rec.Context {
		params["context."+k] = v
	}

	attempts := 0
	for {
		attempts++

		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.SubtaskTimeout)
		out, err := e.caps.Invoke(attemptCtx, capName, params)
		cancel()

		if err == nil {
			payload, merr := json.Marshal(out)
			if merr != nil {
				return nil, attempts, fmt.Errorf("marshal subtask result: %w", merr)
			}
			return payload, attempts, nil
		}

		if !IsTransient(err) || attempts > e.cfg.MaxRetries {
			return nil, attempts, err
		}

		e.cfg.Logf("[engine] subtask %s attempt %d failed transiently, retrying: %v", st.ID, attempts, err)
		select {
		case <-time.After(e.cfg.Backoff):
		case <-ctx.Done():
			return nil, attempts, ctx.Err()
		}
	}
}

// selectCapability picks the first registered required capability, falling
// back to the configured default. The second return marks degradation.
func (e *Engine) selectCapability(st *models.Subtask) (string, bool) {
	for _, cap := range st.RequiredCapabilities {
		if e.caps.Has(cap) {
			return cap, false
		}
	}
	if e.cfg.DefaultCapability != "" && e.caps.Has(e.cfg.DefaultCapability) {
		return e.cfg.DefaultCapability, true
	}
	return "", false
}

// finish decides the overall outcome once every subtask is terminal. The
// decisive subtask is the synthesis fan-in, or the sole subtask of a
// single-subtask plan; only its failure fails the task.
func (e *Engine) finish(rec *state.TaskRecord) (Outcome, error) {
	decisive := decisiveSubtask(rec.Subtasks)

	if decisive != nil && decisive.Status != models.SubtaskStatusCompleted {
		root := rootFailure(rec, decisive)
		rec.Status = models.TaskStatusFailed
		rec.FailedSubtaskID = root.ID
		rec.FailureReason = failureReason(root)
		rec.AppendLog(fmt.Sprintf("task failed: subtask %s %s", root.ID, root.Status))
		if err := e.store.Put(rec); err != nil {
			return Outcome{}, fmt.Errorf("checkpoint failure: %w", err)
		}
		return Outcome{Failed: true, FailedSubtaskID: root.ID, FailureReason: rec.FailureReason}, nil
	}

	degraded := 0
	for _, st := range rec.Subtasks {
		if st.Status == models.SubtaskStatusFailed || st.Status == models.SubtaskStatusSkipped {
			degraded++
		}
	}
	if degraded > 0 {
		rec.AppendLog(fmt.Sprintf("completed with %d failed or skipped subtasks (degraded completion)", degraded))
	}
	return Outcome{DegradedSubtasks: degraded}, nil
}

// failCycle records a cyclic-dependency failure with a full graph dump for
// postmortem and fails the task.
func (e *Engine) failCycle(rec *state.TaskRecord, g *graph.DependencyGraph) (Outcome, error) {
	rec.Status = models.TaskStatusFailed
	rec.FailureReason = "cyclic dependency"
	rec.AppendLog("cyclic dependency detected, dependency graph:\n" + g.DumpEdges())
	if err := e.store.Put(rec); err != nil {
		return Outcome{}, fmt.Errorf("checkpoint cycle failure: %w", err)
	}
	return Outcome{Failed: true, FailureReason: rec.FailureReason}, graph.ErrCycleDetected
}

// decisiveSubtask returns the subtask whose outcome decides the task.
func decisiveSubtask(subtasks []*models.Subtask) *models.Subtask {
	if len(subtasks) == 1 {
		return subtasks[0]
	}
	for _, st := range subtasks {
		if st.Synthesis {
			return st
		}
	}
	return nil
}

// rootFailure walks back from a skipped decisive subtask to the failed
// subtask that caused the skip, so status reports name the real culprit.
func rootFailure(rec *state.TaskRecord, decisive *models.Subtask) *models.Subtask {
	if decisive.Status == models.SubtaskStatusFailed {
		return decisive
	}
	for _, st := range rec.Subtasks {
		if st.Status == models.SubtaskStatusFailed {
			return st
		}
	}
	return decisive
}

// failureReason classifies a failing subtask for callers.
func failureReason(st *models.Subtask) string {
	switch st.Status {
	case models.SubtaskStatusFailed:
		return fmt.Sprintf("subtask failed: %s", st.Error)
	case models.SubtaskStatusSkipped:
		return "subtask skipped due to upstream failure"
	default:
		return fmt.Sprintf("subtask ended in unexpected status %s", st.Status)
	}
}

// waveCount computes how many waves the plan needs: the longest dependency
// chain in the graph.
func waveCount(subtasks []*models.Subtask) int {
	byID := make(map[string]*models.Subtask, len(subtasks))
	for _, st := range subtasks {
		byID[st.ID] = st
	}

	depth := make(map[string]int, len(subtasks))
	var level func(id string) int
	level = func(id string) int {
		if d, ok := depth[id]; ok {
			return d
		}
		// Mark in progress to bound recursion on (invalid) cyclic input.
		depth[id] = 1
		max := 0
		if st := byID[id]; st != nil {
			for _, dep := range st.DependsOn {
				if d := level(dep); d > max {
					max = d
				}
			}
		}
		depth[id] = max + 1
		return depth[id]
	}

	waves := 0
	for _, st := range subtasks {
		if d := level(st.ID); d > waves {
			waves = d
		}
	}
	return waves
}
