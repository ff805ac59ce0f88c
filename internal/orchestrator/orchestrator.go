// Package orchestrator is the entry point of the task execution engine. It
// drives classification, decomposition, assignment, execution, and
// synthesis, checkpointing into the state store at each step. The facade is
// stateless between calls: the store is the single source of truth, and
// resume always reloads from it rather than trusting any in-memory copy.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ferrule/maestro/internal/assign"
	"github.com/ferrule/maestro/internal/capability"
	"github.com/ferrule/maestro/internal/classify"
	"github.com/ferrule/maestro/internal/decompose"
	"github.com/ferrule/maestro/internal/engine"
	"github.com/ferrule/maestro/internal/llm"
	"github.com/ferrule/maestro/internal/state"
	"github.com/ferrule/maestro/internal/synth"
	"github.com/ferrule/maestro/pkg/models"
)

// Config contains orchestrator dependencies and tuning.
type Config struct {
	// Store is the durable state store. Required.
	Store state.Store
	// Completer is the text-completion collaborator. Nil disables the LLM
	// paths: classification runs the heuristic and synthesis always uses
	// the deterministic fallback.
	Completer llm.Completer
	// Registry holds the invocable capabilities. Defaults to the built-in
	// LLM-delegating registry.
	Registry *capability.Registry
	// Roster is the agent roster. Defaults to the built-in roster.
	Roster *assign.Roster
	// Engine tunes the execution engine.
	Engine engine.Config
	// WorkerID identifies this orchestrator instance for advisory leases.
	// Defaults to a random ID.
	WorkerID string
	// Logger receives debug tracing.
	Logger *DebugLogger
	// EventBuffer sizes the notification channel. Defaults to 100.
	EventBuffer int
}

// taskHandle tracks one in-process task execution.
type taskHandle struct {
	pause  atomic.Bool
	paused chan struct{}
	done   chan struct{}
}

// Orchestrator accepts tasks and drives them to a terminal status.
type Orchestrator struct {
	store       state.Store
	classifier  *classify.Classifier
	synthesizer *synth.Synthesizer
	registry    *capability.Registry
	roster      *assign.Roster
	engineCfg   engine.Config
	workerID    string
	logger      *DebugLogger
	emitter     *EventEmitter

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	running map[string]*taskHandle
	wg      sync.WaitGroup
}

// isClosed reports whether Close has been called.
func (o *Orchestrator) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// New creates an Orchestrator from the given config.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("orchestrator: Store is required")
	}

	registry := cfg.Registry
	if registry == nil {
		registry = capability.NewDefaultRegistry(cfg.Completer)
	}
	roster := cfg.Roster
	if roster == nil {
		roster = assign.DefaultRoster()
	}
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = uuid.New().String()[:8]
	}
	logger := cfg.Logger
	if logger == nil {
		logger = NopLogger()
	}
	bufSize := cfg.EventBuffer
	if bufSize <= 0 {
		bufSize = 100
	}

	engineCfg := cfg.Engine
	if engineCfg.Logf == nil {
		engineCfg.Logf = logger.Log
	}
	if engineCfg.DefaultCapability == "" {
		// Subtasks whose hinted capabilities are all unregistered, and
		// hint-less simple subtasks, degrade to the create capability
		// instead of failing outright.
		engineCfg.DefaultCapability = "create"
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:       cfg.Store,
		classifier:  classify.New(cfg.Completer),
		synthesizer: synth.New(cfg.Completer),
		registry:    registry,
		roster:      roster,
		engineCfg:   engineCfg,
		workerID:    workerID,
		logger:      logger,
		emitter:     NewEventEmitter(bufSize),
		ctx:         ctx,
		cancel:      cancel,
		running:     make(map[string]*taskHandle),
	}, nil
}

// Events returns the state-change notification channel.
func (o *Orchestrator) Events() <-chan Event {
	return o.emitter.Events()
}

// ListAgents returns the current agent roster.
func (o *Orchestrator) ListAgents() []*models.Agent {
	return o.roster.Snapshot()
}

// ListCapabilities returns the registered capabilities.
func (o *Orchestrator) ListCapabilities() []capability.Capability {
	return o.registry.List()
}

// Submit accepts a task and returns its ID. Submission is fire-and-forget:
// planning and execution run on a background goroutine, and callers observe
// progress via Status or the event channel.
func (o *Orchestrator) Submit(description string, taskContext map[string]string, priority models.Priority) (string, error) {
	if o.isClosed() {
		return "", ErrClosed
	}
	if strings.TrimSpace(description) == "" {
		return "", fmt.Errorf("%w: empty task description", ErrInvalidInput)
	}
	if priority == "" {
		priority = models.PriorityNormal
	}
	if !priority.Valid() {
		return "", fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, priority)
	}

	now := time.Now().UTC()
	rec := &state.TaskRecord{
		TaskID:      uuid.New().String(),
		Description: description,
		Context:     taskContext,
		Priority:    priority,
		Status:      models.TaskStatusPending,
		CreatedAt:   now,
	}
	rec.AppendLog("task submitted")

	if err := o.store.Put(rec); err != nil {
		return "", fmt.Errorf("persist task: %w", err)
	}

	o.emitter.Emit(Event{Type: EventSubmitted, TaskID: rec.TaskID, Message: description})
	o.startRun(rec.TaskID, false)
	return rec.TaskID, nil
}

// Pause requests a pause. It is cooperative: the engine finishes the
// in-flight wave, persists it, then halts. Pause blocks until the pause
// takes effect or ctx expires.
func (o *Orchestrator) Pause(ctx context.Context, taskID string) error {
	rec, err := o.load(taskID)
	if err != nil {
		return err
	}
	if rec.Status != models.TaskStatusRunning {
		return fmt.Errorf("%w: cannot pause task in status %s", ErrInvalidTransition, rec.Status)
	}

	o.mu.Lock()
	handle := o.running[taskID]
	o.mu.Unlock()

	if handle == nil {
		// Record says running but this process has no worker for it. Take
		// the lease to find out whether anyone does: if it is free, the
		// record is stale (for example after a crash) and can be marked
		// paused directly. If another worker holds it, that worker owns
		// the record and the pause must go through it.
		if err := o.store.Acquire(taskID, o.workerID); err != nil {
			if errors.Is(err, state.ErrLeaseHeld) {
				return o.requestRemotePause(ctx, taskID)
			}
			return err
		}
		defer func() {
			if rerr := o.store.Release(taskID, o.workerID); rerr != nil {
				o.logger.Log("[orchestrator] task %s: lease release failed: %v", taskID, rerr)
			}
		}()

		rec.Status = models.TaskStatusPaused
		rec.AppendLog("paused with no active worker")
		if err := o.store.Put(rec); err != nil {
			return fmt.Errorf("persist pause: %w", err)
		}
		o.emitter.Emit(Event{Type: EventPaused, TaskID: taskID})
		return nil
	}

	handle.pause.Store(true)

	select {
	case <-handle.paused:
		return nil
	case <-handle.done:
		// The task reached a terminal status before the pause took effect.
		final, err := o.load(taskID)
		if err != nil {
			return err
		}
		if final.Status == models.TaskStatusPaused {
			return nil
		}
		return fmt.Errorf("%w: task finished with status %s before pause took effect", ErrInvalidTransition, final.Status)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// requestRemotePause flags the record so the lease-holding worker pauses at
// its next wave boundary, then waits for the pause to take effect.
func (o *Orchestrator) requestRemotePause(ctx context.Context, taskID string) error {
	rec, err := o.load(taskID)
	if err != nil {
		return err
	}
	rec.PauseRequested = true
	rec.AppendLog("pause requested")
	if err := o.store.Put(rec); err != nil {
		return fmt.Errorf("persist pause request: %w", err)
	}

	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cur, err := o.load(taskID)
			if err != nil {
				return err
			}
			switch {
			case cur.Status == models.TaskStatusPaused:
				o.emitter.Emit(Event{Type: EventPaused, TaskID: taskID})
				return nil
			case cur.Status.Terminal():
				return fmt.Errorf("%w: task finished with status %s before pause took effect", ErrInvalidTransition, cur.Status)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Resume continues a paused task from its persisted step. The execution
// state is reloaded from the store, never from memory.
func (o *Orchestrator) Resume(taskID string) error {
	if o.isClosed() {
		return ErrClosed
	}
	rec, err := o.load(taskID)
	if err != nil {
		return err
	}
	if rec.Status != models.TaskStatusPaused {
		return fmt.Errorf("%w: cannot resume task in status %s", ErrInvalidTransition, rec.Status)
	}

	rec.Status = models.TaskStatusRunning
	rec.PauseRequested = false
	rec.AppendLog(fmt.Sprintf("resumed from step %d/%d", rec.CurrentStep, rec.TotalSteps))
	if err := o.store.Put(rec); err != nil {
		return fmt.Errorf("persist resume: %w", err)
	}

	o.emitter.Emit(Event{Type: EventRunning, TaskID: taskID})
	o.startRun(taskID, true)
	return nil
}

// StatusSnapshot is the read-only view of a task returned by Status.
type StatusSnapshot struct {
	TaskID          string              `json:"task_id"`
	Status          models.TaskStatus   `json:"status"`
	Tier            models.Tier         `json:"tier,omitempty"`
	CurrentStep     int                 `json:"current_step"`
	TotalSteps      int                 `json:"total_steps"`
	ProgressPercent float64             `json:"progress_percent"`
	Subtasks        []*models.Subtask   `json:"subtasks,omitempty"`
	RecentLog       []models.LogEntry   `json:"recent_log_entries,omitempty"`
	Result          *models.FinalResult `json:"results,omitempty"`
	FailedSubtaskID string              `json:"failed_subtask_id,omitempty"`
	FailureReason   string              `json:"failure_reason,omitempty"`
}

// Status returns a snapshot of a task's execution state. It never mutates.
func (o *Orchestrator) Status(taskID string) (*StatusSnapshot, error) {
	rec, err := o.load(taskID)
	if err != nil {
		return nil, err
	}

	return &StatusSnapshot{
		TaskID:          rec.TaskID,
		Status:          rec.Status,
		Tier:            rec.Tier,
		CurrentStep:     rec.CurrentStep,
		TotalSteps:      rec.TotalSteps,
		ProgressPercent: rec.Progress(),
		Subtasks:        rec.Subtasks,
		RecentLog:       rec.RecentLog(10),
		Result:          rec.Result,
		FailedSubtaskID: rec.FailedSubtaskID,
		FailureReason:   rec.FailureReason,
	}, nil
}

// List returns the records of all known tasks, newest first.
func (o *Orchestrator) List() ([]*state.TaskRecord, error) {
	return o.store.List()
}

// Delete removes a task record. Records survive completion for audit reads
// and are removed only here. Running tasks cannot be deleted.
func (o *Orchestrator) Delete(taskID string) error {
	o.mu.Lock()
	_, active := o.running[taskID]
	o.mu.Unlock()
	if active {
		return fmt.Errorf("%w: cannot delete a task while it is executing", ErrInvalidTransition)
	}

	if err := o.store.Delete(taskID); err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, taskID)
		}
		return err
	}
	return nil
}

// Close stops accepting work, asks every in-flight task to pause, waits for
// the workers to park them, and releases resources. In-flight subtask calls
// are allowed to finish; their tasks persist as paused at the next wave
// boundary and can be resumed by a later process.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	o.closed = true
	for _, handle := range o.running {
		handle.pause.Store(true)
	}
	o.mu.Unlock()

	o.wg.Wait()
	o.cancel()
	o.emitter.Close()
	return o.logger.Close()
}

// load fetches a record, mapping store errors to the facade taxonomy.
func (o *Orchestrator) load(taskID string) (*state.TaskRecord, error) {
	rec, err := o.store.Get(taskID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, taskID)
		}
		return nil, err
	}
	return rec, nil
}

// startRun registers a handle and launches the task goroutine. The handle
// exists before the goroutine starts so Pause cannot miss it.
func (o *Orchestrator) startRun(taskID string, resuming bool) {
	handle := &taskHandle{
		paused: make(chan struct{}),
		done:   make(chan struct{}),
	}

	o.mu.Lock()
	o.running[taskID] = handle
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			o.mu.Lock()
			delete(o.running, taskID)
			o.mu.Unlock()
			close(handle.done)
		}()
		o.run(taskID, handle, resuming)
	}()
}

// acquireLease takes the task's advisory lease, retrying briefly when
// another worker still holds it. A pausing worker releases its lease just
// after the paused status lands, so resume may observe the status first.
func (o *Orchestrator) acquireLease(taskID string) error {
	deadline := time.Now().Add(2 * time.Second)
	for {
		err := o.store.Acquire(taskID, o.workerID)
		if err == nil || !errors.Is(err, state.ErrLeaseHeld) || time.Now().After(deadline) {
			return err
		}
		time.Sleep(25 * time.Millisecond)
	}
}

// run drives one task to a pause or a terminal status.
func (o *Orchestrator) run(taskID string, handle *taskHandle, resuming bool) {
	if err := o.acquireLease(taskID); err != nil {
		o.logger.Log("[orchestrator] task %s: lease not acquired: %v", taskID, err)
		return
	}
	defer func() {
		if err := o.store.Release(taskID, o.workerID); err != nil {
			o.logger.Log("[orchestrator] task %s: lease release failed: %v", taskID, err)
		}
	}()

	rec, err := o.load(taskID)
	if err != nil {
		o.logger.Log("[orchestrator] task %s: load failed: %v", taskID, err)
		return
	}

	if !resuming {
		if err := o.plan(rec); err != nil {
			o.fail(rec, fmt.Sprintf("planning failed: %v", err))
			return
		}
	}

	eng := engine.New(o.store, o.registry.Snapshot(), o.engineCfg)
	outcome, err := eng.Run(o.ctx, rec, handle.pause.Load)
	if err != nil {
		if outcome.Failed {
			// The engine already persisted the failure (cyclic dependency).
			o.emitter.Emit(Event{Type: EventFailed, TaskID: taskID, Message: outcome.FailureReason})
			return
		}
		o.logger.Log("[orchestrator] task %s: engine stopped: %v", taskID, err)
		return
	}

	switch {
	case outcome.Paused:
		close(handle.paused)
		o.emitter.Emit(Event{Type: EventPaused, TaskID: taskID})

	case outcome.Failed:
		o.emitter.Emit(Event{Type: EventFailed, TaskID: taskID, Message: outcome.FailureReason})

	default:
		o.complete(rec, outcome)
	}
}

// plan classifies, decomposes, and assigns the task, then transitions it
// to running. Each stage is checkpointed.
func (o *Orchestrator) plan(rec *state.TaskRecord) error {
	rec.Status = models.TaskStatusPlanning
	rec.AppendLog("planning started")
	if err := o.store.Put(rec); err != nil {
		return err
	}

	cls, err := o.classifier.Classify(o.ctx, rec.Description)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}
	rec.Tier = cls.Tier
	if cls.Heuristic {
		rec.AppendLog(fmt.Sprintf("classified as %s (heuristic fallback), capabilities %v", cls.Tier, cls.CapabilityHints))
	} else {
		rec.AppendLog(fmt.Sprintf("classified as %s, capabilities %v", cls.Tier, cls.CapabilityHints))
	}

	task := &models.Task{
		ID:          rec.TaskID,
		Description: rec.Description,
		Context:     rec.Context,
		Priority:    rec.Priority,
		Status:      models.TaskStatusPlanning,
		Tier:        cls.Tier,
		CreatedAt:   rec.CreatedAt,
	}
	subtasks := decompose.Decompose(task, cls.Tier, cls.CapabilityHints)
	if err := decompose.ValidateNoCycles(subtasks); err != nil {
		return fmt.Errorf("validate decomposition: %w", err)
	}

	result, err := assign.Assign(subtasks, o.roster.Snapshot())
	if err != nil {
		return fmt.Errorf("assign: %w", err)
	}
	for _, st := range subtasks {
		st.AssignedAgent = result.Assignments[st.ID]
	}
	for _, msg := range result.Degraded {
		rec.AppendLog("assignment degraded: " + msg)
	}

	rec.Subtasks = subtasks
	rec.AppendLog(fmt.Sprintf("decomposed into %d subtasks", len(subtasks)))
	rec.Status = models.TaskStatusRunning
	if err := o.store.Put(rec); err != nil {
		return err
	}

	o.emitter.Emit(Event{Type: EventPlanned, TaskID: rec.TaskID, Message: fmt.Sprintf("%d subtasks", len(subtasks))})
	o.emitter.Emit(Event{Type: EventRunning, TaskID: rec.TaskID})
	return nil
}

// complete synthesizes the final result and transitions the task to
// completed.
func (o *Orchestrator) complete(rec *state.TaskRecord, outcome engine.Outcome) {
	result := o.synthesizer.Synthesize(o.ctx, rec.Description, rec.Subtasks)
	if result.Degraded {
		// Degraded synthesis is a warning, not a failure.
		rec.AppendLog("synthesis degraded: deterministic merge used instead of summarization")
	}
	rec.Result = result
	rec.Status = models.TaskStatusCompleted
	rec.AppendLog("task completed")
	if err := o.store.Put(rec); err != nil {
		o.logger.Log("[orchestrator] task %s: persist completion failed: %v", rec.TaskID, err)
		return
	}

	msg := "completed"
	if outcome.DegradedSubtasks > 0 {
		msg = fmt.Sprintf("completed with %d degraded subtasks", outcome.DegradedSubtasks)
	}
	o.emitter.Emit(Event{Type: EventCompleted, TaskID: rec.TaskID, Message: msg})
}

// fail persists a task failure discovered outside the engine.
func (o *Orchestrator) fail(rec *state.TaskRecord, reason string) {
	rec.Status = models.TaskStatusFailed
	rec.FailureReason = reason
	rec.AppendLog(reason)
	if err := o.store.Put(rec); err != nil {
		o.logger.Log("[orchestrator] task %s: persist failure failed: %v", rec.TaskID, err)
	}
	o.emitter.Emit(Event{Type: EventFailed, TaskID: rec.TaskID, Message: reason})
}
