package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ferrule/maestro/internal/llm"
	"github.com/ferrule/maestro/internal/state"
	"github.com/ferrule/maestro/pkg/models"
)

func openStore(t *testing.T) *state.DB {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "maestro.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func newOrchestrator(t *testing.T, store *state.DB, completer llm.Completer) *Orchestrator {
	t.Helper()
	orch, err := New(Config{Store: store, Completer: completer})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { orch.Close() })
	return orch
}

// waitFor polls until cond holds.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition never held")
}

// waitTerminal polls until the task reaches a terminal or paused status.
func waitTerminal(t *testing.T, orch *Orchestrator, taskID string) *StatusSnapshot {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := orch.Status(taskID)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if snap.Status.Terminal() || snap.Status == models.TaskStatusPaused {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("task never settled")
	return nil
}

// goodCompleter answers classification prompts with a canned plan and
// everything else with plain text.
func goodCompleter(tier string, caps string) llm.Completer {
	return llm.CompleterFunc(func(ctx context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, `"tier"`) {
			return `{"tier": "` + tier + `", "capabilities": [` + caps + `]}`, nil
		}
		return "all done", nil
	})
}

func TestSubmitSimpleTaskCompletes(t *testing.T) {
	orch := newOrchestrator(t, openStore(t), goodCompleter("simple", `"compute"`))

	taskID, err := orch.Submit("Calculate 25*47+123", nil, models.PriorityNormal)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	snap := waitTerminal(t, orch, taskID)
	if snap.Status != models.TaskStatusCompleted {
		t.Fatalf("Status = %s, want completed (log: %v)", snap.Status, snap.RecentLog)
	}
	if snap.Tier != models.TierSimple {
		t.Errorf("Tier = %s, want simple", snap.Tier)
	}
	if len(snap.Subtasks) != 1 {
		t.Errorf("got %d subtasks, want 1", len(snap.Subtasks))
	}
	if snap.Result == nil || snap.Result.Summary == "" {
		t.Error("completed task has no result summary")
	}
	if snap.ProgressPercent != 100 {
		t.Errorf("ProgressPercent = %v, want 100", snap.ProgressPercent)
	}
}

func TestSubmitComplexTaskFanIn(t *testing.T) {
	orch := newOrchestrator(t, openStore(t), goodCompleter("complex", `"search", "create", "synthesize"`))

	taskID, err := orch.Submit("Research X and implement Y and synthesize a report", nil, models.PriorityHigh)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	snap := waitTerminal(t, orch, taskID)
	if snap.Status != models.TaskStatusCompleted {
		t.Fatalf("Status = %s, want completed (log: %v)", snap.Status, snap.RecentLog)
	}

	// Two work subtasks plus the synthesis fan-in.
	if len(snap.Subtasks) != 3 {
		t.Fatalf("got %d subtasks, want 3", len(snap.Subtasks))
	}
	last := snap.Subtasks[len(snap.Subtasks)-1]
	if !last.Synthesis {
		t.Error("final subtask is not the synthesis fan-in")
	}
	for _, st := range snap.Subtasks {
		if st.Status != models.SubtaskStatusCompleted {
			t.Errorf("subtask %s status = %s, want completed", st.ID, st.Status)
		}
		if st.AssignedAgent == "" {
			t.Errorf("subtask %s has no assigned agent", st.ID)
		}
	}
	if snap.TotalSteps != 2 {
		t.Errorf("TotalSteps = %d, want 2", snap.TotalSteps)
	}
}

func TestPartialFailureNamesRootSubtask(t *testing.T) {
	// The create capability fails; the synthesis fan-in is skipped and
	// the status report must name the create subtask, not the fan-in.
	completer := llm.CompleterFunc(func(ctx context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, `"tier"`) {
			return `{"tier": "complex", "capabilities": ["search", "create"]}`, nil
		}
		if strings.Contains(prompt, "create work") {
			return "", errors.New("permanently broken")
		}
		return "fine", nil
	})
	orch := newOrchestrator(t, openStore(t), completer)

	taskID, err := orch.Submit("Research the design and implement the feature", nil, models.PriorityNormal)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	snap := waitTerminal(t, orch, taskID)
	if snap.Status != models.TaskStatusFailed {
		t.Fatalf("Status = %s, want failed (log: %v)", snap.Status, snap.RecentLog)
	}

	var createSubtask, synthesis *models.Subtask
	for _, st := range snap.Subtasks {
		if st.Synthesis {
			synthesis = st
		} else if len(st.RequiredCapabilities) == 1 && st.RequiredCapabilities[0] == "create" {
			createSubtask = st
		}
	}
	if createSubtask == nil || synthesis == nil {
		t.Fatalf("plan shape unexpected: %+v", snap.Subtasks)
	}

	if createSubtask.Status != models.SubtaskStatusFailed {
		t.Errorf("create subtask status = %s, want failed", createSubtask.Status)
	}
	if synthesis.Status != models.SubtaskStatusSkipped {
		t.Errorf("synthesis status = %s, want skipped", synthesis.Status)
	}
	if snap.FailedSubtaskID != createSubtask.ID {
		t.Errorf("FailedSubtaskID = %s, want the create subtask %s", snap.FailedSubtaskID, createSubtask.ID)
	}
	if snap.FailureReason == "" {
		t.Error("FailureReason not set")
	}
}

func TestFallbackTotalityWithGarbageCompleter(t *testing.T) {
	// Every completion is garbage or an error. Classification must fall
	// back to the heuristic and synthesis to the deterministic merge; the
	// task still completes.
	var calls int
	completer := llm.CompleterFunc(func(ctx context.Context, prompt string) (string, error) {
		calls++
		if calls%2 == 0 {
			return "", errors.New("service exploded")
		}
		return "<<<not json at all>>>", nil
	})
	orch := newOrchestrator(t, openStore(t), completer)

	taskID, err := orch.Submit("Calculate 25*47+123", nil, models.PriorityNormal)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	snap := waitTerminal(t, orch, taskID)
	if snap.Status != models.TaskStatusCompleted && snap.Status != models.TaskStatusFailed {
		t.Fatalf("task never reached a terminal status: %s", snap.Status)
	}
	// With a garbage completer some subtask executions may still fail,
	// but classification and planning must not: the tier is always set.
	if snap.Tier == "" {
		t.Error("heuristic classification did not run")
	}
}

func TestNilCompleterFullyDeterministic(t *testing.T) {
	orch := newOrchestrator(t, openStore(t), nil)

	taskID, err := orch.Submit("Calculate 25*47+123", nil, models.PriorityNormal)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	snap := waitTerminal(t, orch, taskID)
	if snap.Status != models.TaskStatusCompleted {
		t.Fatalf("Status = %s, want completed (log: %v)", snap.Status, snap.RecentLog)
	}
	if snap.Result == nil {
		t.Fatal("no result")
	}
	if !snap.Result.Degraded {
		t.Error("expected degraded synthesis without a completion service")
	}
}

func TestSubmitValidation(t *testing.T) {
	orch := newOrchestrator(t, openStore(t), nil)

	if _, err := orch.Submit("", nil, models.PriorityNormal); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty description error = %v, want ErrInvalidInput", err)
	}
	if _, err := orch.Submit("   ", nil, models.PriorityNormal); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("whitespace description error = %v, want ErrInvalidInput", err)
	}
	if _, err := orch.Submit("fine", nil, models.Priority("urgent")); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("bad priority error = %v, want ErrInvalidInput", err)
	}
}

func TestStatusUnknownTask(t *testing.T) {
	orch := newOrchestrator(t, openStore(t), nil)

	if _, err := orch.Status("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Status(ghost) error = %v, want ErrNotFound", err)
	}
}

func TestPauseValidation(t *testing.T) {
	orch := newOrchestrator(t, openStore(t), nil)

	taskID, err := orch.Submit("Calculate 2+2", nil, models.PriorityNormal)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitTerminal(t, orch, taskID)

	err = orch.Pause(context.Background(), taskID)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Pause on terminal task error = %v, want ErrInvalidTransition", err)
	}

	if err := orch.Resume(taskID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Resume on terminal task error = %v, want ErrInvalidTransition", err)
	}
}

func TestPauseResumeAcrossOrchestrators(t *testing.T) {
	// Pause and resume through separate orchestrator instances sharing
	// the store, as across a process restart. A record stuck in running
	// with no live worker can be paused directly; resume then drives it
	// to completion from the persisted step.
	store := openStore(t)

	first := newOrchestrator(t, store, nil)
	taskID, err := first.Submit("Calculate 2+2", nil, models.PriorityNormal)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitTerminal(t, first, taskID)

	// Rewind the persisted record to mid-run: planned but with the work
	// not yet done, the shape a crash mid-execution leaves behind.
	rec, err := store.Get(taskID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	rec.Status = models.TaskStatusRunning
	rec.Result = nil
	rec.CurrentStep = 0
	for _, st := range rec.Subtasks {
		st.Status = models.SubtaskStatusPending
		st.Result = nil
	}
	rec.CompletedSubtaskIDs = nil
	if err := store.Put(rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	second := newOrchestrator(t, store, nil)

	// No live worker: pause marks the record directly.
	if err := second.Pause(context.Background(), taskID); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	snap, err := second.Status(taskID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if snap.Status != models.TaskStatusPaused {
		t.Fatalf("Status = %s, want paused", snap.Status)
	}

	if err := second.Resume(taskID); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	snap = waitTerminal(t, second, taskID)
	if snap.Status != models.TaskStatusCompleted {
		t.Fatalf("Status after resume = %s, want completed (log: %v)", snap.Status, snap.RecentLog)
	}
}

func TestResumeSkipsCompletedSubtasks(t *testing.T) {
	// A resumed record with some subtasks already completed must not
	// re-execute them.
	store := openStore(t)
	var created atomic.Int32
	completer := llm.CompleterFunc(func(ctx context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, `"tier"`) {
			return `{"tier": "complex", "capabilities": ["search", "create"]}`, nil
		}
		if strings.Contains(prompt, "create work") {
			created.Add(1)
		}
		return "fine", nil
	})

	orch := newOrchestrator(t, store, completer)
	taskID, err := orch.Submit("Research the design and implement the feature", nil, models.PriorityNormal)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitTerminal(t, orch, taskID)

	if created.Load() != 1 {
		t.Fatalf("create invoked %d times during first run, want 1", created.Load())
	}

	// Rewind only the synthesis fan-in and resume: the completed work
	// subtasks stay done.
	rec, err := store.Get(taskID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	rec.Status = models.TaskStatusPaused
	rec.Result = nil
	for _, st := range rec.Subtasks {
		if st.Synthesis {
			st.Status = models.SubtaskStatusPending
			st.Result = nil
		}
	}
	if err := store.Put(rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := orch.Resume(taskID); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	snap := waitTerminal(t, orch, taskID)
	if snap.Status != models.TaskStatusCompleted {
		t.Fatalf("Status = %s, want completed (log: %v)", snap.Status, snap.RecentLog)
	}
	if created.Load() != 1 {
		t.Errorf("create re-invoked on resume: %d calls", created.Load())
	}
}

func TestDeleteLifecycle(t *testing.T) {
	orch := newOrchestrator(t, openStore(t), nil)

	taskID, err := orch.Submit("Calculate 2+2", nil, models.PriorityNormal)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitTerminal(t, orch, taskID)

	list, err := orch.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("List returned %d tasks, want 1", len(list))
	}

	if err := orch.Delete(taskID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := orch.Status(taskID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Status after delete error = %v, want ErrNotFound", err)
	}
	if err := orch.Delete(taskID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double Delete error = %v, want ErrNotFound", err)
	}
}

func TestEventsEmitted(t *testing.T) {
	orch := newOrchestrator(t, openStore(t), nil)

	taskID, err := orch.Submit("Calculate 2+2", nil, models.PriorityNormal)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	seen := make(map[EventType]bool)
	timeout := time.After(10 * time.Second)
	for !seen[EventCompleted] {
		select {
		case ev := <-orch.Events():
			if ev.TaskID == taskID {
				seen[ev.Type] = true
			}
		case <-timeout:
			t.Fatalf("timed out, events seen: %v", seen)
		}
	}

	for _, want := range []EventType{EventSubmitted, EventPlanned, EventRunning, EventCompleted} {
		if !seen[want] {
			t.Errorf("event %s never emitted", want)
		}
	}
}

func TestPauseRequestReachesLeaseHoldingWorker(t *testing.T) {
	// A task whose lease another worker holds cannot be paused by writing
	// the record directly: the lease holder would overwrite it at its next
	// checkpoint. Pause instead flags the record, and the lease holder
	// honors the flag at its next wave boundary.
	store := openStore(t)

	gate := make(chan struct{})
	completer := llm.CompleterFunc(func(ctx context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, `"tier"`) {
			return `{"tier": "complex", "capabilities": ["search", "create"]}`, nil
		}
		if strings.Contains(prompt, "search work") || strings.Contains(prompt, "create work") {
			<-gate
		}
		return "done", nil
	})

	first := newOrchestrator(t, store, completer)
	taskID, err := first.Submit("Research the topic and create a summary", nil, models.PriorityNormal)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Wait until the first wave is in flight, held open by the gate.
	waitFor(t, func() bool {
		rec, err := store.Get(taskID)
		return err == nil && rec.Status == models.TaskStatusRunning &&
			len(rec.Subtasks) > 0 && rec.Subtasks[0].Status == models.SubtaskStatusRunning
	})

	second := newOrchestrator(t, store, completer)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pauseErr := make(chan error, 1)
	go func() { pauseErr <- second.Pause(ctx, taskID) }()

	// The request is persisted but not applied while the wave runs.
	waitFor(t, func() bool {
		rec, err := store.Get(taskID)
		return err == nil && rec.PauseRequested
	})
	midWave, err := store.Get(taskID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if midWave.Status != models.TaskStatusRunning {
		t.Fatalf("mid-wave status = %s, want running", midWave.Status)
	}

	close(gate)
	if err := <-pauseErr; err != nil {
		t.Fatalf("Pause: %v", err)
	}

	rec, err := store.Get(taskID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != models.TaskStatusPaused {
		t.Fatalf("Status = %s, want paused (log: %v)", rec.Status, rec.RecentLog(10))
	}
	if rec.CurrentStep != 1 {
		t.Errorf("CurrentStep = %d, want 1 (paused at the wave boundary)", rec.CurrentStep)
	}
	if rec.PauseRequested {
		t.Error("PauseRequested still set after the pause took effect")
	}
	for _, st := range rec.Subtasks {
		if st.Synthesis && st.Status.Terminal() {
			t.Errorf("synthesis subtask ran to %s despite the pause", st.Status)
		}
	}

	if err := second.Resume(taskID); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	snap := waitTerminal(t, second, taskID)
	if snap.Status != models.TaskStatusCompleted {
		t.Fatalf("Status after resume = %s, want completed (log: %v)", snap.Status, snap.RecentLog)
	}
}

func TestCloseParksInFlightTaskPaused(t *testing.T) {
	// Close must not abandon an in-flight task as running: it requests a
	// pause and waits, so the record lands paused and stays resumable by
	// a later process.
	store := openStore(t)

	gate := make(chan struct{})
	completer := llm.CompleterFunc(func(ctx context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, `"tier"`) {
			<-gate
			return `{"tier": "simple", "capabilities": ["compute"]}`, nil
		}
		return "done", nil
	})

	orch := newOrchestrator(t, store, completer)
	taskID, err := orch.Submit("Calculate the quarterly projection", nil, models.PriorityNormal)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	closeErr := make(chan error, 1)
	go func() { closeErr <- orch.Close() }()
	waitFor(t, orch.isClosed)
	close(gate)
	if err := <-closeErr; err != nil {
		t.Fatalf("Close: %v", err)
	}

	rec, err := store.Get(taskID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != models.TaskStatusPaused {
		t.Fatalf("Status after Close = %s, want paused (log: %v)", rec.Status, rec.RecentLog(10))
	}
	if rec.CurrentStep != 0 {
		t.Errorf("CurrentStep = %d, want 0 (paused before the first wave)", rec.CurrentStep)
	}

	second := newOrchestrator(t, store, completer)
	if err := second.Resume(taskID); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	snap := waitTerminal(t, second, taskID)
	if snap.Status != models.TaskStatusCompleted {
		t.Fatalf("Status after resume = %s, want completed (log: %v)", snap.Status, snap.RecentLog)
	}
}

func TestSubmitAfterCloseRejected(t *testing.T) {
	orch := newOrchestrator(t, openStore(t), nil)
	if err := orch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := orch.Submit("Calculate 1+1", nil, models.PriorityNormal); !errors.Is(err, ErrClosed) {
		t.Fatalf("Submit after Close error = %v, want ErrClosed", err)
	}
	if err := orch.Resume("some-task"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Resume after Close error = %v, want ErrClosed", err)
	}
}

func TestListAgentsAndCapabilities(t *testing.T) {
	orch := newOrchestrator(t, openStore(t), nil)

	agents := orch.ListAgents()
	if len(agents) != 4 {
		t.Errorf("ListAgents returned %d agents, want 4", len(agents))
	}
	caps := orch.ListCapabilities()
	if len(caps) != 5 {
		t.Errorf("ListCapabilities returned %d capabilities, want 5", len(caps))
	}
}
