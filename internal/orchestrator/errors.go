package orchestrator

import "errors"

// ErrNotFound indicates an operation referenced an unknown task ID.
var ErrNotFound = errors.New("task not found")

// ErrInvalidInput indicates a malformed submission. The task is never
// created.
var ErrInvalidInput = errors.New("invalid input")

// ErrInvalidTransition indicates pause or resume was called from an
// incompatible task state. No state is mutated.
var ErrInvalidTransition = errors.New("invalid state transition")

// ErrClosed indicates the orchestrator was closed and accepts no new work.
var ErrClosed = errors.New("orchestrator closed")
