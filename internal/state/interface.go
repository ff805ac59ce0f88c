// Package state provides SQLite-based persistence for task execution
// records.
package state

import (
	"errors"
	"io"
)

// ErrNotFound indicates no record exists for the requested task ID.
var ErrNotFound = errors.New("task record not found")

// ErrLeaseHeld indicates another worker holds the advisory lease for a
// task.
var ErrLeaseHeld = errors.New("task lease held by another owner")

// RecordStore handles task record persistence.
type RecordStore interface {
	// Get loads a record by task ID. Returns ErrNotFound if absent.
	Get(taskID string) (*TaskRecord, error)
	// Put writes a record, replacing any existing one for the same ID.
	Put(rec *TaskRecord) error
	// Delete removes a record. Deleting an absent record returns
	// ErrNotFound.
	Delete(taskID string) error
	// List returns all records ordered by creation time, newest first.
	List() ([]*TaskRecord, error)
}

// Leaser grants advisory per-task leases. No two orchestrator workers may
// drive the same task concurrently; the lease enforces that.
type Leaser interface {
	// Acquire takes the lease for a task on behalf of owner. Returns
	// ErrLeaseHeld if a different owner holds it.
	Acquire(taskID, owner string) error
	// Release frees the lease if owner holds it.
	Release(taskID, owner string) error
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store is the persistence interface the orchestrator depends on. It
// composes focused sub-interfaces so tests can fake only what they need.
type Store interface {
	io.Closer
	Migrator
	RecordStore
	Leaser
}

// Compile-time verification that DB implements Store.
var _ Store = (*DB)(nil)
