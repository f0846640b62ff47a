// Package registry abstracts the dedup store and per-program-id cursor the
// tailing engine needs to avoid reprocessing a signature twice and to know
// where a resync should resume (spec §6). Three backends are provided:
// memstore for tests and single-process deployments, redisstore and
// pgstore for the concurrent/multi-instance case.
package registry

import (
	"context"

	"github.com/oriys/txgraph/internal/txtypes"
)

// Store is the contract the Live Task and Resync Task depend on. All
// methods must be safe for concurrent use, since both tasks and their
// worker pools call into the same Store.
type Store interface {
	// Register marks signature as seen for programID. It reports whether
	// this call newly registered it (false means it was already present,
	// i.e. a duplicate delivery).
	Register(ctx context.Context, programID txtypes.ProgramID, signature txtypes.Signature) (newlyRegistered bool, err error)

	// IsRegistered reports whether signature has already been registered
	// for programID.
	IsRegistered(ctx context.Context, programID txtypes.ProgramID, signature txtypes.Signature) (bool, error)

	// FilterUnregistered returns the subset of signatures not yet
	// registered for programID, preserving input order.
	FilterUnregistered(ctx context.Context, programID txtypes.ProgramID, signatures []txtypes.Signature) ([]txtypes.Signature, error)

	// InitCursorIfAbsent atomically sets the cursor for programID to
	// initial if and only if no cursor currently exists. It returns the
	// cursor now in effect, which is initial only when this call won the
	// race to set it.
	InitCursorIfAbsent(ctx context.Context, programID txtypes.ProgramID, initial txtypes.Signature) (txtypes.Signature, error)

	// GetCursor returns the current cursor (the last signature past which
	// resync has committed) for programID and whether one has ever been set.
	GetCursor(ctx context.Context, programID txtypes.ProgramID) (signature txtypes.Signature, ok bool, err error)

	// SetCursor unconditionally advances the cursor for programID.
	SetCursor(ctx context.Context, programID txtypes.ProgramID, signature txtypes.Signature) error
}

// Rollback is a single-slot, operator-overridable cell: an operator (or an
// administrative tool) can stage a signature to rewind a program's cursor
// to on its next commit. Overriding rollback is an Engine behavior, not a
// Store behavior, so it is modeled as a separate small interface backed by
// the same storage the Store uses.
type Rollback interface {
	// Stage records signature as the next rollback target for programID,
	// overwriting any previously staged value.
	Stage(ctx context.Context, programID txtypes.ProgramID, signature txtypes.Signature) error

	// Drain atomically removes and returns the staged rollback target for
	// programID, if any. It is called once per cursor commit so a staged
	// value is consumed exactly once.
	Drain(ctx context.Context, programID txtypes.ProgramID) (signature txtypes.Signature, ok bool, err error)
}
