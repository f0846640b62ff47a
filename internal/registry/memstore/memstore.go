// Package memstore is an in-process registry.Store and registry.Rollback
// backed by a mutex-guarded map, in the style of the teacher's in-memory
// checkpoint store: suitable for tests and single-instance deployments
// where durability across restarts is not required.
package memstore

import (
	"context"
	"sync"

	"github.com/oriys/txgraph/internal/txtypes"
)

type dedupKey struct {
	ProgramID txtypes.ProgramID
	Signature txtypes.Signature
}

// Store is an in-memory registry.Store and registry.Rollback.
type Store struct {
	mu        sync.RWMutex
	seen      map[dedupKey]struct{}
	cursors   map[txtypes.ProgramID]txtypes.Signature
	rollbacks map[txtypes.ProgramID]txtypes.Signature
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		seen:      make(map[dedupKey]struct{}),
		cursors:   make(map[txtypes.ProgramID]txtypes.Signature),
		rollbacks: make(map[txtypes.ProgramID]txtypes.Signature),
	}
}

func (s *Store) Register(_ context.Context, programID txtypes.ProgramID, signature txtypes.Signature) (bool, error) {
	key := dedupKey{ProgramID: programID, Signature: signature}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return false, nil
	}
	s.seen[key] = struct{}{}
	return true, nil
}

func (s *Store) IsRegistered(_ context.Context, programID txtypes.ProgramID, signature txtypes.Signature) (bool, error) {
	key := dedupKey{ProgramID: programID, Signature: signature}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[key]
	return ok, nil
}

func (s *Store) FilterUnregistered(_ context.Context, programID txtypes.ProgramID, signatures []txtypes.Signature) ([]txtypes.Signature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]txtypes.Signature, 0, len(signatures))
	for _, sig := range signatures {
		if _, ok := s.seen[dedupKey{ProgramID: programID, Signature: sig}]; !ok {
			out = append(out, sig)
		}
	}
	return out, nil
}

func (s *Store) InitCursorIfAbsent(_ context.Context, programID txtypes.ProgramID, initial txtypes.Signature) (txtypes.Signature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.cursors[programID]; ok {
		return existing, nil
	}
	s.cursors[programID] = initial
	return initial, nil
}

func (s *Store) GetCursor(_ context.Context, programID txtypes.ProgramID) (txtypes.Signature, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sig, ok := s.cursors[programID]
	return sig, ok, nil
}

func (s *Store) SetCursor(_ context.Context, programID txtypes.ProgramID, signature txtypes.Signature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[programID] = signature
	return nil
}

func (s *Store) Stage(_ context.Context, programID txtypes.ProgramID, signature txtypes.Signature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollbacks[programID] = signature
	return nil
}

func (s *Store) Drain(_ context.Context, programID txtypes.ProgramID) (txtypes.Signature, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.rollbacks[programID]
	if ok {
		delete(s.rollbacks, programID)
	}
	return sig, ok, nil
}
