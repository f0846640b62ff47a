// Package redisstore implements registry.Store and registry.Rollback on
// top of Redis, the way the teacher's cache and rate-limit backends wrap
// go-redis: a thin struct around *redis.Client with a namespacing key
// prefix, using atomic single commands (SETNX, GETDEL) instead of
// client-side read-modify-write.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/oriys/txgraph/internal/txtypes"
)

// Store is a Redis-backed registry.Store and registry.Rollback.
type Store struct {
	client *redis.Client
	prefix string
}

// New creates a Redis-backed registry store. prefix namespaces keys;
// "txgraph:" is used when prefix is empty.
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "txgraph:"
	}
	return &Store{client: client, prefix: prefix}
}

// dedupSetKey is a per-program Redis set of registered signatures, so a
// program with many signatures costs one key rather than one per signature.
func (s *Store) dedupSetKey(programID txtypes.ProgramID) string {
	return fmt.Sprintf("%sreg:%s", s.prefix, programID)
}

func (s *Store) cursorKey(programID txtypes.ProgramID) string {
	return fmt.Sprintf("%scursor:%s", s.prefix, programID)
}

func (s *Store) rollbackKey(programID txtypes.ProgramID) string {
	return fmt.Sprintf("%srollback:%s", s.prefix, programID)
}

func (s *Store) Register(ctx context.Context, programID txtypes.ProgramID, signature txtypes.Signature) (bool, error) {
	n, err := s.client.SAdd(ctx, s.dedupSetKey(programID), signature.String()).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore register: %w", err)
	}
	return n == 1, nil
}

func (s *Store) IsRegistered(ctx context.Context, programID txtypes.ProgramID, signature txtypes.Signature) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.dedupSetKey(programID), signature.String()).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore is registered: %w", err)
	}
	return ok, nil
}

func (s *Store) FilterUnregistered(ctx context.Context, programID txtypes.ProgramID, signatures []txtypes.Signature) ([]txtypes.Signature, error) {
	if len(signatures) == 0 {
		return nil, nil
	}
	members := make([]interface{}, len(signatures))
	for i, sig := range signatures {
		members[i] = sig.String()
	}
	hits, err := s.client.SMIsMember(ctx, s.dedupSetKey(programID), members...).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore filter unregistered: %w", err)
	}
	out := make([]txtypes.Signature, 0, len(signatures))
	for i, isMember := range hits {
		if !isMember {
			out = append(out, signatures[i])
		}
	}
	return out, nil
}

// InitCursorIfAbsent uses SETNX so that a concurrent caller racing to seed
// the same program's cursor never overwrites a value another instance
// already won the race to set.
func (s *Store) InitCursorIfAbsent(ctx context.Context, programID txtypes.ProgramID, initial txtypes.Signature) (txtypes.Signature, error) {
	key := s.cursorKey(programID)
	ok, err := s.client.SetNX(ctx, key, initial.String(), 0).Result()
	if err != nil {
		return txtypes.Signature{}, fmt.Errorf("redisstore init cursor: %w", err)
	}
	if ok {
		return initial, nil
	}
	sig, _, err := s.GetCursor(ctx, programID)
	return sig, err
}

func (s *Store) GetCursor(ctx context.Context, programID txtypes.ProgramID) (txtypes.Signature, bool, error) {
	raw, err := s.client.Get(ctx, s.cursorKey(programID)).Result()
	if errors.Is(err, redis.Nil) {
		return txtypes.Signature{}, false, nil
	}
	if err != nil {
		return txtypes.Signature{}, false, fmt.Errorf("redisstore get cursor: %w", err)
	}
	sig, err := txtypes.ParseSignature(raw)
	if err != nil {
		return txtypes.Signature{}, false, fmt.Errorf("redisstore get cursor: %w", err)
	}
	return sig, true, nil
}

func (s *Store) SetCursor(ctx context.Context, programID txtypes.ProgramID, signature txtypes.Signature) error {
	if err := s.client.Set(ctx, s.cursorKey(programID), signature.String(), 0).Err(); err != nil {
		return fmt.Errorf("redisstore set cursor: %w", err)
	}
	return nil
}

func (s *Store) Stage(ctx context.Context, programID txtypes.ProgramID, signature txtypes.Signature) error {
	if err := s.client.Set(ctx, s.rollbackKey(programID), signature.String(), 0).Err(); err != nil {
		return fmt.Errorf("redisstore stage rollback: %w", err)
	}
	return nil
}

// Drain uses GETDEL so the staged value is removed atomically with the
// read that consumes it.
func (s *Store) Drain(ctx context.Context, programID txtypes.ProgramID) (txtypes.Signature, bool, error) {
	raw, err := s.client.GetDel(ctx, s.rollbackKey(programID)).Result()
	if errors.Is(err, redis.Nil) {
		return txtypes.Signature{}, false, nil
	}
	if err != nil {
		return txtypes.Signature{}, false, fmt.Errorf("redisstore drain rollback: %w", err)
	}
	sig, err := txtypes.ParseSignature(raw)
	if err != nil {
		return txtypes.Signature{}, false, fmt.Errorf("redisstore drain rollback: %w", err)
	}
	return sig, true, nil
}
