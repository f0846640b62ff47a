// Package pgstore implements registry.Store and registry.Rollback on top
// of Postgres via pgx/v5, following the teacher's pgxpool + ensureSchema
// bootstrapping pattern. Dedup insertion uses ON CONFLICT DO NOTHING so
// a racing duplicate registration is a no-op rather than a constraint
// error the caller has to special-case.
package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oriys/txgraph/internal/txtypes"
)

// Store is a Postgres-backed registry.Store and registry.Rollback.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn, verifies connectivity, and ensures the registry
// schema exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pgstore: dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: create pool: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS signature_registry (
			program_id TEXT NOT NULL,
			signature  TEXT NOT NULL,
			PRIMARY KEY (program_id, signature)
		)`,
		`CREATE TABLE IF NOT EXISTS program_cursors (
			program_id TEXT PRIMARY KEY,
			signature  TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS program_rollbacks (
			program_id TEXT PRIMARY KEY,
			signature  TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pgstore: ensure schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Register(ctx context.Context, programID txtypes.ProgramID, signature txtypes.Signature) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO signature_registry (program_id, signature) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		programID.String(), signature.String())
	if err != nil {
		return false, fmt.Errorf("pgstore: register: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) IsRegistered(ctx context.Context, programID txtypes.ProgramID, signature txtypes.Signature) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM signature_registry WHERE program_id = $1 AND signature = $2)`,
		programID.String(), signature.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("pgstore: is registered: %w", err)
	}
	return exists, nil
}

func (s *Store) FilterUnregistered(ctx context.Context, programID txtypes.ProgramID, signatures []txtypes.Signature) ([]txtypes.Signature, error) {
	if len(signatures) == 0 {
		return nil, nil
	}
	texts := make([]string, len(signatures))
	for i, sig := range signatures {
		texts[i] = sig.String()
	}
	rows, err := s.pool.Query(ctx,
		`SELECT signature FROM signature_registry WHERE program_id = $1 AND signature = ANY($2)`,
		programID.String(), texts)
	if err != nil {
		return nil, fmt.Errorf("pgstore: filter unregistered: %w", err)
	}
	defer rows.Close()

	registered := make(map[string]struct{})
	for rows.Next() {
		var sig string
		if err := rows.Scan(&sig); err != nil {
			return nil, fmt.Errorf("pgstore: filter unregistered: %w", err)
		}
		registered[sig] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: filter unregistered: %w", err)
	}

	out := make([]txtypes.Signature, 0, len(signatures))
	for i, sig := range signatures {
		if _, ok := registered[texts[i]]; !ok {
			out = append(out, sig)
		}
	}
	return out, nil
}

// InitCursorIfAbsent relies on ON CONFLICT DO NOTHING plus a follow-up
// read inside the same transaction to make the seed-if-absent check
// atomic under concurrent callers.
func (s *Store) InitCursorIfAbsent(ctx context.Context, programID txtypes.ProgramID, initial txtypes.Signature) (txtypes.Signature, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return txtypes.Signature{}, fmt.Errorf("pgstore: init cursor: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO program_cursors (program_id, signature) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		programID.String(), initial.String()); err != nil {
		return txtypes.Signature{}, fmt.Errorf("pgstore: init cursor: %w", err)
	}

	var raw string
	if err := tx.QueryRow(ctx, `SELECT signature FROM program_cursors WHERE program_id = $1`, programID.String()).Scan(&raw); err != nil {
		return txtypes.Signature{}, fmt.Errorf("pgstore: init cursor: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return txtypes.Signature{}, fmt.Errorf("pgstore: init cursor: %w", err)
	}
	sig, err := txtypes.ParseSignature(raw)
	if err != nil {
		return txtypes.Signature{}, fmt.Errorf("pgstore: init cursor: %w", err)
	}
	return sig, nil
}

func (s *Store) GetCursor(ctx context.Context, programID txtypes.ProgramID) (txtypes.Signature, bool, error) {
	var raw string
	err := s.pool.QueryRow(ctx, `SELECT signature FROM program_cursors WHERE program_id = $1`, programID.String()).Scan(&raw)
	if err == pgx.ErrNoRows {
		return txtypes.Signature{}, false, nil
	}
	if err != nil {
		return txtypes.Signature{}, false, fmt.Errorf("pgstore: get cursor: %w", err)
	}
	sig, err := txtypes.ParseSignature(raw)
	if err != nil {
		return txtypes.Signature{}, false, fmt.Errorf("pgstore: get cursor: %w", err)
	}
	return sig, true, nil
}

func (s *Store) SetCursor(ctx context.Context, programID txtypes.ProgramID, signature txtypes.Signature) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO program_cursors (program_id, signature) VALUES ($1, $2)
		 ON CONFLICT (program_id) DO UPDATE SET signature = EXCLUDED.signature`,
		programID.String(), signature.String())
	if err != nil {
		return fmt.Errorf("pgstore: set cursor: %w", err)
	}
	return nil
}

func (s *Store) Stage(ctx context.Context, programID txtypes.ProgramID, signature txtypes.Signature) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO program_rollbacks (program_id, signature) VALUES ($1, $2)
		 ON CONFLICT (program_id) DO UPDATE SET signature = EXCLUDED.signature`,
		programID.String(), signature.String())
	if err != nil {
		return fmt.Errorf("pgstore: stage rollback: %w", err)
	}
	return nil
}

func (s *Store) Drain(ctx context.Context, programID txtypes.ProgramID) (txtypes.Signature, bool, error) {
	var raw string
	err := s.pool.QueryRow(ctx,
		`DELETE FROM program_rollbacks WHERE program_id = $1 RETURNING signature`,
		programID.String()).Scan(&raw)
	if err == pgx.ErrNoRows {
		return txtypes.Signature{}, false, nil
	}
	if err != nil {
		return txtypes.Signature{}, false, fmt.Errorf("pgstore: drain rollback: %w", err)
	}
	sig, err := txtypes.ParseSignature(raw)
	if err != nil {
		return txtypes.Signature{}, false, fmt.Errorf("pgstore: drain rollback: %w", err)
	}
	return sig, true, nil
}
