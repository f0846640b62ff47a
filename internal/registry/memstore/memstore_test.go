package memstore

import (
	"context"
	"testing"

	"github.com/oriys/txgraph/internal/txtypes"
)

func mustID(t *testing.T, s string) txtypes.ProgramID {
	t.Helper()
	id, err := txtypes.ParseProgramID(s)
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return id
}

func TestRegister_DuplicateReportsFalse(t *testing.T) {
	ctx := context.Background()
	s := New()
	pid := mustID(t, "11111111111111111111111111111111")
	var sig txtypes.Signature
	sig[0] = 1

	first, err := s.Register(ctx, pid, sig)
	if err != nil || !first {
		t.Fatalf("want first registration to succeed, got %v, %v", first, err)
	}
	second, err := s.Register(ctx, pid, sig)
	if err != nil || second {
		t.Fatalf("want duplicate registration to report false, got %v, %v", second, err)
	}
}

func TestInitCursorIfAbsent_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := New()
	pid := mustID(t, "11111111111111111111111111111111")
	var first, second txtypes.Signature
	first[0] = 1
	second[0] = 2

	got, err := s.InitCursorIfAbsent(ctx, pid, first)
	if err != nil || got != first {
		t.Fatalf("want %v, got %v, %v", first, got, err)
	}
	got, err = s.InitCursorIfAbsent(ctx, pid, second)
	if err != nil || got != first {
		t.Fatalf("second call must not overwrite: want %v, got %v, %v", first, got, err)
	}
}

func TestRollback_DrainOnce(t *testing.T) {
	ctx := context.Background()
	s := New()
	pid := mustID(t, "11111111111111111111111111111111")
	var staged txtypes.Signature
	staged[0] = 42

	if err := s.Stage(ctx, pid, staged); err != nil {
		t.Fatalf("stage: %v", err)
	}
	sig, ok, err := s.Drain(ctx, pid)
	if err != nil || !ok || sig != staged {
		t.Fatalf("want (%v, true), got (%v, %v, %v)", staged, sig, ok, err)
	}
	_, ok, err = s.Drain(ctx, pid)
	if err != nil || ok {
		t.Fatalf("second drain must be empty, got ok=%v err=%v", ok, err)
	}
}
