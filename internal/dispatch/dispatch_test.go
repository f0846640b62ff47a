package dispatch

import (
	"encoding/base64"
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

func TestDispatchInstruction_OwnerMismatch(t *testing.T) {
	owner := mustID(t, "11111111111111111111111111111111")
	other := mustID(t, "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

	tbl := NewTable()
	ctx := txtypes.ProgramContext{ProgramID: owner, CallIndex: 0, InvokeLevel: 1}
	ix := txtypes.Instruction{ProgramID: other, Data: make([]byte, 8)}

	if _, err := tbl.DispatchInstruction(ctx, ix); err == nil {
		t.Fatal("expected error for program id mismatch")
	}
}

func TestDispatchInstruction_Match(t *testing.T) {
	owner := mustID(t, "11111111111111111111111111111111")
	tbl := NewTable()

	var called bool
	disc := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	tbl.RegisterInstruction(owner, disc, func(ctx txtypes.ProgramContext, ix txtypes.Instruction) error {
		called = true
		return nil
	})

	ctx := txtypes.ProgramContext{ProgramID: owner, CallIndex: 0, InvokeLevel: 1}
	data := append(disc[:], []byte{9, 9}...)
	ix := txtypes.Instruction{ProgramID: owner, Data: data}

	ok, err := tbl.DispatchInstruction(ctx, ix)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || !called {
		t.Fatalf("want handler invoked, ok=%v called=%v", ok, called)
	}
}

func TestDispatchInstruction_NoMatch(t *testing.T) {
	owner := mustID(t, "11111111111111111111111111111111")
	tbl := NewTable()
	ctx := txtypes.ProgramContext{ProgramID: owner, CallIndex: 0, InvokeLevel: 1}
	ix := txtypes.Instruction{ProgramID: owner, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}}

	ok, err := tbl.DispatchInstruction(ctx, ix)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("want ok=false for unregistered discriminator")
	}
}

func TestDispatchEvent_Match(t *testing.T) {
	owner := mustID(t, "11111111111111111111111111111111")
	tbl := NewTable()

	disc := [8]byte{10, 20, 30, 40, 50, 60, 70, 80}
	var gotCtx txtypes.ProgramContext
	tbl.RegisterEvent(owner, disc, func(ctx txtypes.ProgramContext, raw []byte) error {
		gotCtx = ctx
		return nil
	})

	payload := append(append([]byte{}, disc[:]...), []byte{1}...)
	b64 := base64.StdEncoding.EncodeToString(payload)

	ctx := txtypes.ProgramContext{ProgramID: owner, CallIndex: 2, InvokeLevel: 1}
	ok, err := tbl.DispatchEvent(ctx, owner, b64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || gotCtx != ctx {
		t.Fatalf("want matched dispatch with ctx propagated, ok=%v gotCtx=%+v", ok, gotCtx)
	}
}
