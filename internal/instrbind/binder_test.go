package instrbind

import (
	"testing"

	"github.com/oriys/txgraph/internal/codec"
	"github.com/oriys/txgraph/internal/txtypes"
)

const (
	progP = "11111111111111111111111111111111"
	progQ = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

type allWritableSigner struct{ signers map[int]bool }

func (a allWritableSigner) IsSigner(i int) bool      { return a.signers[i] }
func (a allWritableSigner) IsMaybeWritable(int) bool { return true }

func mustID(t *testing.T, s string) txtypes.ProgramID {
	t.Helper()
	id, err := txtypes.ParseProgramID(s)
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return id
}

func TestBind_TopLevelAndInner(t *testing.T) {
	pID := mustID(t, progP)
	qID := mustID(t, progQ)

	msg := Message{
		StaticKeys: []txtypes.ProgramID{pID, qID},
		Flags:      allWritableSigner{signers: map[int]bool{0: true}},
		Instructions: []CompiledInstruction{
			{ProgramIDIndex: 0, AccountIndices: []int{0, 1}, DataBase58: codec.EncodeB58([]byte{1, 2, 3})},
		},
		InnerByOuter: []InnerInstructionEntry{
			{
				Index: 0,
				Instructions: []CompiledInstruction{
					{ProgramIDIndex: 1, AccountIndices: []int{0}, DataBase58: codec.EncodeB58([]byte{9})},
				},
			},
		},
	}

	out, err := Bind(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("want 2 bound instructions, got %d", len(out))
	}

	topCtx := txtypes.InstructionContext{ProgramID: pID, CallIndex: 0}
	top, ok := out[topCtx]
	if !ok {
		t.Fatalf("missing top-level context: %+v", out)
	}
	if top.Outer != nil {
		t.Fatalf("top-level outer should be nil, got %v", top.Outer)
	}
	if !top.Instruction.Accounts[0].IsSigner || !top.Instruction.Accounts[0].IsWritable {
		t.Fatalf("account flags not applied: %+v", top.Instruction.Accounts[0])
	}

	innerCtx := txtypes.InstructionContext{ProgramID: qID, CallIndex: 0}
	inner, ok := out[innerCtx]
	if !ok {
		t.Fatalf("missing inner context: %+v", out)
	}
	if inner.Outer == nil || *inner.Outer != pID {
		t.Fatalf("inner outer mismatch: %+v", inner.Outer)
	}
}

func TestBind_CallIndexSharedAcrossOuterAndInner(t *testing.T) {
	pID := mustID(t, progP)

	msg := Message{
		StaticKeys: []txtypes.ProgramID{pID},
		Flags:      allWritableSigner{},
		Instructions: []CompiledInstruction{
			{ProgramIDIndex: 0, AccountIndices: nil, DataBase58: codec.EncodeB58([]byte{1})},
			{ProgramIDIndex: 0, AccountIndices: nil, DataBase58: codec.EncodeB58([]byte{2})},
		},
	}

	out, err := Bind(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, idx := range []txtypes.CallIndex{0, 1} {
		ctx := txtypes.InstructionContext{ProgramID: pID, CallIndex: idx}
		if _, ok := out[ctx]; !ok {
			t.Fatalf("missing call index %d", idx)
		}
	}
}

func TestBind_ParsedInnerRejected(t *testing.T) {
	pID := mustID(t, progP)
	msg := Message{
		StaticKeys: []txtypes.ProgramID{pID},
		Flags:      allWritableSigner{},
		Instructions: []CompiledInstruction{
			{ProgramIDIndex: 0, DataBase58: codec.EncodeB58([]byte{1})},
		},
		InnerByOuter: []InnerInstructionEntry{
			{Index: 0, Parsed: true},
		},
	}
	if _, err := Bind(msg); err == nil {
		t.Fatal("expected ParsedInnerInstructionNotSupported error")
	}
}
