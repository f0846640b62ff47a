package txjoin

import (
	"errors"
	"testing"

	"github.com/oriys/txgraph/internal/parseerr"
	"github.com/oriys/txgraph/internal/txtypes"
)

const (
	progP = "11111111111111111111111111111111"
	progQ = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

func mustID(t *testing.T, s string) txtypes.ProgramID {
	t.Helper()
	id, err := txtypes.ParseProgramID(s)
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return id
}

func TestJoin_NestedInvoke(t *testing.T) {
	pID := mustID(t, progP)
	qID := mustID(t, progQ)

	pTop := txtypes.ProgramContext{ProgramID: pID, CallIndex: 0, InvokeLevel: 1}
	qInner := txtypes.ProgramContext{ProgramID: qID, CallIndex: 0, InvokeLevel: 2}

	bound := map[txtypes.InstructionContext]BoundEntry{
		pTop.Instruction():   {Instruction: txtypes.Instruction{ProgramID: pID}, Outer: nil},
		qInner.Instruction(): {Instruction: txtypes.Instruction{ProgramID: qID}, Outer: &pID},
	}
	reconstructed := map[txtypes.ProgramContext][]txtypes.ProgramLog{
		pTop:   {txtypes.InvokeEvent(qInner)},
		qInner: {},
	}

	out, err := Join(Input{Bound: bound, Reconstructed: reconstructed, Slot: 42})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Meta) != 2 {
		t.Fatalf("want 2 meta entries, got %d", len(out.Meta))
	}
	if parent, ok := out.ParentIx[qInner]; !ok || parent != pTop {
		t.Fatalf("want parent of qInner to be pTop, got %+v (ok=%v)", parent, ok)
	}
}

func TestJoin_MissingBinderEntry(t *testing.T) {
	pID := mustID(t, progP)
	pTop := txtypes.ProgramContext{ProgramID: pID, CallIndex: 0, InvokeLevel: 1}

	reconstructed := map[txtypes.ProgramContext][]txtypes.ProgramLog{pTop: {}}

	_, err := Join(Input{Bound: map[txtypes.InstructionContext]BoundEntry{}, Reconstructed: reconstructed})
	var ic *parseerr.InstructionLogsConsistency
	if !errors.As(err, &ic) {
		t.Fatalf("want InstructionLogsConsistency, got %v (%T)", err, err)
	}
}

func TestJoin_OuterInvokeLevelParityViolation(t *testing.T) {
	pID := mustID(t, progP)
	// InvokeLevel 2 but Outer nil: violates (outer==nil) <=> (level==1).
	ctx := txtypes.ProgramContext{ProgramID: pID, CallIndex: 0, InvokeLevel: 2}

	bound := map[txtypes.InstructionContext]BoundEntry{
		ctx.Instruction(): {Instruction: txtypes.Instruction{ProgramID: pID}, Outer: nil},
	}
	reconstructed := map[txtypes.ProgramContext][]txtypes.ProgramLog{ctx: {}}

	_, err := Join(Input{Bound: bound, Reconstructed: reconstructed})
	var ic *parseerr.InstructionLogsConsistency
	if !errors.As(err, &ic) {
		t.Fatalf("want InstructionLogsConsistency, got %v (%T)", err, err)
	}
}

func TestJoin_LamportsChanges(t *testing.T) {
	pID := mustID(t, progP)
	in := Input{
		Bound:         map[txtypes.InstructionContext]BoundEntry{},
		Reconstructed: map[txtypes.ProgramContext][]txtypes.ProgramLog{},
		Accounts:      []txtypes.ProgramID{pID},
		PreBalances:   []uint64{1000},
		PostBalances:  []uint64{700},
	}
	out, err := Join(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	delta, ok := out.LamportsChanges[pID]
	if !ok {
		t.Fatalf("missing lamports delta for %s", pID)
	}
	if delta.Sign() >= 0 || delta.Int64() != -300 {
		t.Fatalf("want delta -300, got %s", delta.String())
	}
}

func TestJoin_TokenBalancesChanges_Asymmetric(t *testing.T) {
	pID := mustID(t, progP)
	mint := mustID(t, progQ)
	wallet := txtypes.WalletContext{WalletAddress: pID, TokenMint: mint}

	in := Input{
		Bound:         map[txtypes.InstructionContext]BoundEntry{},
		Reconstructed: map[txtypes.ProgramContext][]txtypes.ProgramLog{},
		PreTokenBalances: []TokenBalance{
			{AccountIndex: 0, Wallet: wallet, AmountRaw: 500},
		},
		// No post balance: account closed during the transaction.
	}
	out, err := Join(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	delta, ok := out.TokenBalancesChanges[wallet]
	if !ok {
		t.Fatalf("missing token balance delta for %+v", wallet)
	}
	if delta.Int64() != -500 {
		t.Fatalf("want delta -500, got %s", delta.String())
	}
}
