package reconstruct

import (
	"errors"
	"testing"

	"github.com/oriys/txgraph/internal/logline"
	"github.com/oriys/txgraph/internal/parseerr"
	"github.com/oriys/txgraph/internal/txtypes"
)

const (
	progP = "11111111111111111111111111111111"
	progQ = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

func classifyAll(t *testing.T, raw []string) []logline.Line {
	t.Helper()
	lines := make([]logline.Line, 0, len(raw))
	for i, r := range raw {
		l, err := logline.Classify(i, r)
		if err != nil {
			t.Fatalf("classify %d (%q): %v", i, r, err)
		}
		lines = append(lines, l)
	}
	return lines
}

// Boundary scenario 1: nested single-program sequence.
func TestReconstruct_NestedSequence(t *testing.T) {
	lines := classifyAll(t, []string{
		"Program " + progP + " invoke [1]",
		"Program log: L1",
		"Program " + progQ + " invoke [2]",
		"Program " + progQ + " success",
		"Program log: L2",
		"Program " + progP + " success",
	})

	out, err := Reconstruct(lines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("want 2 entries, got %d", len(out))
	}

	pID, _ := txtypes.ParseProgramID(progP)
	qID, _ := txtypes.ParseProgramID(progQ)
	pCtx := txtypes.ProgramContext{ProgramID: pID, CallIndex: 0, InvokeLevel: 1}
	qCtx := txtypes.ProgramContext{ProgramID: qID, CallIndex: 0, InvokeLevel: 2}

	pEvents, ok := out[pCtx]
	if !ok {
		t.Fatalf("missing key for P: %+v", out)
	}
	if len(pEvents) != 3 {
		t.Fatalf("want 3 events for P, got %d: %+v", len(pEvents), pEvents)
	}
	if pEvents[0].Kind != txtypes.ProgramLogLog || pEvents[0].Text != "L1" {
		t.Fatalf("event 0 mismatch: %+v", pEvents[0])
	}
	if pEvents[1].Kind != txtypes.ProgramLogInvoke || pEvents[1].Invoke != qCtx {
		t.Fatalf("event 1 mismatch: %+v", pEvents[1])
	}
	if pEvents[2].Kind != txtypes.ProgramLogLog || pEvents[2].Text != "L2" {
		t.Fatalf("event 2 mismatch: %+v", pEvents[2])
	}

	qEvents, ok := out[qCtx]
	if !ok || len(qEvents) != 0 {
		t.Fatalf("want empty entry for Q, got %+v (present=%v)", qEvents, ok)
	}
}

// Boundary scenario 2: truncation mid-flight returns the partial map cleanly.
func TestReconstruct_TruncatedMidFlight(t *testing.T) {
	lines := classifyAll(t, []string{
		"Program " + progP + " invoke [1]",
		"Program log: L1",
		"Program " + progQ + " invoke [2]",
		"Program " + progQ + " success",
		"Log truncated",
	})

	out, err := Reconstruct(lines)
	if err != nil {
		t.Fatalf("truncation must not error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("want 2 entries, got %d", len(out))
	}
}

// Boundary scenario 3: misplaced consumed.
func TestReconstruct_MisplacedConsumed(t *testing.T) {
	lines := classifyAll(t, []string{
		"Program " + progP + " invoke [1]",
		"Program " + progQ + " consumed 1 of 2 compute units",
	})

	_, err := Reconstruct(lines)
	var mc *parseerr.MissplacedConsumed
	if !errors.As(err, &mc) {
		t.Fatalf("want MissplacedConsumed, got %v (%T)", err, err)
	}
	if mc.Index != 1 {
		t.Fatalf("want index 1, got %d", mc.Index)
	}
}

// Boundary scenario 4: failed inner invocation aborts the whole reconstruction.
func TestReconstruct_FailedInner(t *testing.T) {
	lines := classifyAll(t, []string{
		"Program " + progP + " invoke [1]",
		"Program " + progQ + " invoke [2]",
		"Program " + progQ + " failed: custom 0x1",
	})

	_, err := Reconstruct(lines)
	var el *parseerr.ErrorLog
	if !errors.As(err, &el) {
		t.Fatalf("want ErrorLog, got %v (%T)", err, err)
	}
	if el.Index != 2 || el.Err != "custom 0x1" {
		t.Fatalf("got %+v", el)
	}
}

func TestReconstruct_UnexpectedProgramResult(t *testing.T) {
	lines := classifyAll(t, []string{
		"Program " + progP + " invoke [1]",
		"Program " + progQ + " success",
	})
	_, err := Reconstruct(lines)
	var up *parseerr.UnexpectedProgramResult
	if !errors.As(err, &up) {
		t.Fatalf("want UnexpectedProgramResult, got %v (%T)", err, err)
	}
}

func TestReconstruct_InvokeDepthMismatch(t *testing.T) {
	lines := classifyAll(t, []string{
		"Program " + progP + " invoke [2]",
	})
	_, err := Reconstruct(lines)
	var dm *parseerr.InvokeDepthMismatch
	if !errors.As(err, &dm) {
		t.Fatalf("want InvokeDepthMismatch, got %v (%T)", err, err)
	}
}

func TestReconstruct_EmptyInvokeLogContext(t *testing.T) {
	lines := classifyAll(t, []string{
		"Program log: orphaned",
	})
	_, err := Reconstruct(lines)
	var ec *parseerr.EmptyInvokeLogContext
	if !errors.As(err, &ec) {
		t.Fatalf("want EmptyInvokeLogContext, got %v (%T)", err, err)
	}
}

// P3: call_index values for a given program_id are exactly 0..k-1 without gaps.
func TestReconstruct_CallIndexSequencing(t *testing.T) {
	lines := classifyAll(t, []string{
		"Program " + progP + " invoke [1]",
		"Program " + progQ + " invoke [2]",
		"Program " + progQ + " success",
		"Program " + progQ + " invoke [2]",
		"Program " + progQ + " success",
		"Program " + progP + " success",
	})
	out, err := Reconstruct(lines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	qID, _ := txtypes.ParseProgramID(progQ)
	for _, idx := range []txtypes.CallIndex{0, 1} {
		ctx := txtypes.ProgramContext{ProgramID: qID, CallIndex: idx, InvokeLevel: 2}
		if _, ok := out[ctx]; !ok {
			t.Fatalf("missing call index %d for Q", idx)
		}
	}
}
