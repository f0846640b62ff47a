package parseerr

import (
	"fmt"

	"github.com/oriys/txgraph/internal/txtypes"
)

// BadLine carries the offending line text and its index in the stream,
// plus a short machine-stable reason classifying why no known shape
// matched it. The reason is for operator debugging, not control flow:
// an unrecognized line still aborts classification (spec §4.1 has no
// lenient fallback).
type BadLine struct {
	Index  int
	Text   string
	Reason string
}

func (e *BadLine) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("bad log line at index %d (%s): %q", e.Index, e.Reason, e.Text)
	}
	return fmt.Sprintf("bad log line at index %d: %q", e.Index, e.Text)
}
func (e *BadLine) Unwrap() error { return ErrBadLine }

// WrongPubkeySize carries the field that failed to decode to 32 bytes.
type WrongPubkeySize struct {
	Index int
	Field string
}

func (e *WrongPubkeySize) Error() string {
	return fmt.Sprintf("wrong pubkey size at index %d (field %q)", e.Index, e.Field)
}
func (e *WrongPubkeySize) Unwrap() error { return ErrWrongPubkeySize }

// UnexpectedProgramResult: a Success line popped a context whose program id
// did not match.
type UnexpectedProgramResult struct {
	Index    int
	Expected txtypes.ProgramID
	Got      txtypes.ProgramID
}

func (e *UnexpectedProgramResult) Error() string {
	return fmt.Sprintf("unexpected program result at index %d: stack top %s, success reported for %s",
		e.Index, e.Expected, e.Got)
}
func (e *UnexpectedProgramResult) Unwrap() error { return ErrUnexpectedProgramResult }

// MissplacedConsumed: a Consumed line's program id did not match the top of stack.
type MissplacedConsumed struct {
	Index    int
	Expected txtypes.ProgramID
	Got      txtypes.ProgramID
}

func (e *MissplacedConsumed) Error() string {
	return fmt.Sprintf("misplaced consumed at index %d: expected %s, got %s", e.Index, e.Expected, e.Got)
}
func (e *MissplacedConsumed) Unwrap() error { return ErrMissplacedConsumed }

// EmptyInvokeLogContext: an event line arrived with no invocation on the stack.
type EmptyInvokeLogContext struct {
	Index int
}

func (e *EmptyInvokeLogContext) Error() string {
	return fmt.Sprintf("log event at index %d with no active invocation context", e.Index)
}
func (e *EmptyInvokeLogContext) Unwrap() error { return ErrEmptyInvokeLogContext }

// InvokeDepthMismatch: an Invoke [L] line arrived when the stack depth
// after pushing would not equal L.
type InvokeDepthMismatch struct {
	Index         int
	ExpectedDepth int
	ReportedDepth int
}

func (e *InvokeDepthMismatch) Error() string {
	return fmt.Sprintf("invoke depth mismatch at index %d: stack depth %d, reported [%d]",
		e.Index, e.ExpectedDepth, e.ReportedDepth)
}
func (e *InvokeDepthMismatch) Unwrap() error { return ErrInvokeDepthMismatch }

// ErrorLog: a Failed line aborted reconstruction.
type ErrorLog struct {
	ProgramID txtypes.ProgramID
	Err       string
	Index     int
}

func (e *ErrorLog) Error() string {
	return fmt.Sprintf("program %s failed at index %d: %s", e.ProgramID, e.Index, e.Err)
}
func (e *ErrorLog) Unwrap() error { return ErrErrorLog }

// ErrorCompleteLog: a "Program failed to complete" line aborted reconstruction.
type ErrorCompleteLog struct {
	Err   string
	Index int
}

func (e *ErrorCompleteLog) Error() string {
	return fmt.Sprintf("program failed to complete at index %d: %s", e.Index, e.Err)
}
func (e *ErrorCompleteLog) Unwrap() error { return ErrErrorCompleteLog }

// InstructionLogsConsistency: the Joiner could not match a ProgramContext to
// an InstructionContext, or the outer/invoke-level parity check failed.
type InstructionLogsConsistency struct {
	Context txtypes.ProgramContext
	Reason  string
}

func (e *InstructionLogsConsistency) Error() string {
	return fmt.Sprintf("instruction/log consistency violation at %s: %s", e.Context, e.Reason)
}
func (e *InstructionLogsConsistency) Unwrap() error { return ErrInstructionLogsConsistency }

// SignatureParse: a subscription message's signature field failed to decode.
type SignatureParse struct {
	Raw string
	Err error
}

func (e *SignatureParse) Error() string {
	return fmt.Sprintf("could not parse signature %q: %v", e.Raw, e.Err)
}
func (e *SignatureParse) Unwrap() error { return ErrSignatureParse }
