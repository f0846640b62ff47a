// Package txtypes holds the data model shared by the log reconstructor,
// instruction binder, transaction joiner, and event dispatcher: the
// identity keys (ProgramID, Signature, ProgramContext, InstructionContext)
// and the per-transaction value types built from them.
package txtypes

import (
	"fmt"

	"github.com/oriys/txgraph/internal/codec"
)

// ProgramID is a 32-byte on-chain program identifier.
type ProgramID [32]byte

// ParseProgramID decodes a base58 text pubkey into a ProgramID.
func ParseProgramID(s string) (ProgramID, error) {
	var id ProgramID
	raw, err := codec.DecodeB58Array(s, codec.PubkeySize)
	if err != nil {
		return id, err
	}
	copy(id[:], raw)
	return id, nil
}

// String returns the canonical base58 text form.
func (p ProgramID) String() string {
	return codec.EncodeB58(p[:])
}

func (p ProgramID) IsZero() bool {
	return p == ProgramID{}
}

// Signature is an opaque transaction identifier.
type Signature [64]byte

// ParseSignature decodes a base58 text signature.
func ParseSignature(s string) (Signature, error) {
	var sig Signature
	raw, err := codec.DecodeB58Array(s, 64)
	if err != nil {
		return sig, fmt.Errorf("parse signature: %w", err)
	}
	copy(sig[:], raw)
	return sig, nil
}

func (s Signature) String() string {
	return codec.EncodeB58(s[:])
}

func (s Signature) IsZero() bool {
	return s == Signature{}
}

// InvokeLevel is the nesting depth reported alongside an invoke marker; 1 is top level.
type InvokeLevel int

// CallIndex is a zero-based per-program-id counter within one transaction,
// incremented each time that program is invoked (top-level or inner).
type CallIndex uint64

// ProgramContext identifies a single invocation: the program, which call
// of that program this is, and the depth it occurred at. It is the
// identity key the Log Reconstructor groups events under.
type ProgramContext struct {
	ProgramID   ProgramID
	CallIndex   CallIndex
	InvokeLevel InvokeLevel
}

func (c ProgramContext) String() string {
	return fmt.Sprintf("%s#%d@L%d", c.ProgramID, c.CallIndex, c.InvokeLevel)
}

// InstructionContext identifies an invocation without its depth; it is the
// join key between the Binder and the Reconstructor.
type InstructionContext struct {
	ProgramID ProgramID
	CallIndex CallIndex
}

func (c ProgramContext) Instruction() InstructionContext {
	return InstructionContext{ProgramID: c.ProgramID, CallIndex: c.CallIndex}
}

func (c InstructionContext) String() string {
	return fmt.Sprintf("%s#%d", c.ProgramID, c.CallIndex)
}
