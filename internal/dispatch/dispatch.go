// Package dispatch routes bound instructions and "Program data:" log events
// to statically registered handlers, keyed by (owner program id, 8-byte
// discriminator) instead of a dynamic trait lookup (spec §5).
package dispatch

import (
	"fmt"

	"github.com/oriys/txgraph/internal/codec"
	"github.com/oriys/txgraph/internal/txtypes"
)

// key is the registration table's lookup key.
type key struct {
	Owner         txtypes.ProgramID
	Discriminator [8]byte
}

// InstructionHandler decodes and handles one instruction whose owner and
// discriminator matched a registration.
type InstructionHandler func(ctx txtypes.ProgramContext, ix txtypes.Instruction) error

// EventHandler decodes and handles one "Program data:" log event whose
// owner and discriminator matched a registration.
type EventHandler func(ctx txtypes.ProgramContext, raw []byte) error

// Table is the registration table for both instruction and log-data
// handlers. Construct one with NewTable; the zero value has nil maps and
// panics on registration.
type Table struct {
	instructions map[key]InstructionHandler
	events       map[key]EventHandler
}

// NewTable constructs an empty dispatch table.
func NewTable() *Table {
	return &Table{
		instructions: make(map[key]InstructionHandler),
		events:       make(map[key]EventHandler),
	}
}

// RegisterInstruction registers a handler for instructions owned by owner
// whose first 8 data bytes equal discriminator. Registering the same
// (owner, discriminator) pair twice replaces the previous handler.
func (t *Table) RegisterInstruction(owner txtypes.ProgramID, discriminator [8]byte, h InstructionHandler) {
	t.instructions[key{Owner: owner, Discriminator: discriminator}] = h
}

// RegisterEvent registers a handler for "Program data:" events emitted by
// owner whose first 8 decoded bytes equal discriminator.
func (t *Table) RegisterEvent(owner txtypes.ProgramID, discriminator [8]byte, h EventHandler) {
	t.events[key{Owner: owner, Discriminator: discriminator}] = h
}

// DispatchInstruction looks up a handler for ix and invokes it. ctx.ProgramID
// and ix.ProgramID must agree with the registered owner; a mismatch between
// ctx and ix is a caller bug and returns an error rather than silently
// picking one. Instructions with fewer than 8 data bytes, or no matching
// registration, are not an error: Dispatch simply reports ok=false.
func (t *Table) DispatchInstruction(ctx txtypes.ProgramContext, ix txtypes.Instruction) (ok bool, err error) {
	if ctx.ProgramID != ix.ProgramID {
		return false, fmt.Errorf("dispatch: context program id %s does not match instruction program id %s", ctx.ProgramID, ix.ProgramID)
	}
	disc, has := ix.Discriminator()
	if !has {
		return false, nil
	}
	h, found := t.instructions[key{Owner: ix.ProgramID, Discriminator: disc}]
	if !found {
		return false, nil
	}
	if err := h(ctx, ix); err != nil {
		return true, err
	}
	return true, nil
}

// DispatchEvent base64-decodes raw, checks its first 8 bytes against the
// registration table for owner, and invokes the matching handler.
func (t *Table) DispatchEvent(ctx txtypes.ProgramContext, owner txtypes.ProgramID, rawBase64 string) (ok bool, err error) {
	data, err := codec.DecodeBase64(rawBase64)
	if err != nil {
		return false, err
	}
	if len(data) < 8 {
		return false, nil
	}
	var disc [8]byte
	copy(disc[:], data[:8])
	h, found := t.events[key{Owner: owner, Discriminator: disc}]
	if !found {
		return false, nil
	}
	if err := h(ctx, data); err != nil {
		return true, err
	}
	return true, nil
}
