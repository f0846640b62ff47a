package instrbind

import "github.com/oriys/txgraph/internal/txtypes"

// CompiledInstruction is a transaction-wire-format instruction: indices into
// the effective account vector plus base58-encoded instruction data.
type CompiledInstruction struct {
	ProgramIDIndex int
	AccountIndices []int
	DataBase58     string
}

// InnerInstructionEntry groups the inner instructions belonging to one
// top-level instruction index, in original order.
type InnerInstructionEntry struct {
	Index        int // the top-level instruction's index
	Instructions []CompiledInstruction
	// Parsed marks pre-decoded inner instructions, which the binder
	// rejects with ErrParsedInnerInstructionNotSupported (spec §4.3).
	Parsed bool
}

// AccountFlags reports signer/writable flags for account indices into the
// effective account vector, as computed by the decoded transaction message.
// This is an external collaborator per spec §1: the Binder consumes it but
// does not compute header bit-math itself.
type AccountFlags interface {
	IsSigner(index int) bool
	IsMaybeWritable(index int) bool
}

// Message is the decoded transaction's static input to the Binder.
type Message struct {
	StaticKeys     []txtypes.ProgramID
	LoadedWritable []txtypes.ProgramID
	LoadedReadonly []txtypes.ProgramID
	Flags          AccountFlags
	Instructions   []CompiledInstruction
	InnerByOuter   []InnerInstructionEntry
}

// EffectiveAccounts returns static_keys ++ loaded_writable ++ loaded_readonly,
// the vector instruction account indices resolve against (spec §4.3).
func (m Message) EffectiveAccounts() []txtypes.ProgramID {
	out := make([]txtypes.ProgramID, 0, len(m.StaticKeys)+len(m.LoadedWritable)+len(m.LoadedReadonly))
	out = append(out, m.StaticKeys...)
	out = append(out, m.LoadedWritable...)
	out = append(out, m.LoadedReadonly...)
	return out
}

// Bound is the Binder's output entry for one InstructionContext.
type Bound struct {
	Instruction txtypes.Instruction
	Outer       *txtypes.ProgramID // nil for top-level instructions
}
