// Package instrbind assigns the same (program_id, call_index) identity the
// Log Reconstructor computes to every compiled instruction, flattening
// outer and inner instructions in the traversal order that mirrors how the
// runtime actually executed them (spec §4.3).
package instrbind

import (
	"fmt"

	"github.com/oriys/txgraph/internal/codec"
	"github.com/oriys/txgraph/internal/parseerr"
	"github.com/oriys/txgraph/internal/txtypes"
)

// Bind flattens msg's top-level and inner instructions into a map keyed by
// InstructionContext, using the same call-index counter discipline as
// reconstruct.Reconstruct.
func Bind(msg Message) (map[txtypes.InstructionContext]Bound, error) {
	out := make(map[txtypes.InstructionContext]Bound)
	nextCallIndex := make(map[txtypes.ProgramID]txtypes.CallIndex)
	accounts := msg.EffectiveAccounts()

	innerByIndex := make(map[int]InnerInstructionEntry, len(msg.InnerByOuter))
	for _, e := range msg.InnerByOuter {
		innerByIndex[e.Index] = e
	}

	resolve := func(ci CompiledInstruction) (txtypes.Instruction, txtypes.ProgramID, error) {
		if ci.ProgramIDIndex < 0 || ci.ProgramIDIndex >= len(accounts) {
			return txtypes.Instruction{}, txtypes.ProgramID{}, fmt.Errorf("%w: program id index %d out of range (%d accounts)",
				parseerr.ErrDecodeTransaction, ci.ProgramIDIndex, len(accounts))
		}
		pid := accounts[ci.ProgramIDIndex]

		metas := make([]txtypes.AccountMeta, 0, len(ci.AccountIndices))
		for _, idx := range ci.AccountIndices {
			if idx < 0 || idx >= len(accounts) {
				return txtypes.Instruction{}, txtypes.ProgramID{}, fmt.Errorf("%w: account index %d out of range (%d accounts)",
					parseerr.ErrDecodeTransaction, idx, len(accounts))
			}
			meta := txtypes.AccountMeta{Pubkey: accounts[idx]}
			if msg.Flags != nil {
				meta.IsSigner = msg.Flags.IsSigner(idx)
				meta.IsWritable = msg.Flags.IsMaybeWritable(idx)
			}
			metas = append(metas, meta)
		}

		data, err := codec.DecodeB58(ci.DataBase58)
		if err != nil {
			return txtypes.Instruction{}, txtypes.ProgramID{}, fmt.Errorf("%w: %v", parseerr.ErrBase58Decode, err)
		}

		return txtypes.Instruction{ProgramID: pid, Accounts: metas, Data: data}, pid, nil
	}

	for i, top := range msg.Instructions {
		ix, pid, err := resolve(top)
		if err != nil {
			return nil, err
		}
		callIdx := nextCallIndex[pid]
		nextCallIndex[pid] = callIdx + 1
		ctx := txtypes.InstructionContext{ProgramID: pid, CallIndex: callIdx}
		out[ctx] = Bound{Instruction: ix, Outer: nil}

		inner, ok := innerByIndex[i]
		if !ok {
			continue
		}
		if inner.Parsed {
			return nil, parseerr.ErrParsedInnerInstructionNotSupported
		}
		outerPid := pid
		for _, ci := range inner.Instructions {
			innerIx, innerPid, err := resolve(ci)
			if err != nil {
				return nil, err
			}
			innerCallIdx := nextCallIndex[innerPid]
			nextCallIndex[innerPid] = innerCallIdx + 1
			innerCtx := txtypes.InstructionContext{ProgramID: innerPid, CallIndex: innerCallIdx}
			out[innerCtx] = Bound{Instruction: innerIx, Outer: &outerPid}
		}
	}

	return out, nil
}
