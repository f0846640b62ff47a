package txjoin

import (
	"math/big"

	"github.com/oriys/txgraph/internal/parseerr"
	"github.com/oriys/txgraph/internal/txtypes"
)

// Join zips in.Bound and in.Reconstructed into a TransactionParsedMeta.
//
// For every (ctx, events) produced by the Reconstructor it removes the
// matching entry from in.Bound by ctx.Instruction(); a miss, or an
// outer/invoke-level parity violation, is an InstructionLogsConsistency
// error. Binder entries left unmatched (instructions the runtime never
// logged against, which cannot happen for an honestly-reported
// transaction) are simply not present in the output.
func Join(in Input) (*txtypes.TransactionParsedMeta, error) {
	out := txtypes.NewTransactionParsedMeta(in.Slot)
	out.BlockTime = in.BlockTime

	remaining := make(map[txtypes.InstructionContext]BoundEntry, len(in.Bound))
	for k, v := range in.Bound {
		remaining[k] = v
	}

	for ctx, events := range in.Reconstructed {
		instrCtx := ctx.Instruction()
		bound, ok := remaining[instrCtx]
		if !ok {
			return nil, &parseerr.InstructionLogsConsistency{Context: ctx, Reason: "no matching compiled instruction"}
		}
		delete(remaining, instrCtx)

		if (bound.Outer == nil) != (ctx.InvokeLevel == 1) {
			return nil, &parseerr.InstructionLogsConsistency{Context: ctx, Reason: "outer presence does not match invoke level"}
		}

		out.Meta[ctx] = txtypes.ContextEntry{Instruction: bound.Instruction, Logs: events}

		for _, ev := range events {
			if ev.Kind == txtypes.ProgramLogInvoke {
				out.ParentIx[ev.Invoke] = ctx
			}
		}
	}

	out.LamportsChanges = lamportsChanges(in)
	out.TokenBalancesChanges = tokenBalancesChanges(in)

	return out, nil
}

func lamportsChanges(in Input) map[txtypes.ProgramID]*big.Int {
	changes := make(map[txtypes.ProgramID]*big.Int, len(in.Accounts))
	for i, pid := range in.Accounts {
		var pre, post uint64
		if i < len(in.PreBalances) {
			pre = in.PreBalances[i]
		}
		if i < len(in.PostBalances) {
			post = in.PostBalances[i]
		}
		delta := new(big.Int).SetUint64(post)
		delta.Sub(delta, new(big.Int).SetUint64(pre))
		changes[pid] = delta
	}
	return changes
}

// tokenBalancesChanges builds a WalletContext-keyed delta map from the
// post-transaction token balances, then subtracts the pre-transaction
// amounts for the same wallet context. A wallet absent from one side keeps
// the other side's value signed accordingly; asymmetry is not an error
// (spec §4.4) because closing or opening a token account is legitimate.
func tokenBalancesChanges(in Input) map[txtypes.WalletContext]*big.Int {
	// WalletOwner is a pointer, so equal owners from separate balance lines
	// are folded onto one pointer to make equal wallet contexts equal keys.
	owners := make(map[txtypes.ProgramID]*txtypes.ProgramID)
	canonical := func(w txtypes.WalletContext) txtypes.WalletContext {
		if w.WalletOwner == nil {
			return w
		}
		if p, ok := owners[*w.WalletOwner]; ok {
			w.WalletOwner = p
		} else {
			owners[*w.WalletOwner] = w.WalletOwner
		}
		return w
	}

	changes := make(map[txtypes.WalletContext]*big.Int, len(in.PostTokenBalances))
	for _, tb := range in.PostTokenBalances {
		changes[canonical(tb.Wallet)] = new(big.Int).SetUint64(tb.AmountRaw)
	}
	for _, tb := range in.PreTokenBalances {
		pre := new(big.Int).SetUint64(tb.AmountRaw)
		wallet := canonical(tb.Wallet)
		if existing, ok := changes[wallet]; ok {
			existing.Sub(existing, pre)
		} else {
			changes[wallet] = new(big.Int).Neg(pre)
		}
	}
	return changes
}
