// Package txjoin zips the Instruction Binder's output with the Log
// Reconstructor's output into one TransactionParsedMeta per transaction,
// and derives the lamports/token-balance deltas riding alongside it
// (spec §4.4).
package txjoin

import "github.com/oriys/txgraph/internal/txtypes"

// TokenBalance is one pre/post token balance line reported by the RPC meta,
// indexed the same way lamports balances are: by position in the effective
// account vector.
type TokenBalance struct {
	AccountIndex int
	Wallet       txtypes.WalletContext
	AmountRaw    uint64
}

// Input bundles everything the Joiner needs beyond the Binder and
// Reconstructor outputs: the balance snapshots taken before and after the
// transaction executed.
type Input struct {
	Bound         map[txtypes.InstructionContext]BoundEntry
	Reconstructed map[txtypes.ProgramContext][]txtypes.ProgramLog

	Slot      txtypes.Slot
	BlockTime *int64

	Accounts     []txtypes.ProgramID
	PreBalances  []uint64
	PostBalances []uint64

	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// BoundEntry mirrors instrbind.Bound without importing that package, so
// txjoin stays decoupled from the Binder's compiled-instruction details.
type BoundEntry struct {
	Instruction txtypes.Instruction
	Outer       *txtypes.ProgramID
}
