package txtypes

import "math/big"

// Commitment is the finality level used by both the pull RPC and the
// streaming subscription.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// Slot is a monotonic integer observed from the chain.
type Slot uint64

// WalletContext identifies a token account balance line: the wallet that
// holds it, the (optional) owner reported for it, and the mint.
type WalletContext struct {
	WalletAddress ProgramID
	WalletOwner   *ProgramID
	TokenMint     ProgramID
}

// TransactionParsedMeta is the Joiner's output: the Binder and
// Reconstructor results zipped together with derived balance deltas.
type TransactionParsedMeta struct {
	Meta                 map[ProgramContext]ContextEntry
	Slot                 Slot
	BlockTime            *int64
	LamportsChanges      map[ProgramID]*big.Int
	TokenBalancesChanges map[WalletContext]*big.Int
	ParentIx             map[ProgramContext]ProgramContext
}

// ContextEntry is the joined (instruction, logs) pair for one ProgramContext.
type ContextEntry struct {
	Instruction Instruction
	Logs        []ProgramLog
}

func NewTransactionParsedMeta(slot Slot) *TransactionParsedMeta {
	return &TransactionParsedMeta{
		Meta:                 make(map[ProgramContext]ContextEntry),
		LamportsChanges:      make(map[ProgramID]*big.Int),
		TokenBalancesChanges: make(map[WalletContext]*big.Int),
		ParentIx:             make(map[ProgramContext]ProgramContext),
		Slot:                 slot,
	}
}
