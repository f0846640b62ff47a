package txtypes

// AccountMeta describes one account referenced by an instruction, in the
// order the instruction's account-index list refers to them.
type AccountMeta struct {
	Pubkey     ProgramID
	IsSigner   bool
	IsWritable bool
}

// Instruction is a single (possibly inner) compiled instruction after
// account-index resolution and data decoding.
type Instruction struct {
	ProgramID ProgramID
	Accounts  []AccountMeta
	Data      []byte
}

// Discriminator returns the first 8 bytes of Data, used by the Event
// Dispatcher to route instructions to a registered decoder. ok is false
// if the instruction carries fewer than 8 bytes.
func (ix Instruction) Discriminator() (d [8]byte, ok bool) {
	if len(ix.Data) < 8 {
		return d, false
	}
	copy(d[:], ix.Data[:8])
	return d, true
}
