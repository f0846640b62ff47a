// Package parseerr is the error taxonomy for the whole parsing and tailing
// pipeline (spec §7): one sentinel per error kind so callers can dispatch
// on errors.Is/errors.As, with index/program/signature context attached by
// wrapping via fmt.Errorf("...: %w", ...).
package parseerr

import "errors"

// Parsing
var (
	ErrBadLine          = errors.New("parseerr: bad log line")
	ErrWrongPubkeySize  = errors.New("parseerr: wrong pubkey size")
	ErrParseIntOverflow = errors.New("parseerr: integer overflow")
	ErrBase64Decode     = errors.New("parseerr: base64 decode failed")
	ErrBase58Decode     = errors.New("parseerr: base58 decode failed")
)

// Structural
var (
	ErrUnexpectedProgramResult      = errors.New("parseerr: unexpected program result")
	ErrMissplacedConsumed           = errors.New("parseerr: misplaced consumed line")
	ErrEmptyInvokeLogContext        = errors.New("parseerr: log line with no active invocation context")
	ErrInvokeDepthMismatch          = errors.New("parseerr: invoke depth does not match stack depth")
	ErrErrorLog                     = errors.New("parseerr: program reported failure")
	ErrErrorCompleteLog             = errors.New("parseerr: program failed to complete")
	ErrInstructionLogsConsistency   = errors.New("parseerr: instruction/log consistency violation")
	ErrInstructionLogsOwnerMismatch = errors.New("parseerr: instruction owner mismatch")
)

// Transport
var (
	ErrClientError    = errors.New("parseerr: rpc client error")
	ErrWebsocketError = errors.New("parseerr: websocket subscription error")
	ErrSignatureParse = errors.New("parseerr: could not parse signature")
)

// Semantic
var (
	ErrEmptyMetaInTransaction             = errors.New("parseerr: transaction has no meta")
	ErrEmptyLogsInTransaction             = errors.New("parseerr: transaction has no log messages")
	ErrEmptyInnerInstructions             = errors.New("parseerr: transaction has no inner instruction list")
	ErrDecodeTransaction                  = errors.New("parseerr: could not decode transaction")
	ErrParsedInnerInstructionNotSupported = errors.New("parseerr: pre-parsed inner instructions are not supported")
)

// Join / cancellation
var (
	ErrChunkPanicked = errors.New("parseerr: resync chunk task panicked")
	ErrCancelled     = errors.New("parseerr: operation cancelled")
)
