// Package engine is the Tailing/Resync Engine (spec §4.7): a Live Task
// consuming a streaming subscription and a Resync Task backfilling via
// the pull API, both idempotent against the shared Registry, supervised
// as independent fallible tasks with golang.org/x/sync/errgroup — the
// "report first failure, cancel the rest" shape the teacher's own
// service supervisors use.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oriys/txgraph/internal/instrbind"
	"github.com/oriys/txgraph/internal/logging"
	"github.com/oriys/txgraph/internal/logline"
	"github.com/oriys/txgraph/internal/parseerr"
	"github.com/oriys/txgraph/internal/pubsub"
	"github.com/oriys/txgraph/internal/reconstruct"
	"github.com/oriys/txgraph/internal/registry"
	"github.com/oriys/txgraph/internal/rpcclient"
	"github.com/oriys/txgraph/internal/txjoin"
	"github.com/oriys/txgraph/internal/txtypes"
)

// ConsumeOutcome is the Live Task's event_consumer result (spec §6).
type ConsumeOutcome int

const (
	ConsumeSuccess ConsumeOutcome = iota
	TransactionNeeded
)

// ResyncOrder selects how the success-only candidate list is ordered
// before chunking (spec §4.7.2 step 5).
type ResyncOrder int

const (
	Newest ResyncOrder = iota
	Historical
)

// EventConsumer handles a raw subscription log payload without fetching
// the full transaction. Returning TransactionNeeded tells the Live Task
// to fetch, bind, reconstruct, and join before calling TransactionConsumer.
type EventConsumer func(ctx context.Context, sig txtypes.Signature, logs []string) (ConsumeOutcome, error)

// TransactionConsumer handles a fully joined transaction.
type TransactionConsumer func(ctx context.Context, sig txtypes.Signature, meta *txtypes.TransactionParsedMeta) error

// Config configures one Engine instance (spec §6's configuration table).
type Config struct {
	ProgramID                 txtypes.ProgramID
	Commitment                txtypes.Commitment
	IsResyncEnabled           bool
	ResyncDuration            time.Duration
	ResyncSignaturesChunkSize int
	ResyncOrder               ResyncOrder
	AttemptsCount             int
	AttemptTimeout            time.Duration
}

func (c Config) withDefaults() Config {
	if c.Commitment == "" {
		c.Commitment = txtypes.CommitmentFinalized
	}
	if c.ResyncDuration <= 0 {
		c.ResyncDuration = 5 * time.Second
	}
	if c.AttemptsCount <= 0 {
		c.AttemptsCount = 1
	}
	return c
}

// Engine runs the Live Task and (optionally) the Resync Task against a
// single program id.
type Engine struct {
	cfg      Config
	registry registry.Store
	rollback registry.Rollback
	rpc      rpcclient.Client
	sub      pubsub.Subscriber // nil disables the Live Task

	eventConsumer   EventConsumer
	txConsumer      TransactionConsumer
	resyncPtrSetter func(ctx context.Context, slot txtypes.Slot) error
	rawMetaHook     func(ctx context.Context, sig txtypes.Signature, meta *rpcclient.TransactionMeta)
}

// New constructs an Engine. sub may be nil, which disables the Live Task
// (spec §6: "pubsub_client optional — absence disables Live Task").
func New(
	cfg Config,
	store registry.Store,
	rollback registry.Rollback,
	rpc rpcclient.Client,
	sub pubsub.Subscriber,
	eventConsumer EventConsumer,
	txConsumer TransactionConsumer,
	resyncPtrSetter func(ctx context.Context, slot txtypes.Slot) error,
) *Engine {
	return &Engine{
		cfg:             cfg.withDefaults(),
		registry:        store,
		rollback:        rollback,
		rpc:             rpc,
		sub:             sub,
		eventConsumer:   eventConsumer,
		txConsumer:      txConsumer,
		resyncPtrSetter: resyncPtrSetter,
	}
}

// SetRawMetaHook registers a callback invoked with each transaction's raw
// fetched meta right after a successful get_transaction call, before
// binding/reconstruction. Used to archive raw responses without coupling
// the fetch retry policy to the archive backend.
func (e *Engine) SetRawMetaHook(hook func(ctx context.Context, sig txtypes.Signature, meta *rpcclient.TransactionMeta)) {
	e.rawMetaHook = hook
}

// Run launches the Live Task and Resync Task and blocks until either
// returns a fatal error or ctx is cancelled. The first fatal error from
// either task cancels the other (errgroup semantics); Run returns that
// error, or nil on clean cancellation.
func (e *Engine) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if e.sub != nil {
		g.Go(func() error { return e.liveTask(gctx) })
	}
	if e.cfg.IsResyncEnabled {
		g.Go(func() error { return e.resyncTask(gctx) })
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}

// fetchAndJoin performs the Transaction Fetch retry policy (spec §4.7.3)
// around a single get_transaction + Bind + Reconstruct + Join pipeline run.
func (e *Engine) fetchAndJoin(ctx context.Context, sig txtypes.Signature) (*txtypes.TransactionParsedMeta, error) {
	var lastErr error
	for attempt := 0; attempt < e.cfg.AttemptsCount; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(e.cfg.AttemptTimeout):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		meta, err := e.rpc.GetTransaction(ctx, sig, e.cfg.Commitment)
		if err != nil {
			lastErr = err
			continue
		}
		if meta == nil {
			lastErr = fmt.Errorf("%w: empty transaction meta", parseerr.ErrEmptyMetaInTransaction)
			continue
		}
		if len(meta.LogMessages) == 0 {
			lastErr = parseerr.ErrEmptyLogsInTransaction
			continue
		}

		if e.rawMetaHook != nil {
			e.rawMetaHook(ctx, sig, meta)
		}

		parsed, err := joinTransaction(*meta)
		if err != nil {
			var badLine *parseerr.BadLine
			if errors.As(err, &badLine) {
				logging.Op().Error("skipped unparseable log line", "signature", sig.String(),
					"index", badLine.Index, "reason", badLine.Reason, "text", badLine.Text)
			}
			lastErr = err
			continue
		}
		return parsed, nil
	}
	return nil, lastErr
}

// joinTransaction runs the Binder and Reconstructor over one fetched
// transaction and zips their output (spec §4.2-§4.4), the same pipeline
// both the Live Task and Resync Task drive per transaction.
func joinTransaction(meta rpcclient.TransactionMeta) (*txtypes.TransactionParsedMeta, error) {
	lines, err := classifyLines(meta.LogMessages)
	if err != nil {
		return nil, err
	}
	reconstructed, err := reconstruct.Reconstruct(lines)
	if err != nil {
		return nil, err
	}

	msg, err := toBinderMessage(meta)
	if err != nil {
		return nil, err
	}
	bound, err := instrbind.Bind(msg)
	if err != nil {
		return nil, err
	}
	joinBound := make(map[txtypes.InstructionContext]txjoin.BoundEntry, len(bound))
	for k, v := range bound {
		joinBound[k] = txjoin.BoundEntry{Instruction: v.Instruction, Outer: v.Outer}
	}

	accounts := msg.EffectiveAccounts()
	preTokenBalances, err := toJoinTokenBalances(meta.PreTokenBalances, accounts)
	if err != nil {
		return nil, err
	}
	postTokenBalances, err := toJoinTokenBalances(meta.PostTokenBalances, accounts)
	if err != nil {
		return nil, err
	}

	input := txjoin.Input{
		Bound:             joinBound,
		Reconstructed:     reconstructed,
		Slot:              meta.Slot,
		BlockTime:         meta.BlockTime,
		Accounts:          accounts,
		PreBalances:       meta.PreBalances,
		PostBalances:      meta.PostBalances,
		PreTokenBalances:  preTokenBalances,
		PostTokenBalances: postTokenBalances,
	}
	return txjoin.Join(input)
}

// classifyLines runs logline.Classify over a transaction's raw log
// messages in order, producing the Line sequence the Reconstructor walks.
func classifyLines(logMessages []string) ([]logline.Line, error) {
	lines := make([]logline.Line, 0, len(logMessages))
	for i, raw := range logMessages {
		line, err := logline.Classify(i, raw)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// headerAccountFlags derives signer/writable flags from the legacy
// message header convention: among the static keys, the first
// NumRequiredSignatures accounts are signers, and the trailing
// NumReadonly* accounts within each of the signer/non-signer partitions
// are read-only. Loaded writable/readonly accounts (address lookup table
// entries) are never signers, and are writable or read-only according to
// which list they came from.
type headerAccountFlags struct {
	numStatic             int
	numRequiredSignatures int
	numReadonlySigned     int
	numReadonlyUnsigned   int
	numLoadedWritable     int
}

func (h headerAccountFlags) IsSigner(index int) bool {
	return index < h.numRequiredSignatures
}

func (h headerAccountFlags) IsMaybeWritable(index int) bool {
	switch {
	case index < h.numRequiredSignatures:
		return index < h.numRequiredSignatures-h.numReadonlySigned
	case index < h.numStatic:
		nonSigner := index - h.numRequiredSignatures
		nonSignerCount := h.numStatic - h.numRequiredSignatures
		return nonSigner < nonSignerCount-h.numReadonlyUnsigned
	default:
		return index < h.numStatic+h.numLoadedWritable
	}
}

// toBinderMessage translates a fetched transaction's meta into the
// Binder's Message shape, parsing every base58 account key and compiled
// instruction.
func toBinderMessage(meta rpcclient.TransactionMeta) (instrbind.Message, error) {
	staticKeys, err := parseProgramIDs(meta.AccountKeys)
	if err != nil {
		return instrbind.Message{}, err
	}
	loadedWritable, err := parseProgramIDs(meta.LoadedWritable)
	if err != nil {
		return instrbind.Message{}, err
	}
	loadedReadonly, err := parseProgramIDs(meta.LoadedReadonly)
	if err != nil {
		return instrbind.Message{}, err
	}

	instructions := make([]instrbind.CompiledInstruction, len(meta.Instructions))
	for i, ix := range meta.Instructions {
		instructions[i] = instrbind.CompiledInstruction{
			ProgramIDIndex: ix.ProgramIDIndex,
			AccountIndices: ix.Accounts,
			DataBase58:     ix.DataBase58,
		}
	}

	innerByOuter := make([]instrbind.InnerInstructionEntry, len(meta.InnerGroups))
	for i, g := range meta.InnerGroups {
		inner := make([]instrbind.CompiledInstruction, len(g.Instructions))
		for j, ix := range g.Instructions {
			inner[j] = instrbind.CompiledInstruction{
				ProgramIDIndex: ix.ProgramIDIndex,
				AccountIndices: ix.Accounts,
				DataBase58:     ix.DataBase58,
			}
		}
		innerByOuter[i] = instrbind.InnerInstructionEntry{Index: g.Index, Instructions: inner, Parsed: g.Parsed}
	}

	return instrbind.Message{
		StaticKeys:     staticKeys,
		LoadedWritable: loadedWritable,
		LoadedReadonly: loadedReadonly,
		Flags: headerAccountFlags{
			numStatic:             len(staticKeys),
			numRequiredSignatures: meta.NumRequiredSignatures,
			numReadonlySigned:     meta.NumReadonlySignedAccounts,
			numReadonlyUnsigned:   meta.NumReadonlyUnsignedAccounts,
			numLoadedWritable:     len(loadedWritable),
		},
		Instructions: instructions,
		InnerByOuter: innerByOuter,
	}, nil
}

func parseProgramIDs(raw []string) ([]txtypes.ProgramID, error) {
	out := make([]txtypes.ProgramID, len(raw))
	for i, s := range raw {
		id, err := txtypes.ParseProgramID(s)
		if err != nil {
			return nil, fmt.Errorf("%w: account key %d: %v", parseerr.ErrDecodeTransaction, i, err)
		}
		out[i] = id
	}
	return out, nil
}

// toJoinTokenBalances resolves each wire token-balance line's account
// index against accounts to build its WalletContext, and parses its
// string-encoded raw amount into a uint64.
func toJoinTokenBalances(lines []rpcclient.TokenBalanceLine, accounts []txtypes.ProgramID) ([]txjoin.TokenBalance, error) {
	out := make([]txjoin.TokenBalance, 0, len(lines))
	for _, l := range lines {
		if l.AccountIndex < 0 || l.AccountIndex >= len(accounts) {
			return nil, fmt.Errorf("%w: token balance account index %d out of range (%d accounts)",
				parseerr.ErrDecodeTransaction, l.AccountIndex, len(accounts))
		}
		mint, err := txtypes.ParseProgramID(l.Mint)
		if err != nil {
			return nil, fmt.Errorf("%w: token balance mint: %v", parseerr.ErrDecodeTransaction, err)
		}
		wallet := txtypes.WalletContext{
			WalletAddress: accounts[l.AccountIndex],
			TokenMint:     mint,
		}
		if l.Owner != "" {
			owner, err := txtypes.ParseProgramID(l.Owner)
			if err != nil {
				return nil, fmt.Errorf("%w: token balance owner: %v", parseerr.ErrDecodeTransaction, err)
			}
			wallet.WalletOwner = &owner
		}
		amount, err := strconv.ParseUint(l.AmountRaw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: token balance amount: %v", parseerr.ErrDecodeTransaction, err)
		}
		out = append(out, txjoin.TokenBalance{AccountIndex: l.AccountIndex, Wallet: wallet, AmountRaw: amount})
	}
	return out, nil
}

// liveTask implements spec §4.7.1: reconnect forever, process each
// message idempotently against the registry.
func (e *Engine) liveTask(ctx context.Context) error {
	for {
		msgCh, errCh, err := e.sub.Subscribe(ctx, e.cfg.ProgramID, e.cfg.Commitment)
		if err != nil {
			return fmt.Errorf("%w: subscribe: %v", parseerr.ErrWebsocketError, err)
		}

	drain:
		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-msgCh:
				if !ok {
					break drain
				}
				e.handleLiveMessage(ctx, msg)
			}
		}

		select {
		case err := <-errCh:
			logging.Op().Warn("live subscription ended, reconnecting", "program_id", e.cfg.ProgramID, "error", err)
		default:
			logging.Op().Warn("live subscription ended, reconnecting", "program_id", e.cfg.ProgramID)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

func (e *Engine) handleLiveMessage(ctx context.Context, msg pubsub.Message) {
	registered, err := e.registry.IsRegistered(ctx, e.cfg.ProgramID, msg.Signature)
	if err != nil {
		logging.Op().Error("registry lookup failed", "signature", msg.Signature, "error", err)
		return
	}
	if registered {
		return
	}

	outcome, err := e.eventConsumer(ctx, msg.Signature, msg.Logs)
	if err != nil {
		logging.Op().Error("event consumer failed", "signature", msg.Signature, "error", err)
		return
	}

	if outcome == TransactionNeeded {
		parsed, err := e.fetchAndJoin(ctx, msg.Signature)
		if err != nil {
			logging.Op().Error("transaction fetch failed", "signature", msg.Signature, "error", err)
			return
		}
		if err := e.txConsumer(ctx, msg.Signature, parsed); err != nil {
			logging.Op().Error("transaction consumer failed", "signature", msg.Signature, "error", err)
			return
		}
	}

	if _, err := e.registry.Register(ctx, e.cfg.ProgramID, msg.Signature); err != nil {
		logging.Op().Error("registry write failed", "signature", msg.Signature, "error", err)
	}
}

// resyncTask implements spec §4.7.2.
func (e *Engine) resyncTask(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(e.cfg.ResyncDuration):
		}

		if err := e.resyncTick(ctx); err != nil {
			logging.Op().Error("resync tick failed", "program_id", e.cfg.ProgramID, "error", err)
		}
	}
}

func (e *Engine) resyncTick(ctx context.Context) error {
	currentSlot, err := e.rpc.GetSlot(ctx, e.cfg.Commitment)
	if err != nil {
		return fmt.Errorf("resync: get slot: %w", err)
	}

	cursor, ok, err := e.registry.GetCursor(ctx, e.cfg.ProgramID)
	if err != nil {
		return fmt.Errorf("resync: get cursor: %w", err)
	}
	before := ""
	if ok {
		before = cursor.String()
	}

	infos, err := e.rpc.GetSignaturesForAddress(ctx, e.cfg.ProgramID, before, 0, e.cfg.Commitment)
	if err != nil {
		return fmt.Errorf("resync: get signatures: %w", err)
	}

	successOnly := make([]rpcclient.SignatureInfo, 0, len(infos))
	for _, info := range infos {
		if len(info.Err) == 0 {
			successOnly = append(successOnly, info)
		}
	}

	var lastTransaction string
	if len(successOnly) > 0 {
		lastTransaction = successOnly[0].Signature
	}

	// get_signatures_for_address returns newest first; Historical order
	// walks the same page oldest-first instead.
	ordered := make([]rpcclient.SignatureInfo, len(successOnly))
	copy(ordered, successOnly)
	if e.cfg.ResyncOrder == Historical {
		for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		}
	}

	candidates := make([]txtypes.Signature, 0, len(ordered))
	for _, info := range ordered {
		sig, err := txtypes.ParseSignature(info.Signature)
		if err != nil {
			logging.Op().Warn("resync: could not parse signature", "raw", info.Signature, "error", err)
			continue
		}
		candidates = append(candidates, sig)
	}

	unregistered, err := e.registry.FilterUnregistered(ctx, e.cfg.ProgramID, candidates)
	if err != nil {
		return fmt.Errorf("resync: filter unregistered: %w", err)
	}

	if len(unregistered) == 0 {
		if err := e.publishResyncPtr(ctx, currentSlot); err != nil {
			return err
		}
		return e.advanceCursor(ctx, lastTransaction)
	}

	chunkSize := e.cfg.ResyncSignaturesChunkSize
	if chunkSize <= 0 {
		chunkSize = len(unregistered)
	}
	chunks := chunkSignatures(unregistered, chunkSize)

	var wg errgroup.Group
	results := make([]bool, len(chunks))
	for i, chunk := range chunks {
		i, chunk := i, chunk
		wg.Go(func() error {
			results[i] = e.runChunk(ctx, chunk)
			return nil
		})
	}
	_ = wg.Wait()

	allSucceeded := true
	for _, ok := range results {
		if !ok {
			allSucceeded = false
			break
		}
	}
	if !allSucceeded {
		return nil
	}

	if err := e.advanceCursor(ctx, lastTransaction); err != nil {
		return err
	}
	return e.publishResyncPtr(ctx, currentSlot)
}

// runChunk processes one chunk's signatures sequentially, in order
// (spec §5: "within a single resync chunk, signatures are processed
// sequentially"). It returns false (and does not propagate the error
// further) if any signature fails to fetch or consume, so the caller
// can withhold cursor advancement without aborting sibling chunks.
func (e *Engine) runChunk(ctx context.Context, signatures []txtypes.Signature) bool {
	for _, sig := range signatures {
		parsed, err := e.fetchAndJoin(ctx, sig)
		if err != nil {
			logging.Op().Error("resync: fetch failed", "signature", sig, "error", err)
			return false
		}
		if err := e.txConsumer(ctx, sig, parsed); err != nil {
			logging.Op().Error("resync: consumer failed", "signature", sig, "error", err)
			return false
		}
		if _, err := e.registry.Register(ctx, e.cfg.ProgramID, sig); err != nil {
			logging.Op().Error("resync: registry write failed", "signature", sig, "error", err)
			return false
		}
	}
	return true
}

// advanceCursor sets the cursor to lastTransaction, first draining any
// staged operator rollback so it supersedes the computed value (spec
// §4.7.4).
func (e *Engine) advanceCursor(ctx context.Context, lastTransaction string) error {
	if lastTransaction == "" {
		return nil
	}
	cursor, err := txtypes.ParseSignature(lastTransaction)
	if err != nil {
		return fmt.Errorf("resync: cursor value: %w", err)
	}

	if e.rollback != nil {
		if staged, ok, err := e.rollback.Drain(ctx, e.cfg.ProgramID); err != nil {
			return fmt.Errorf("resync: drain rollback: %w", err)
		} else if ok {
			cursor = staged
		}
	}

	return e.registry.SetCursor(ctx, e.cfg.ProgramID, cursor)
}

func (e *Engine) publishResyncPtr(ctx context.Context, slot txtypes.Slot) error {
	if e.resyncPtrSetter == nil {
		return nil
	}
	return e.resyncPtrSetter(ctx, slot)
}

func chunkSignatures(sigs []txtypes.Signature, size int) [][]txtypes.Signature {
	if size <= 0 {
		size = len(sigs)
	}
	var chunks [][]txtypes.Signature
	for i := 0; i < len(sigs); i += size {
		end := i + size
		if end > len(sigs) {
			end = len(sigs)
		}
		chunks = append(chunks, sigs[i:end])
	}
	return chunks
}
