package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oriys/txgraph/internal/pubsub"
	"github.com/oriys/txgraph/internal/registry/memstore"
	"github.com/oriys/txgraph/internal/rpcclient"
	"github.com/oriys/txgraph/internal/txtypes"
)

const progP = "11111111111111111111111111111111"

func mustID(t *testing.T, s string) txtypes.ProgramID {
	t.Helper()
	id, err := txtypes.ParseProgramID(s)
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return id
}

// validMeta returns a transaction meta that joins successfully: a single
// top-level instruction against progP with no inner instructions or logs
// beyond invoke/success.
func validMeta(slot txtypes.Slot) *rpcclient.TransactionMeta {
	return &rpcclient.TransactionMeta{
		Slot:                  slot,
		NumRequiredSignatures: 1,
		LogMessages: []string{
			"Program " + progP + " invoke [1]",
			"Program " + progP + " success",
		},
		AccountKeys:  []string{progP},
		PreBalances:  []uint64{100},
		PostBalances: []uint64{100},
		Instructions: []rpcclient.CompiledInstructionLine{
			{ProgramIDIndex: 0},
		},
	}
}

type fakeRPC struct {
	mu                      sync.Mutex
	getSlot                 func(ctx context.Context, commitment txtypes.Commitment) (txtypes.Slot, error)
	getSignaturesForAddress func(ctx context.Context, programID txtypes.ProgramID, before string, limit int, commitment txtypes.Commitment) ([]rpcclient.SignatureInfo, error)
	getTransaction          func(ctx context.Context, sig txtypes.Signature, commitment txtypes.Commitment) (*rpcclient.TransactionMeta, error)
	getTransactionCallCount map[txtypes.Signature]int
}

func (f *fakeRPC) GetSlot(ctx context.Context, commitment txtypes.Commitment) (txtypes.Slot, error) {
	return f.getSlot(ctx, commitment)
}

func (f *fakeRPC) GetSignaturesForAddress(ctx context.Context, programID txtypes.ProgramID, before string, limit int, commitment txtypes.Commitment) ([]rpcclient.SignatureInfo, error) {
	return f.getSignaturesForAddress(ctx, programID, before, limit, commitment)
}

func (f *fakeRPC) GetTransaction(ctx context.Context, sig txtypes.Signature, commitment txtypes.Commitment) (*rpcclient.TransactionMeta, error) {
	f.mu.Lock()
	if f.getTransactionCallCount == nil {
		f.getTransactionCallCount = make(map[txtypes.Signature]int)
	}
	f.getTransactionCallCount[sig]++
	f.mu.Unlock()
	return f.getTransaction(ctx, sig, commitment)
}

func sigWithByte(b byte) txtypes.Signature {
	var sig txtypes.Signature
	sig[0] = b
	return sig
}

func TestResyncTick_AdvancesCursorOnlyWhenAllChunksSucceed(t *testing.T) {
	ctx := context.Background()
	pid := mustID(t, progP)
	sigNewest := sigWithByte(2)
	sigOlder := sigWithByte(1)

	store := memstore.New()

	failNext := true
	rpc := &fakeRPC{
		getSlot: func(ctx context.Context, commitment txtypes.Commitment) (txtypes.Slot, error) {
			return 100, nil
		},
		getSignaturesForAddress: func(ctx context.Context, programID txtypes.ProgramID, before string, limit int, commitment txtypes.Commitment) ([]rpcclient.SignatureInfo, error) {
			return []rpcclient.SignatureInfo{
				{Signature: sigNewest.String(), Slot: 99},
				{Signature: sigOlder.String(), Slot: 98},
			}, nil
		},
		getTransaction: func(ctx context.Context, sig txtypes.Signature, commitment txtypes.Commitment) (*rpcclient.TransactionMeta, error) {
			if sig == sigOlder && failNext {
				return nil, errors.New("transient fetch failure")
			}
			return validMeta(1), nil
		},
	}

	var consumed []txtypes.Signature
	txConsumer := func(ctx context.Context, sig txtypes.Signature, meta *txtypes.TransactionParsedMeta) error {
		consumed = append(consumed, sig)
		return nil
	}

	e := New(Config{ProgramID: pid, ResyncSignaturesChunkSize: 10}, store, store, rpc, nil, nil, txConsumer, nil)

	if err := e.resyncTick(ctx); err != nil {
		t.Fatalf("resyncTick: %v", err)
	}
	if _, ok, _ := store.GetCursor(ctx, pid); ok {
		t.Fatalf("cursor must not advance while a chunk signature still fails")
	}

	consumed = nil
	failNext = false
	if err := e.resyncTick(ctx); err != nil {
		t.Fatalf("resyncTick: %v", err)
	}
	cursor, ok, err := store.GetCursor(ctx, pid)
	if err != nil || !ok {
		t.Fatalf("want cursor set, got ok=%v err=%v", ok, err)
	}
	if cursor != sigNewest {
		t.Fatalf("want cursor %v (newest), got %v", sigNewest, cursor)
	}
}

func TestAdvanceCursor_RollbackSupersedesComputedCursor(t *testing.T) {
	ctx := context.Background()
	pid := mustID(t, progP)
	store := memstore.New()
	staged := sigWithByte(42)
	computed := sigWithByte(7)

	if err := store.Stage(ctx, pid, staged); err != nil {
		t.Fatalf("stage: %v", err)
	}

	e := New(Config{ProgramID: pid}, store, store, nil, nil, nil, nil, nil)
	if err := e.advanceCursor(ctx, computed.String()); err != nil {
		t.Fatalf("advanceCursor: %v", err)
	}

	cursor, ok, err := store.GetCursor(ctx, pid)
	if err != nil || !ok {
		t.Fatalf("want cursor set, got ok=%v err=%v", ok, err)
	}
	if cursor != staged {
		t.Fatalf("want staged rollback %v to supersede computed cursor %v, got %v", staged, computed, cursor)
	}
}

type fakeSubscriber struct {
	mu        sync.Mutex
	callCount int
	onCall    func(callIndex int) (<-chan pubsub.Message, <-chan error, error)
}

func (f *fakeSubscriber) Subscribe(ctx context.Context, programID txtypes.ProgramID, commitment txtypes.Commitment) (<-chan pubsub.Message, <-chan error, error) {
	f.mu.Lock()
	idx := f.callCount
	f.callCount++
	f.mu.Unlock()
	return f.onCall(idx)
}

func TestLiveTask_ReconnectsOnStreamEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pid := mustID(t, progP)
	store := memstore.New()

	var handled []txtypes.Signature
	var mu sync.Mutex
	eventConsumer := func(ctx context.Context, sig txtypes.Signature, logs []string) (ConsumeOutcome, error) {
		mu.Lock()
		handled = append(handled, sig)
		mu.Unlock()
		return ConsumeSuccess, nil
	}

	sig := sigWithByte(9)
	sub := &fakeSubscriber{
		onCall: func(callIndex int) (<-chan pubsub.Message, <-chan error, error) {
			msgCh := make(chan pubsub.Message, 1)
			errCh := make(chan error, 1)
			if callIndex == 0 {
				msgCh <- pubsub.Message{Signature: sig, Slot: 1}
				close(msgCh)
			} else {
				close(msgCh)
				cancel()
			}
			return msgCh, errCh, nil
		},
	}

	e := New(Config{ProgramID: pid}, store, store, nil, sub, eventConsumer, nil, nil)

	done := make(chan error, 1)
	go func() { done <- e.liveTask(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("liveTask: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("liveTask did not return after context cancellation")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(handled) != 1 || handled[0] != sig {
		t.Fatalf("want exactly one message handled before reconnect, got %v", handled)
	}
	if sub.callCount < 2 {
		t.Fatalf("want liveTask to reconnect after stream end, got %d Subscribe calls", sub.callCount)
	}
}

func TestHandleLiveMessage_SkipsAlreadyRegistered(t *testing.T) {
	ctx := context.Background()
	pid := mustID(t, progP)
	store := memstore.New()
	sig := sigWithByte(5)
	if _, err := store.Register(ctx, pid, sig); err != nil {
		t.Fatalf("register: %v", err)
	}

	called := false
	eventConsumer := func(ctx context.Context, sig txtypes.Signature, logs []string) (ConsumeOutcome, error) {
		called = true
		return ConsumeSuccess, nil
	}

	e := New(Config{ProgramID: pid}, store, store, nil, nil, eventConsumer, nil, nil)
	e.handleLiveMessage(ctx, pubsub.Message{Signature: sig, Slot: 1})

	if called {
		t.Fatal("event consumer must not run for an already-registered signature")
	}
}
