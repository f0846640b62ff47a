// Package pubsub is the streaming subscription transport behind the Live
// Task (spec §4.7.1): a minimal logsSubscribe-shaped JSON-RPC 2.0 protocol
// over a websocket, implemented with github.com/gorilla/websocket.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oriys/txgraph/internal/logging"
	"github.com/oriys/txgraph/internal/parseerr"
	"github.com/oriys/txgraph/internal/txtypes"
)

// Message is one notification delivered by a live subscription: a
// signature, the slot it landed in, and the log lines the Event
// Consumer classifies to decide whether the transaction needs a full
// fetch, matching spec §6's inbound subscription shape.
type Message struct {
	Signature txtypes.Signature
	Slot      txtypes.Slot
	Logs      []string
}

// Subscriber is the contract the Live Task depends on. Subscribe dials and
// sends the subscribe request synchronously, so a failure to open the
// stream is returned directly (the Live Task treats this as fatal, per
// spec §4.7.1 step 1). Once open, notifications and any later streaming
// error are delivered over the two returned channels; the message channel
// is closed when the stream ends, at which point the caller should drain
// errCh for the reason and reconnect (step 3).
type Subscriber interface {
	Subscribe(ctx context.Context, programID txtypes.ProgramID, commitment txtypes.Commitment) (<-chan Message, <-chan error, error)
}

// WebsocketSubscriber implements Subscriber over a single websocket
// endpoint, reconnecting internally is NOT performed here: the Live Task
// owns the reconnect-on-stream-end loop (spec §4.7.1), this type owns one
// connection's lifetime.
type WebsocketSubscriber struct {
	endpoint string
	dialer   *websocket.Dialer
}

// New constructs a subscriber against a single websocket endpoint.
func New(endpoint string) *WebsocketSubscriber {
	return &WebsocketSubscriber{
		endpoint: endpoint,
		dialer:   websocket.DefaultDialer,
	}
}

type subscribeRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type logsNotification struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Context struct {
				Slot txtypes.Slot `json:"slot"`
			} `json:"context"`
			Value struct {
				Signature string   `json:"signature"`
				Logs      []string `json:"logs"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

func (w *WebsocketSubscriber) Subscribe(ctx context.Context, programID txtypes.ProgramID, commitment txtypes.Commitment) (<-chan Message, <-chan error, error) {
	conn, _, err := w.dialer.DialContext(ctx, w.endpoint, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: dial: %v", parseerr.ErrWebsocketError, err)
	}

	req := subscribeRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "logsSubscribe",
		Params: []interface{}{
			map[string]interface{}{"mentions": []string{programID.String()}},
			map[string]interface{}{"commitment": commitment},
		},
	}
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("%w: subscribe request: %v", parseerr.ErrWebsocketError, err)
	}

	msgCh := make(chan Message)
	errCh := make(chan error, 1)

	go func() {
		defer close(msgCh)
		defer conn.Close()

		var once sync.Once
		closeConn := func() { once.Do(func() { conn.Close() }) }
		go func() {
			<-ctx.Done()
			closeConn()
		}()

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					errCh <- fmt.Errorf("%w: %v", parseerr.ErrCancelled, ctx.Err())
				} else {
					errCh <- fmt.Errorf("%w: read: %v", parseerr.ErrWebsocketError, err)
				}
				return
			}

			var note logsNotification
			if err := json.Unmarshal(raw, &note); err != nil {
				errCh <- fmt.Errorf("%w: decode notification: %v", parseerr.ErrWebsocketError, err)
				return
			}
			if note.Method != "logsNotification" {
				continue
			}
			sig, err := txtypes.ParseSignature(note.Params.Result.Value.Signature)
			if err != nil {
				logging.Op().Error("skipped notification with unparseable signature",
					"signature", note.Params.Result.Value.Signature, "error", err)
				continue
			}

			select {
			case msgCh <- Message{Signature: sig, Slot: note.Params.Result.Context.Slot, Logs: note.Params.Result.Value.Logs}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return msgCh, errCh, nil
}

// PingInterval is a staleness threshold for a connection with no observed
// traffic. Neither WebsocketSubscriber nor the Live Task's reconnect loop
// reads it.
const PingInterval = 30 * time.Second
