// Package rpcclient is the pull-API transport behind the Resync Task and
// the Transaction Fetch step (spec §4.7.3): get_transaction,
// get_signatures_for_address, and get_slot over JSON-RPC 2.0.
//
// Transport-level flakiness (connection resets, 5xx responses) is handled
// by github.com/hashicorp/go-retryablehttp's own backoff; this package
// does not duplicate that logic. RPC-level failures (a well-formed
// JSON-RPC error object) are returned as errors for the engine's own
// attempts_count/attempt_timeout policy to retry, the same split the
// teacher draws between its circuitbreaker and pool packages.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/oriys/txgraph/internal/parseerr"
	"github.com/oriys/txgraph/internal/txtypes"
)

// TokenBalanceLine is one pre/post token balance entry from a transaction's meta.
type TokenBalanceLine struct {
	AccountIndex int    `json:"account_index"`
	Owner        string `json:"owner,omitempty"`
	Mint         string `json:"mint"`
	AmountRaw    string `json:"amount_raw"`
}

// TransactionMeta is the subset of a fetched transaction's execution meta
// this package decodes; it mirrors spec §6's inbound transaction fetch
// response shape.
type TransactionMeta struct {
	Slot      txtypes.Slot `json:"slot"`
	BlockTime *int64       `json:"block_time"`

	LogMessages []string `json:"log_messages"`

	// NumRequiredSignatures, NumReadonlySignedAccounts and
	// NumReadonlyUnsignedAccounts are the legacy message header fields:
	// among AccountKeys, the first NumRequiredSignatures are signers, and
	// within each of the signer/non-signer partitions the trailing
	// NumReadonly* accounts are read-only. They are what lets the Binder
	// tell signer and writable accounts apart without a full message
	// header type.
	NumRequiredSignatures       int `json:"num_required_signatures"`
	NumReadonlySignedAccounts   int `json:"num_readonly_signed_accounts"`
	NumReadonlyUnsignedAccounts int `json:"num_readonly_unsigned_accounts"`

	AccountKeys    []string `json:"account_keys"`
	LoadedWritable []string `json:"loaded_writable_addresses"`
	LoadedReadonly []string `json:"loaded_readonly_addresses"`

	PreBalances  []uint64 `json:"pre_balances"`
	PostBalances []uint64 `json:"post_balances"`

	PreTokenBalances  []TokenBalanceLine `json:"pre_token_balances"`
	PostTokenBalances []TokenBalanceLine `json:"post_token_balances"`

	Instructions []CompiledInstructionLine `json:"instructions"`
	InnerGroups  []InnerInstructionGroup   `json:"inner_instructions"`
}

// CompiledInstructionLine is one compiled instruction on the wire.
type CompiledInstructionLine struct {
	ProgramIDIndex int    `json:"program_id_index"`
	Accounts       []int  `json:"accounts"`
	DataBase58     string `json:"data"`
}

// InnerInstructionGroup groups inner instructions by the outer instruction
// index they belong to.
type InnerInstructionGroup struct {
	Index        int                       `json:"index"`
	Instructions []CompiledInstructionLine `json:"instructions"`
	Parsed       bool                      `json:"parsed"`
}

// SignatureInfo is one entry from get_signatures_for_address.
type SignatureInfo struct {
	Signature string          `json:"signature"`
	Slot      txtypes.Slot    `json:"slot"`
	Err       json.RawMessage `json:"err,omitempty"`
}

// Client is the pull-API transport contract the Resync Task depends on.
type Client interface {
	GetTransaction(ctx context.Context, signature txtypes.Signature, commitment txtypes.Commitment) (*TransactionMeta, error)
	GetSignaturesForAddress(ctx context.Context, programID txtypes.ProgramID, before string, limit int, commitment txtypes.Commitment) ([]SignatureInfo, error)
	GetSlot(ctx context.Context, commitment txtypes.Commitment) (txtypes.Slot, error)
}

// HTTPClient implements Client over a JSON-RPC 2.0 HTTP endpoint using a
// retrying HTTP transport.
type HTTPClient struct {
	endpoint string
	http     *retryablehttp.Client
	idSeq    func() int
}

// New constructs an HTTPClient against endpoint. maxRetries bounds the
// transport-level retry count (0 uses retryablehttp's default policy).
func New(endpoint string, maxRetries int) *HTTPClient {
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	if maxRetries > 0 {
		rc.RetryMax = maxRetries
	}
	rc.HTTPClient.Timeout = 30 * time.Second

	var seq int
	return &HTTPClient{
		endpoint: endpoint,
		http:     rc,
		idSeq: func() int {
			seq++
			return seq
		},
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *HTTPClient) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: c.idSeq(), Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("%w: encode %s request: %v", parseerr.ErrClientError, method, err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build %s request: %v", parseerr.ErrClientError, method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", parseerr.ErrClientError, method, err)
	}
	defer resp.Body.Close()

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", parseerr.ErrClientError, method, err)
	}
	if decoded.Error != nil {
		return fmt.Errorf("%w: %s: rpc error %d: %s", parseerr.ErrClientError, method, decoded.Error.Code, decoded.Error.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("%w: unmarshal %s result: %v", parseerr.ErrClientError, method, err)
	}
	return nil
}

func (c *HTTPClient) GetTransaction(ctx context.Context, signature txtypes.Signature, commitment txtypes.Commitment) (*TransactionMeta, error) {
	params := map[string]interface{}{
		"signature":  signature.String(),
		"commitment": commitment,
	}
	var meta TransactionMeta
	if err := c.call(ctx, "get_transaction", params, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (c *HTTPClient) GetSignaturesForAddress(ctx context.Context, programID txtypes.ProgramID, before string, limit int, commitment txtypes.Commitment) ([]SignatureInfo, error) {
	params := map[string]interface{}{
		"address":    programID.String(),
		"before":     before,
		"limit":      limit,
		"commitment": commitment,
	}
	var infos []SignatureInfo
	if err := c.call(ctx, "get_signatures_for_address", params, &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

func (c *HTTPClient) GetSlot(ctx context.Context, commitment txtypes.Commitment) (txtypes.Slot, error) {
	params := map[string]interface{}{"commitment": commitment}
	var slot txtypes.Slot
	if err := c.call(ctx, "get_slot", params, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}
