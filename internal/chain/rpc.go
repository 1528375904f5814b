package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

var ErrTransactionNotFound = errors.New("transaction not found")

// Reader resolves a transaction signature to its effect on chain.
type Reader interface {
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)
}

// RPCClient reads confirmed transactions from a Solana JSON-RPC node.
type RPCClient struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	nextID     atomic.Uint64
}

func NewRPCClient(endpoint string, timeout time.Duration) *RPCClient {
	return &RPCClient{
		endpoint:   endpoint,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// GetTransaction fetches the transaction at "confirmed" commitment with
// jsonParsed encoding. A null result is ErrTransactionNotFound; a transaction
// that executed with an error is returned with Failed set.
func (c *RPCClient) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := []any{
		signature,
		map[string]any{
			"encoding":                       "jsonParsed",
			"commitment":                     "confirmed",
			"maxSupportedTransactionVersion": 0,
		},
	}

	var result *rawTransaction
	if err := c.call(ctx, "getTransaction", params, &result); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ErrTransactionNotFound
	}

	return result.toTransaction(signature), nil
}

func (c *RPCClient) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", method, res.StatusCode)
	}

	var rpcRes rpcResponse
	if err := json.NewDecoder(res.Body).Decode(&rpcRes); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if rpcRes.Error != nil {
		return rpcRes.Error
	}

	return json.Unmarshal(rpcRes.Result, out)
}

// wire format of getTransaction with jsonParsed encoding

type rawTransaction struct {
	Slot      uint64 `json:"slot"`
	BlockTime *int64 `json:"blockTime"`
	Meta      *struct {
		Err             json.RawMessage `json:"err"`
		PreBalances     []uint64        `json:"preBalances"`
		PostBalances    []uint64        `json:"postBalances"`
		LoadedAddresses *struct {
			Writable []string `json:"writable"`
			Readonly []string `json:"readonly"`
		} `json:"loadedAddresses"`
	} `json:"meta"`
	Transaction struct {
		Message struct {
			AccountKeys  []accountKey     `json:"accountKeys"`
			Instructions []rawInstruction `json:"instructions"`
		} `json:"message"`
	} `json:"transaction"`
}

// accountKey accepts both the plain string form and the parsed object form
// ({"pubkey": "...", "signer": ..., "source": ...}).
type accountKey string

func (k *accountKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*k = accountKey(s)
		return nil
	}

	var obj struct {
		Pubkey string `json:"pubkey"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*k = accountKey(obj.Pubkey)
	return nil
}

type rawInstruction struct {
	Program   string          `json:"program"`
	ProgramID string          `json:"programId"`
	Parsed    json.RawMessage `json:"parsed"`
}

type parsedInstruction struct {
	Type string `json:"type"`
	Info struct {
		Source      string `json:"source"`
		Destination string `json:"destination"`
		Lamports    uint64 `json:"lamports"`
	} `json:"info"`
}

func (raw *rawTransaction) toTransaction(signature string) *Transaction {
	tx := &Transaction{
		Signature: signature,
		Slot:      raw.Slot,
	}
	if raw.BlockTime != nil {
		tx.BlockTime = *raw.BlockTime
	}

	for _, key := range raw.Transaction.Message.AccountKeys {
		tx.AccountKeys = append(tx.AccountKeys, string(key))
	}

	if meta := raw.Meta; meta != nil {
		tx.Failed = len(meta.Err) > 0 && string(meta.Err) != "null"
		tx.PreBalances = meta.PreBalances
		tx.PostBalances = meta.PostBalances

		// jsonParsed already lists lookup-table keys; other encodings only
		// carry them in meta.loadedAddresses
		if meta.LoadedAddresses != nil && len(tx.AccountKeys) < len(meta.PreBalances) {
			tx.AccountKeys = append(tx.AccountKeys, meta.LoadedAddresses.Writable...)
			tx.AccountKeys = append(tx.AccountKeys, meta.LoadedAddresses.Readonly...)
		}
	} else {
		tx.Failed = true
	}

	for _, raw := range raw.Transaction.Message.Instructions {
		ix := Instruction{Program: raw.Program, ProgramID: raw.ProgramID}

		var parsed parsedInstruction
		// memo and other programs render "parsed" as a plain string
		if len(raw.Parsed) > 0 && json.Unmarshal(raw.Parsed, &parsed) == nil {
			ix.Type = parsed.Type
			ix.Source = parsed.Info.Source
			ix.Destination = parsed.Info.Destination
			ix.Lamports = parsed.Info.Lamports
		}

		tx.Instructions = append(tx.Instructions, ix)
	}

	return tx
}
