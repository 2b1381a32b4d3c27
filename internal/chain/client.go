// Package chain verifies on-chain USDT payments over Ethereum-style JSON-RPC.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
)

// ErrTxNotFound is returned when the node does not know the transaction (or it is pending).
var ErrTxNotFound = errors.New("transaction not found")

// RPCError is a JSON-RPC error object returned by the node.
type RPCError struct {
	Code    int64
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Transaction is the subset of eth_getTransactionByHash the verifier reads.
type Transaction struct {
	Hash  string
	From  string
	To    string
	Value *big.Int
}

// Receipt is the subset of eth_getTransactionReceipt the verifier reads.
type Receipt struct {
	Status      uint64
	BlockNumber uint64
}

// Succeeded reports whether the transaction executed without reverting.
func (r *Receipt) Succeeded() bool {
	return r.Status == 1
}

// ClientConfig holds client configuration.
type ClientConfig struct {
	RPCURL  string
	Timeout time.Duration
}

// Client is a minimal JSON-RPC 2.0 client.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	nextID     atomic.Int64
}

// NewClient creates a new RPC client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		rpcURL:     cfg.RPCURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int64         `json:"id"`
}

// Call makes an RPC call and returns the parsed "result" member.
func (c *Client) Call(ctx context.Context, method string, params ...interface{}) (gjson.Result, error) {
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("rpc http status %d", resp.StatusCode)
	}

	if !gjson.ValidBytes(respBody) {
		return gjson.Result{}, fmt.Errorf("invalid rpc response body")
	}

	parsed := gjson.ParseBytes(respBody)
	if rpcErr := parsed.Get("error"); rpcErr.Exists() && rpcErr.Type != gjson.Null {
		return gjson.Result{}, &RPCError{
			Code:    rpcErr.Get("code").Int(),
			Message: rpcErr.Get("message").String(),
		}
	}

	return parsed.Get("result"), nil
}

// TransactionByHash looks up a transaction.
func (c *Client) TransactionByHash(ctx context.Context, hash string) (*Transaction, error) {
	result, err := c.Call(ctx, "eth_getTransactionByHash", hash)
	if err != nil {
		return nil, err
	}
	if !result.Exists() || result.Type == gjson.Null {
		return nil, ErrTxNotFound
	}

	value, err := parseQuantity(result.Get("value").String())
	if err != nil {
		return nil, fmt.Errorf("parse value: %w", err)
	}

	return &Transaction{
		Hash:  result.Get("hash").String(),
		From:  result.Get("from").String(),
		To:    result.Get("to").String(),
		Value: value,
	}, nil
}

// TransactionReceipt looks up the receipt of a mined transaction.
func (c *Client) TransactionReceipt(ctx context.Context, hash string) (*Receipt, error) {
	result, err := c.Call(ctx, "eth_getTransactionReceipt", hash)
	if err != nil {
		return nil, err
	}
	if !result.Exists() || result.Type == gjson.Null {
		return nil, ErrTxNotFound
	}

	status, err := parseUint(result.Get("status").String())
	if err != nil {
		return nil, fmt.Errorf("parse status: %w", err)
	}
	block, _ := parseUint(result.Get("blockNumber").String())

	return &Receipt{Status: status, BlockNumber: block}, nil
}

// parseQuantity decodes a hex-encoded JSON-RPC quantity ("0x1bc16d674ec80000").
func parseQuantity(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty quantity")
	}
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if digits == s {
		// some gateways return decimal strings
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("invalid quantity %q", s)
		}
		return v, nil
	}
	if digits == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, fmt.Errorf("invalid quantity %q", s)
	}
	return v, nil
}

func parseUint(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty quantity")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}
