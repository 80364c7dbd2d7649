// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

var _ Backend = (*RPCBackend)(nil)

// RPCBackend implements Backend over a chain agent's JSON-RPC endpoint. The
// agent is the per-chain sidecar that talks the chain's native node API and
// exposes the uniform chain_* method set.
type RPCBackend struct {
	endpoint   string
	chainID    string
	httpClient *http.Client
}

// NewRPCBackend returns a backend for the agent at endpoint.
func NewRPCBackend(endpoint, chainID string, timeout time.Duration) *RPCBackend {
	return &RPCBackend{
		endpoint: endpoint,
		chainID:  chainID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (b *RPCBackend) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return Transient(fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transient(fmt.Errorf("failed to read response: %w", err))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("RPC error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if result != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}
	return nil
}

func (b *RPCBackend) LatestHeight(ctx context.Context) (uint64, error) {
	var result struct {
		Height uint64 `json:"height"`
	}
	if err := b.call(ctx, "chain_latestHeight", map[string]string{"chainId": b.chainID}, &result); err != nil {
		return 0, err
	}
	return result.Height, nil
}

func (b *RPCBackend) LockEvents(ctx context.Context, from, to uint64) ([]RawLockEvent, error) {
	params := map[string]interface{}{
		"chainId": b.chainID,
		"from":    from,
		"to":      to,
	}
	var result struct {
		Events []RawLockEvent `json:"events"`
	}
	if err := b.call(ctx, "chain_lockEvents", params, &result); err != nil {
		return nil, err
	}
	return result.Events, nil
}

func (b *RPCBackend) IsApplied(ctx context.Context, destRef string) (bool, error) {
	params := map[string]string{
		"chainId": b.chainID,
		"destRef": destRef,
	}
	var result struct {
		Applied bool `json:"applied"`
	}
	if err := b.call(ctx, "chain_isApplied", params, &result); err != nil {
		return false, err
	}
	return result.Applied, nil
}

func (b *RPCBackend) SubmitMint(ctx context.Context, destRef string, req *MintRequest) error {
	params := map[string]interface{}{
		"chainId": b.chainID,
		"destRef": destRef,
		"request": req,
	}
	return b.call(ctx, "chain_submitMint", params, nil)
}
