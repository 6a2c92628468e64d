// Package zcash implements a thin JSON-RPC adapter over a zcashd/zebrad
// node and its shielded wallet, satisfying pkg/relayer.ZcashClient.
package zcash

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/chainsafe/zcash-miden-bridge/pkg/bridgeerr"
)

// rpcClient is a minimal JSON-RPC 1.0 client shaped like zcashd's RPC
// server, shared by the chain-scan (node) and wallet RPC endpoints.
type rpcClient struct {
	url        string
	authToken  string
	httpClient *http.Client
	nextID     int64
}

func newRPCClient(url, authToken string, httpClient *http.Client) *rpcClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &rpcClient{url: url, authToken: authToken, httpClient: httpClient}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *rpcClient) call(ctx context.Context, method string, params []any, out any) error {
	id := atomic.AddInt64(&c.nextID, 1)
	body, err := json.Marshal(rpcRequest{JSONRPC: "1.0", ID: id, Method: method, Params: params})
	if err != nil {
		return bridgeerr.New(bridgeerr.KindNodeUnavailable, "marshal zcash rpc request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return bridgeerr.New(bridgeerr.KindNodeUnavailable, "build zcash rpc request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return bridgeerr.New(bridgeerr.KindTimeout, "zcash rpc call timed out", err)
		}
		return bridgeerr.New(bridgeerr.KindNodeUnavailable, "zcash rpc call failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return bridgeerr.New(bridgeerr.KindNodeUnavailable, "read zcash rpc response", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return bridgeerr.New(bridgeerr.KindRateLimited, "zcash node rate-limited the request", nil)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return bridgeerr.New(bridgeerr.KindNodeUnavailable, fmt.Sprintf("zcash node returned %d", resp.StatusCode), nil)
	}

	var rr rpcResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return bridgeerr.New(bridgeerr.KindNodeUnavailable, "decode zcash rpc response", err)
	}
	if rr.Error != nil {
		return bridgeerr.New(bridgeerr.KindNodeUnavailable, fmt.Sprintf("zcash rpc error: %s", rr.Error.Message), nil)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rr.Result, out); err != nil {
		return bridgeerr.New(bridgeerr.KindNodeUnavailable, "decode zcash rpc result", err)
	}
	return nil
}
