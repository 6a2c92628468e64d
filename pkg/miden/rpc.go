// Package miden implements a thin JSON-RPC adapter over the Miden rollup
// node, satisfying pkg/relayer.MidenClient. Transport is HTTP+JSON-RPC
// rather than gRPC: the teacher's Canton client (pkg/canton, pkg/cantonsdk)
// talks gRPC against Ledger-API protobuf stubs generated from Canton's
// published .proto files, and no equivalent generated client exists for
// Miden's rollup RPC anywhere in the retrieval pack. Fabricating protobuf
// message types by hand would not be a faithful port of that pattern, so
// this adapter follows the pack's other HTTP+JSON client shape instead
// (pkg/cantonsdk/ledger's OAuth2 token provider).
package miden

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
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *rpcClient) call(ctx context.Context, method string, params any, out any) error {
	id := atomic.AddInt64(&c.nextID, 1)
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return bridgeerr.New(bridgeerr.KindNodeUnavailable, "marshal miden rpc request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return bridgeerr.New(bridgeerr.KindNodeUnavailable, "build miden rpc request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return bridgeerr.New(bridgeerr.KindTimeout, "miden rpc call timed out", err)
		}
		return bridgeerr.New(bridgeerr.KindNodeUnavailable, "miden rpc call failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return bridgeerr.New(bridgeerr.KindNodeUnavailable, "read miden rpc response", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return bridgeerr.New(bridgeerr.KindRateLimited, "miden node rate-limited the request", nil)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return bridgeerr.New(bridgeerr.KindNodeUnavailable, "miden node rejected credentials", nil)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return bridgeerr.New(bridgeerr.KindNodeUnavailable, fmt.Sprintf("miden node returned %d", resp.StatusCode), nil)
	}

	var rr rpcResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return bridgeerr.New(bridgeerr.KindNodeUnavailable, "decode miden rpc response", err)
	}
	if rr.Error != nil {
		return classifyRollupError(rr.Error)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(rr.Result, out)
}

// classifyRollupError maps the rollup's error codes onto the bridge
// taxonomy. Codes are placeholders for the concrete rollup's error space;
// unknown codes default to NodeUnavailable so the relayer retries rather
// than silently swallowing an unrecognized failure.
func classifyRollupError(e *rpcError) error {
	switch e.Code {
	case errCodeNoteAlreadyConsumed:
		return bridgeerr.New(bridgeerr.KindAlreadyClaimed, e.Message, nil)
	case errCodeNonceMismatch:
		return bridgeerr.New(bridgeerr.KindNonceMismatch, e.Message, nil)
	case errCodeAccountNotReady:
		return bridgeerr.New(bridgeerr.KindAccountNotReady, e.Message, nil)
	default:
		return bridgeerr.New(bridgeerr.KindNodeUnavailable, e.Message, nil)
	}
}

const (
	errCodeNoteAlreadyConsumed = -32001
	errCodeNonceMismatch       = -32002
	errCodeAccountNotReady     = -32003
)
