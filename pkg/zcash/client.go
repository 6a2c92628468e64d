package zcash

import (
	"bytes"
	"context"
	"encoding/hex"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainsafe/zcash-miden-bridge/pkg/bridgeerr"
	"github.com/chainsafe/zcash-miden-bridge/pkg/config"
	"github.com/chainsafe/zcash-miden-bridge/pkg/relayer"
	"github.com/chainsafe/zcash-miden-bridge/pkg/store"
)

// baseUnitsPerCoin matches the glossary: 1 native coin = 10^8 base units.
const baseUnitsPerCoin = 100_000_000

// operationPollInterval bounds how often an async z_sendmany operation's
// status is polled.
const operationPollInterval = 500 * time.Millisecond

// Client is a JSON-RPC adapter over zcashd/zebrad's node and shielded
// wallet RPC endpoints. It holds the pool's spending key implicitly on
// the remote wallet; SendShielded serialises access to it with sendMu so
// at most one shielded send is in flight at a time, per spec.md's
// "scoped acquisition of the send lock" requirement.
type Client struct {
	cfg    *config.ZcashConfig
	node   *rpcClient
	wallet *rpcClient
	logger *zap.Logger

	sendMu sync.Mutex
}

// New constructs a Zcash chain client from configuration.
func New(cfg *config.ZcashConfig, logger *zap.Logger) (*Client, error) {
	if cfg.NodeRPCURL == "" {
		return nil, bridgeerr.New(bridgeerr.KindConfigMissing, "zcash.node_rpc_url is required", nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	walletURL := cfg.WalletRPCURL
	if walletURL == "" {
		walletURL = cfg.NodeRPCURL
	}

	warnIfTokenNearExpiry(cfg.AuthToken, logger)

	return &Client{
		cfg:    cfg,
		node:   newRPCClient(cfg.NodeRPCURL, cfg.AuthToken, httpClient),
		wallet: newRPCClient(walletURL, cfg.AuthToken, httpClient),
		logger: logger,
	}, nil
}

// warnIfTokenNearExpiry parses an (unverified) JWT auth token, if present,
// and logs a warning when its exp claim is missing. Zcash RPC endpoints
// validate the token themselves; this is an operational early-warning
// signal, not an authorization check.
func warnIfTokenNearExpiry(token string, logger *zap.Logger) {
	if token == "" {
		return
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		logger.Debug("zcash auth_token is not a parseable JWT, treating as opaque bearer token")
		return
	}
	if _, ok := parsed.Claims.(jwt.MapClaims)["exp"]; !ok {
		logger.Warn("zcash auth_token has no exp claim")
	}
}

// CurrentTip returns the node's current chain height.
func (c *Client) CurrentTip(ctx context.Context) (uint64, error) {
	var height uint64
	if err := c.node.call(ctx, "getblockcount", nil, &height); err != nil {
		return 0, err
	}
	return height, nil
}

type receivedEntry struct {
	TxID          string `json:"txid"`
	Amount        string `json:"amount"`
	Memo          string `json:"memo"`
	Confirmations int64  `json:"confirmations"`
}

type rawTxInfo struct {
	Height int64 `json:"height"`
}

// ScanFrom lists shielded outputs received by the pool address and groups
// them into ConfirmedTx, one per distinct txid, with outputs aggregated
// and memos carried alongside. Entries in blocks below the cursor's block
// are skipped; the cursor's own block is delivered again, since TxPos is
// not compared, and the relayer's idempotent claims absorb the repeats.
func (c *Client) ScanFrom(ctx context.Context, cursor store.ScanCursor) (<-chan relayer.ConfirmedTx, <-chan error) {
	txCh := make(chan relayer.ConfirmedTx)
	errCh := make(chan error, 1)

	go func() {
		defer close(txCh)
		defer close(errCh)

		var entries []receivedEntry
		params := []any{c.cfg.PoolAddress, 1}
		if err := c.wallet.call(ctx, "z_listreceivedbyaddress", params, &entries); err != nil {
			errCh <- err
			return
		}

		byTx := make(map[string]*relayer.ConfirmedTx)
		order := make([]string, 0, len(entries))
		for _, e := range entries {
			amount, err := decimal.NewFromString(e.Amount)
			if err != nil {
				errCh <- bridgeerr.New(bridgeerr.KindMalformedMemo, "unparseable zcash amount", err)
				return
			}
			amountBase := amount.Mul(decimal.NewFromInt(baseUnitsPerCoin)).IntPart()

			memo, err := hex.DecodeString(e.Memo)
			if err != nil {
				memo = nil
			}
			memo = bytes.TrimRight(memo, "\x00")

			tx, ok := byTx[e.TxID]
			if !ok {
				var info rawTxInfo
				if err := c.node.call(ctx, "getrawtransaction", []any{e.TxID, 1}, &info); err != nil {
					errCh <- err
					return
				}
				if info.Height < cursor.LastScannedBlock {
					continue
				}
				tx = &relayer.ConfirmedTx{TxID: e.TxID, BlockHeight: info.Height}
				byTx[e.TxID] = tx
				order = append(order, e.TxID)
			}
			tx.Outputs = append(tx.Outputs, relayer.TxOutput{Pool: c.cfg.PoolAddress, AmountBase: amountBase})
			tx.Memos = append(tx.Memos, memo)
		}

		sort.Slice(order, func(i, j int) bool {
			return byTx[order[i]].BlockHeight < byTx[order[j]].BlockHeight
		})

		for pos, txid := range order {
			tx := *byTx[txid]
			tx.TxPos = pos
			select {
			case txCh <- tx:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()

	return txCh, errCh
}

type operationStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Result struct {
		TxID string `json:"txid"`
	} `json:"result"`
	Error *rpcError `json:"error"`
}

// SendShielded sends amountBase to dest, attaching memo. zcashd's shielded
// send is asynchronous: z_sendmany returns an operation id that must be
// polled via z_getoperationstatus until it reaches a terminal state.
func (c *Client) SendShielded(ctx context.Context, dest string, amountBase int64, memo []byte) (string, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	amount := decimal.NewFromInt(amountBase).Div(decimal.NewFromInt(baseUnitsPerCoin))

	recipient := map[string]any{
		"address": dest,
		"amount":  amount.String(),
	}
	if len(memo) > 0 {
		recipient["memo"] = hex.EncodeToString(memo)
	}

	var opID string
	params := []any{c.cfg.PoolAddress, []any{recipient}}
	if err := c.wallet.call(ctx, "z_sendmany", params, &opID); err != nil {
		return "", err
	}

	return c.pollOperation(ctx, opID)
}

func (c *Client) pollOperation(ctx context.Context, opID string) (string, error) {
	ticker := time.NewTicker(operationPollInterval)
	defer ticker.Stop()

	for {
		var statuses []operationStatus
		if err := c.wallet.call(ctx, "z_getoperationstatus", []any{[]string{opID}}, &statuses); err != nil {
			return "", err
		}
		if len(statuses) == 1 {
			switch statuses[0].Status {
			case "success":
				return statuses[0].Result.TxID, nil
			case "failed":
				msg := "shielded send failed"
				if statuses[0].Error != nil {
					msg = statuses[0].Error.Message
				}
				return "", bridgeerr.New(bridgeerr.KindNodeUnavailable, msg, nil)
			}
		}

		select {
		case <-ctx.Done():
			return "", bridgeerr.New(bridgeerr.KindTimeout, "shielded send did not complete before deadline", ctx.Err())
		case <-ticker.C:
		}
	}
}

type totalBalance struct {
	Private string `json:"private"`
}

// GetBalance returns the pool's current shielded balance.
func (c *Client) GetBalance(ctx context.Context) (relayer.Balance, error) {
	var bal totalBalance
	if err := c.wallet.call(ctx, "z_gettotalbalance", []any{1}, &bal); err != nil {
		return relayer.Balance{}, err
	}
	amount, err := decimal.NewFromString(bal.Private)
	if err != nil {
		return relayer.Balance{}, bridgeerr.New(bridgeerr.KindNodeUnavailable, "unparseable zcash balance", err)
	}
	base := amount.Mul(decimal.NewFromInt(baseUnitsPerCoin)).IntPart()
	return relayer.Balance{Total: base, SpendableByPool: base}, nil
}
