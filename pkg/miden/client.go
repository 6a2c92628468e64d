package miden

import (
	"context"
	"encoding/hex"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/chainsafe/zcash-miden-bridge/pkg/bridgeerr"
	"github.com/chainsafe/zcash-miden-bridge/pkg/config"
	"github.com/chainsafe/zcash-miden-bridge/pkg/relayer"
)

// Client is a JSON-RPC adapter over the Miden rollup node. It serialises
// transaction building per account with accountLocks, since the rollup
// enforces strict nonce ordering on account state updates (spec.md §5
// "Shared resources").
type Client struct {
	cfg    *config.MidenConfig
	rpc    *rpcClient
	logger *zap.Logger

	accountLocksMu sync.Mutex
	accountLocks   map[string]*sync.Mutex
}

// New constructs a Miden rollup client from configuration.
func New(cfg *config.MidenConfig, logger *zap.Logger) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, bridgeerr.New(bridgeerr.KindConfigMissing, "miden.rpc_url is required", nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	return &Client{
		cfg:          cfg,
		rpc:          newRPCClient(cfg.RPCURL, cfg.AuthToken, httpClient),
		logger:       logger,
		accountLocks: make(map[string]*sync.Mutex),
	}, nil
}

func (c *Client) lockFor(accountID string) *sync.Mutex {
	c.accountLocksMu.Lock()
	defer c.accountLocksMu.Unlock()
	l, ok := c.accountLocks[accountID]
	if !ok {
		l = &sync.Mutex{}
		c.accountLocks[accountID] = l
	}
	return l
}

// Sync advances the client's local view of rollup state.
func (c *Client) Sync(ctx context.Context) error {
	return c.rpc.call(ctx, "sync_state", nil, nil)
}

type mintParams struct {
	Faucet        string `json:"faucet_id"`
	RecipientHash string `json:"recipient_hash"`
	AmountBase    int64  `json:"amount_base"`
}

type mintResult struct {
	NoteID string `json:"note_id"`
}

// MintP2IDH mints a hash-locked note from faucet, redeemable only by
// whoever can reproduce recipientHash.
func (c *Client) MintP2IDH(ctx context.Context, faucet string, recipientHash [32]byte, amountBase int64) (string, error) {
	lock := c.lockFor(faucet)
	lock.Lock()
	defer lock.Unlock()

	var res mintResult
	params := mintParams{
		Faucet:        faucet,
		RecipientHash: hex.EncodeToString(recipientHash[:]),
		AmountBase:    amountBase,
	}
	if err := c.rpc.call(ctx, "mint_p2idh", params, &res); err != nil {
		return "", err
	}
	return res.NoteID, nil
}

type noteListParams struct {
	AccountID string `json:"account_id"`
	Tag       uint16 `json:"tag"`
}

type exitNoteWire struct {
	NoteID  string `json:"note_id"`
	Payload struct {
		ZcashAddress string `json:"zcash_address"`
		AmountBase   int64  `json:"amount_base"`
	} `json:"payload"`
}

// ListConsumableExitNotes streams notes addressed to bridgeAccountID
// carrying the well-known exit tag.
func (c *Client) ListConsumableExitNotes(ctx context.Context, bridgeAccountID string) (<-chan relayer.ExitNote, <-chan error) {
	noteCh := make(chan relayer.ExitNote)
	errCh := make(chan error, 1)

	go func() {
		defer close(noteCh)
		defer close(errCh)

		var wire []exitNoteWire
		params := noteListParams{AccountID: bridgeAccountID, Tag: c.cfg.ExitTag}
		if err := c.rpc.call(ctx, "list_consumable_notes", params, &wire); err != nil {
			errCh <- err
			return
		}

		for _, w := range wire {
			note := relayer.ExitNote{
				NoteID:       w.NoteID,
				ZcashAddress: w.Payload.ZcashAddress,
				AmountBase:   w.Payload.AmountBase,
			}
			select {
			case noteCh <- note:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()

	return noteCh, errCh
}

type consumeParams struct {
	AccountID string `json:"account_id"`
	NoteID    string `json:"note_id"`
}

type consumeResult struct {
	TxID string `json:"tx_id"`
}

// ConsumeNote consumes note noteID on behalf of bridgeAccountID, returning
// the rollup's consumption tx id.
func (c *Client) ConsumeNote(ctx context.Context, bridgeAccountID, noteID string) (string, error) {
	lock := c.lockFor(bridgeAccountID)
	lock.Lock()
	defer lock.Unlock()

	var res consumeResult
	params := consumeParams{AccountID: bridgeAccountID, NoteID: noteID}
	if err := c.rpc.call(ctx, "consume_note", params, &res); err != nil {
		return "", err
	}
	return res.TxID, nil
}

type vaultBalanceParams struct {
	AccountID string `json:"account_id"`
	FaucetID  string `json:"faucet_id"`
}

type vaultBalanceResult struct {
	AmountBase int64 `json:"amount_base"`
}

// GetVaultBalance returns the wrapped-asset balance of accountID for
// faucetID.
func (c *Client) GetVaultBalance(ctx context.Context, accountID, faucetID string) (int64, error) {
	var res vaultBalanceResult
	params := vaultBalanceParams{AccountID: accountID, FaucetID: faucetID}
	if err := c.rpc.call(ctx, "get_vault_balance", params, &res); err != nil {
		return 0, err
	}
	return res.AmountBase, nil
}

type createAccountResult struct {
	AccountID string `json:"account_id"`
}

// CreateAccount asks the rollup to allocate a fresh, empty account. It
// backs the facade's optional /account/create server-custodied onboarding
// path (spec.md §6); the primary flow never calls it, since keys normally
// live in the browser's rollup store.
func (c *Client) CreateAccount(ctx context.Context) ([]byte, error) {
	var res createAccountResult
	if err := c.rpc.call(ctx, "create_account", nil, &res); err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(res.AccountID)
	if err != nil {
		return nil, bridgeerr.New(bridgeerr.KindNodeUnavailable, "rollup returned malformed account id", err)
	}
	return raw, nil
}
