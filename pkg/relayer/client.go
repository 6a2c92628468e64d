package relayer

import (
	"context"

	"github.com/chainsafe/zcash-miden-bridge/pkg/store"
)

// Balance is a Zcash wallet's total and pool-spendable holdings, in base
// units (1 native = 10^8 base units).
type Balance struct {
	Total           int64
	SpendableByPool int64
}

// TxOutput is a single shielded output of a ConfirmedTx addressed to the
// bridge's pool.
type TxOutput struct {
	Pool       string
	AmountBase int64
}

// ConfirmedTx is a confirmed Zcash transaction with outputs addressed to
// the bridge's shielded pool, together with the raw memo bytes attached
// to each output.
type ConfirmedTx struct {
	TxID        string
	BlockHeight int64
	TxPos       int
	Outputs     []TxOutput
	Memos       [][]byte
}

// ZcashClient is a thin asynchronous adapter over the shielded Zcash
// node/wallet. It exposes only the verbs the two relayers need (scanning
// for the Zcash->Miden leg, shielded sends for the Miden->Zcash leg); it
// holds no business logic of its own.
type ZcashClient interface {
	// CurrentTip returns the current chain height.
	CurrentTip(ctx context.Context) (uint64, error)
	// ScanFrom streams confirmed transactions from cursor forward. The
	// error channel carries at most one terminal error; the tx channel is
	// closed once the scan reaches the tip or ctx is canceled.
	ScanFrom(ctx context.Context, cursor store.ScanCursor) (<-chan ConfirmedTx, <-chan error)
	// SendShielded sends amountBase to dest, attaching memo (nil for no
	// memo). It performs scoped acquisition of the wallet's spending key,
	// released on all exit paths. Cancellation stops waiting for
	// confirmation; it does not re-submit.
	SendShielded(ctx context.Context, dest string, amountBase int64, memo []byte) (string, error)
	// GetBalance returns the pool's current balance.
	GetBalance(ctx context.Context) (Balance, error)
}

// ExitNote is a burn/transfer note sent to the bridge's Miden account
// carrying the destination Zcash address and amount to pay out.
type ExitNote struct {
	NoteID       string
	ZcashAddress string
	AmountBase   int64
}

// MidenClient is a thin asynchronous adapter over the Miden rollup RPC.
// It exposes only the verbs the two relayers need (minting for the
// Zcash->Miden leg, exit-note listing and consumption for the Miden->Zcash
// leg).
type MidenClient interface {
	// Sync advances the client's local view of rollup state.
	Sync(ctx context.Context) error
	// MintP2IDH mints a hash-locked note from faucet, redeemable only by
	// whoever can reproduce recipientHash.
	MintP2IDH(ctx context.Context, faucet string, recipientHash [32]byte, amountBase int64) (string, error)
	// ListConsumableExitNotes streams notes addressed to bridgeAccountID
	// carrying the well-known exit tag.
	ListConsumableExitNotes(ctx context.Context, bridgeAccountID string) (<-chan ExitNote, <-chan error)
	// ConsumeNote consumes note noteID on behalf of bridgeAccountID,
	// returning the rollup's consumption tx id (the Zcash payout is
	// driven separately by the caller).
	ConsumeNote(ctx context.Context, bridgeAccountID, noteID string) (string, error)
	// GetVaultBalance returns the wrapped-asset balance of accountID for
	// faucetID.
	GetVaultBalance(ctx context.Context, accountID, faucetID string) (int64, error)
}
