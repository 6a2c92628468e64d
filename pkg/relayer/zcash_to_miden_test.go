package relayer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/zcash-miden-bridge/pkg/store"
)

func testLogger() *zap.Logger { return zap.NewNop() }

func mustHash(b byte) [32]byte {
	var h [32]byte
	h[31] = b
	return h
}

// TestHappyDeposit covers S1: a confirmed deposit with a well-formed
// memo is claimed, minted exactly once, and the intent settles Minted.
func TestHappyDeposit(t *testing.T) {
	st := newFakeStore()
	zcashCli := &fakeZcashClient{txs: []ConfirmedTx{
		{
			TxID:        "tx1",
			BlockHeight: 100,
			TxPos:       0,
			Outputs:     []TxOutput{{Pool: "pool", AmountBase: 30_000_000}},
			Memos:       [][]byte{[]byte(hexOf(mustHash(1)))},
		},
	}}
	midenCli := newFakeMidenClient()
	p := NewZcashToMidenProcessor(zcashCli, midenCli, st, testLogger(), "faucet-1", 8, time.Millisecond, 4)

	require.NoError(t, p.Tick(context.Background()))

	require.Len(t, midenCli.minted, 1)
	require.Equal(t, mustHash(1), midenCli.minted[0].recipientHash)
	require.EqualValues(t, 30_000_000, midenCli.minted[0].amountBase)

	intent := st.intentsByHash[mustHash(1)]
	require.NotNil(t, intent)
	require.Equal(t, store.IntentStatusMinted, intent.Status)

	cursor, err := st.GetCursor(store.ChainZcash)
	require.NoError(t, err)
	require.NotNil(t, cursor)
	require.EqualValues(t, 100, cursor.LastScannedBlock)
	require.EqualValues(t, 1, cursor.LastScannedTxPos)
}

// TestDuplicateConfirmationIsNoOp covers S2: redelivering the same txid
// mints nothing a second time.
func TestDuplicateConfirmationIsNoOp(t *testing.T) {
	st := newFakeStore()
	tx := ConfirmedTx{
		TxID:        "tx1",
		BlockHeight: 100,
		Outputs:     []TxOutput{{Pool: "pool", AmountBase: 10_000_000}},
		Memos:       [][]byte{[]byte(hexOf(mustHash(2)))},
	}
	zcashCli := &fakeZcashClient{txs: []ConfirmedTx{tx}}
	midenCli := newFakeMidenClient()
	p := NewZcashToMidenProcessor(zcashCli, midenCli, st, testLogger(), "faucet-1", 8, time.Millisecond, 4)

	require.NoError(t, p.Tick(context.Background()))
	// Rewind the cursor so the second tick is handed tx1 again.
	delete(st.cursors, store.ChainZcash)
	require.NoError(t, p.Tick(context.Background()))

	require.Len(t, midenCli.minted, 1)
}

// TestMalformedMemoIsUnclaimable covers S5: a memo that does not parse
// as a recipient hash is marked Unclaimable, never minted, and the
// cursor still advances past it.
func TestMalformedMemoIsUnclaimable(t *testing.T) {
	st := newFakeStore()
	zcashCli := &fakeZcashClient{txs: []ConfirmedTx{
		{
			TxID:        "tx-bad",
			BlockHeight: 50,
			TxPos:       2,
			Outputs:     []TxOutput{{Pool: "pool", AmountBase: 1}},
			Memos:       [][]byte{[]byte("hello")},
		},
	}}
	midenCli := newFakeMidenClient()
	p := NewZcashToMidenProcessor(zcashCli, midenCli, st, testLogger(), "faucet-1", 8, time.Millisecond, 4)

	require.NoError(t, p.Tick(context.Background()))

	require.Empty(t, midenCli.minted)
	require.True(t, st.unclaimable["tx-bad"])

	cursor, err := st.GetCursor(store.ChainZcash)
	require.NoError(t, err)
	require.NotNil(t, cursor)
	require.EqualValues(t, 50, cursor.LastScannedBlock)
}

// TestMintFailureBlocksCursorUntilQuarantine covers the §4.4 edge case:
// a persistently failing mint must not advance the cursor past its tx
// until MAX_MINT_ATTEMPTS is reached, after which it is quarantined and
// the cursor moves on.
func TestMintFailureBlocksCursorUntilQuarantine(t *testing.T) {
	st := newFakeStore()
	tx := ConfirmedTx{
		TxID:        "tx-poison",
		BlockHeight: 10,
		Outputs:     []TxOutput{{Pool: "pool", AmountBase: 1}},
		Memos:       [][]byte{[]byte(hexOf(mustHash(3)))},
	}
	zcashCli := &fakeZcashClient{txs: []ConfirmedTx{tx}}
	midenCli := newFakeMidenClient()
	p := NewZcashToMidenProcessor(zcashCli, midenCli, st, testLogger(), "faucet-1", 2, time.Millisecond, 4)

	midenCli.mintErrOnce = errors.New("rpc down")
	require.NoError(t, p.Tick(context.Background()))
	cursor, err := st.GetCursor(store.ChainZcash)
	require.NoError(t, err)
	require.Nil(t, cursor)

	midenCli.mintErrOnce = errors.New("rpc down again")
	require.NoError(t, p.Tick(context.Background()))
	cursor, err = st.GetCursor(store.ChainZcash)
	require.NoError(t, err)
	require.NotNil(t, cursor)

	intent := st.intentsByHash[mustHash(3)]
	require.Equal(t, store.IntentStatusQuarantined, intent.Status)
	require.Empty(t, midenCli.minted)
}

func hexOf(h [32]byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, 64)
	for i, b := range h {
		out[i*2] = hextable[b>>4]
		out[i*2+1] = hextable[b&0x0f]
	}
	return string(out)
}
