package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/migrate"

	"github.com/chainsafe/zcash-miden-bridge/pkg/pgutil"
	"github.com/chainsafe/zcash-miden-bridge/pkg/store/migrations"
)

// newTestStore spins up a Postgres testcontainer, applies the real schema
// migrations, and returns a Store wired to it directly (not through
// NewStore, since the container's DSN is only known after it starts).
func newTestStore(t *testing.T) (*Store, func()) {
	t.Helper()
	db, cleanup := pgutil.SetupTestDB(t)

	migrator := migrate.NewMigrator(db, migrations.Migrations)
	ctx := context.Background()
	require.NoError(t, migrator.Init(ctx))
	_, err := migrator.Migrate(ctx)
	require.NoError(t, err)

	return &Store{db: db.DB}, cleanup
}

func hashFor(b byte) [32]byte {
	var h [32]byte
	h[0] = b
	return h
}

// TestClaimDepositIdempotent covers P5/S2: the same source txid claimed
// twice must only ever produce one observed intent, and the second call
// must report "already handled" rather than creating a duplicate.
func TestClaimDepositIdempotent(t *testing.T) {
	st, cleanup := newTestStore(t)
	defer cleanup()

	hash := hashFor(1)
	first, err := st.ClaimDeposit("zcash-tx-1", hash, 5_000_000)
	require.NoError(t, err)
	require.NotNil(t, first)
	require.Equal(t, IntentStatusObserved, first.Status)

	second, err := st.ClaimDeposit("zcash-tx-1", hash, 5_000_000)
	require.NoError(t, err)
	require.Nil(t, second)

	// A distinct txid reusing the same recipient_hash (a topped-up
	// deposit before minting) must update the same row, not create
	// another one.
	third, err := st.ClaimDeposit("zcash-tx-2", hash, 9_000_000)
	require.NoError(t, err)
	require.NotNil(t, third)
	require.Equal(t, first.ID, third.ID)
	require.EqualValues(t, 9_000_000, *third.AmountBase)
}

// TestClaimDepositBackCreatesUnknownIntent covers the back-creation path:
// a confirmed deposit whose recipient_hash has no UpsertIntent row yet
// still produces a claimable intent.
func TestClaimDepositBackCreatesUnknownIntent(t *testing.T) {
	st, cleanup := newTestStore(t)
	defer cleanup()

	hash := hashFor(2)
	intent, err := st.ClaimDeposit("zcash-tx-unknown", hash, 1_234_000)
	require.NoError(t, err)
	require.NotNil(t, intent)
	require.Equal(t, hash, intent.RecipientHash)
	require.Equal(t, IntentStatusObserved, intent.Status)
}

// TestClaimWithdrawalIdempotent covers P5/S2's withdrawal-leg analogue: a
// note id claimed twice resumes the same row instead of rebinding or
// double-creating, and a settled row returns (nil, nil) on replay.
func TestClaimWithdrawalIdempotent(t *testing.T) {
	st, cleanup := newTestStore(t)
	defer cleanup()

	w, err := st.CreateWithdrawal("acct-1", "utest1dest", 2_000_000)
	require.NoError(t, err)

	claimed, err := st.ClaimWithdrawal("exit-1", "utest1dest", 2_000_000)
	require.NoError(t, err)
	require.Equal(t, w.ID, claimed.ID)
	require.Equal(t, WithdrawalStatusClaimed, claimed.Status)

	// Resuming the same note id mid-flight must not rebind or duplicate.
	resumed, err := st.ClaimWithdrawal("exit-1", "utest1dest", 2_000_000)
	require.NoError(t, err)
	require.Equal(t, w.ID, resumed.ID)
	require.Equal(t, WithdrawalStatusClaimed, resumed.Status)

	require.NoError(t, st.MarkConsumed(w.ID))
	require.NoError(t, st.MarkSent(w.ID, "zcash-target-tx"))
	require.NoError(t, st.MarkPaid(w.ID, "zcash-target-tx"))

	settled, err := st.ClaimWithdrawal("exit-1", "utest1dest", 2_000_000)
	require.NoError(t, err)
	require.Nil(t, settled)
}

// TestClaimWithdrawalCorrelatesByPayloadNotFIFO is the regression guard
// for the fix in ClaimWithdrawal: with two withdrawals open at once, a
// note must bind to the row whose address/amount it actually matches,
// never the row that merely happens to be oldest.
func TestClaimWithdrawalCorrelatesByPayloadNotFIFO(t *testing.T) {
	st, cleanup := newTestStore(t)
	defer cleanup()

	wOld, err := st.CreateWithdrawal("acct-old", "uteOlddest", 1_000_000)
	require.NoError(t, err)
	wNew, err := st.CreateWithdrawal("acct-new", "uteNewdest", 9_000_000)
	require.NoError(t, err)

	// The note matches the newer row, not the older one.
	claimed, err := st.ClaimWithdrawal("exit-new", "uteNewdest", 9_000_000)
	require.NoError(t, err)
	require.Equal(t, wNew.ID, claimed.ID)

	stillOpen, err := st.GetWithdrawal(wOld.ID)
	require.NoError(t, err)
	require.Equal(t, WithdrawalStatusOpen, stillOpen.Status)
}

// TestClaimWithdrawalBackCreatesUnmatchedNote covers the back-creation
// path: an exit note with no pre-registered CreateWithdrawal row still
// produces a claimable withdrawal keyed on the note's own payload.
func TestClaimWithdrawalBackCreatesUnmatchedNote(t *testing.T) {
	st, cleanup := newTestStore(t)
	defer cleanup()

	w, err := st.ClaimWithdrawal("exit-unregistered", "uteUnregistered", 500_000)
	require.NoError(t, err)
	require.NotNil(t, w)
	require.Equal(t, "uteUnregistered", w.DestinationZcashAddress)
	require.EqualValues(t, 500_000, w.AmountBase)
	require.Equal(t, WithdrawalStatusClaimed, w.Status)
}

// TestReleaseWithdrawalAllowsReclaim covers the compensating-write path:
// after a release, the same note id must be re-claimable rather than
// permanently stuck.
func TestReleaseWithdrawalAllowsReclaim(t *testing.T) {
	st, cleanup := newTestStore(t)
	defer cleanup()

	w, err := st.CreateWithdrawal("acct-1", "utest1dest", 3_000_000)
	require.NoError(t, err)

	_, err = st.ClaimWithdrawal("exit-1", "utest1dest", 3_000_000)
	require.NoError(t, err)

	require.NoError(t, st.ReleaseWithdrawal(w.ID))
	released, err := st.GetWithdrawal(w.ID)
	require.NoError(t, err)
	require.Equal(t, WithdrawalStatusOpen, released.Status)
	require.Nil(t, released.SourceNoteID)

	reclaimed, err := st.ClaimWithdrawal("exit-1", "utest1dest", 3_000_000)
	require.NoError(t, err)
	require.Equal(t, w.ID, reclaimed.ID)
	require.Equal(t, WithdrawalStatusClaimed, reclaimed.Status)
}

// TestAdvanceCursorIsMonotone covers P3: the cursor never moves backward
// even if a stale tick tries to persist an earlier position.
func TestAdvanceCursorIsMonotone(t *testing.T) {
	st, cleanup := newTestStore(t)
	defer cleanup()

	require.NoError(t, st.AdvanceCursor(ChainZcash, 100, 2))
	require.NoError(t, st.AdvanceCursor(ChainZcash, 50, 0))

	cur, err := st.GetCursor(ChainZcash)
	require.NoError(t, err)
	require.EqualValues(t, 100, cur.LastScannedBlock)
}
