package relayer

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/chainsafe/zcash-miden-bridge/pkg/store"
)

// fakeStore is an in-memory BridgeStore mirroring pkg/store.Store's
// single-row-transaction semantics closely enough to exercise the
// relayer loops' idempotency and crash-recovery properties without a
// Postgres instance.
type fakeStore struct {
	mu sync.Mutex

	intentsByHash map[[32]byte]*store.DepositIntent
	intentsByID   map[uuid.UUID]*store.DepositIntent
	claimedTxIDs  map[string]bool
	unclaimable   map[string]bool

	withdrawals      map[uuid.UUID]*store.Withdrawal
	withdrawalByNote map[string]uuid.UUID

	cursors map[store.Chain]*store.ScanCursor
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		intentsByHash:    make(map[[32]byte]*store.DepositIntent),
		intentsByID:      make(map[uuid.UUID]*store.DepositIntent),
		claimedTxIDs:     make(map[string]bool),
		unclaimable:      make(map[string]bool),
		withdrawals:      make(map[uuid.UUID]*store.Withdrawal),
		withdrawalByNote: make(map[string]uuid.UUID),
		cursors:          make(map[store.Chain]*store.ScanCursor),
	}
}

func (f *fakeStore) UpsertIntent(accountID string, recipientHash [32]byte) (*store.DepositIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.intentsByHash[recipientHash]; ok {
		return existing, nil
	}
	intent := &store.DepositIntent{ID: uuid.New(), AccountID: accountID, RecipientHash: recipientHash, Status: store.IntentStatusOpen}
	f.intentsByHash[recipientHash] = intent
	f.intentsByID[intent.ID] = intent
	return intent, nil
}

func (f *fakeStore) ClaimDeposit(sourceTxID string, recipientHash [32]byte, amountBase int64) (*store.DepositIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimedTxIDs[sourceTxID] {
		return nil, nil
	}
	f.claimedTxIDs[sourceTxID] = true

	intent, ok := f.intentsByHash[recipientHash]
	if !ok {
		intent = &store.DepositIntent{ID: uuid.New(), RecipientHash: recipientHash, Status: store.IntentStatusObserved}
		f.intentsByHash[recipientHash] = intent
		f.intentsByID[intent.ID] = intent
	}
	intent.Status = store.IntentStatusObserved
	intent.SourceTxID = &sourceTxID
	intent.AmountBase = &amountBase
	return intent, nil
}

func (f *fakeStore) GetIntentByRecipientHash(recipientHash [32]byte) (*store.DepositIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.intentsByHash[recipientHash], nil
}

func (f *fakeStore) MarkMinted(intentID uuid.UUID, mintNoteID string, amountBase int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	intent := f.intentsByID[intentID]
	intent.Status = store.IntentStatusMinted
	intent.MintNoteID = &mintNoteID
	intent.AmountBase = &amountBase
	return nil
}

func (f *fakeStore) MarkQuarantined(intentID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intentsByID[intentID].Status = store.IntentStatusQuarantined
	return nil
}

func (f *fakeStore) IncrementMintAttempts(intentID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	intent := f.intentsByID[intentID]
	intent.MintAttempts++
	return intent.MintAttempts, nil
}

func (f *fakeStore) MarkUnclaimable(sourceTxID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unclaimable[sourceTxID] = true
	return nil
}

func (f *fakeStore) CreateWithdrawal(originAccountID, zcashAddress string, amountBase int64) (*store.Withdrawal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &store.Withdrawal{
		ID:                      uuid.New(),
		OriginAccountID:         originAccountID,
		DestinationZcashAddress: zcashAddress,
		AmountBase:              amountBase,
		Status:                  store.WithdrawalStatusOpen,
	}
	f.withdrawals[w.ID] = w
	return w, nil
}

// seedOpenWithdrawal lets a test insert an Open withdrawal directly,
// mirroring a prior CreateWithdrawal call made before any exit note
// was observed.
func (f *fakeStore) seedOpenWithdrawal(w *store.Withdrawal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.withdrawals[w.ID] = w
}

func (f *fakeStore) ClaimWithdrawal(sourceNoteID, zcashAddress string, amountBase int64) (*store.Withdrawal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if id, ok := f.withdrawalByNote[sourceNoteID]; ok {
		w := f.withdrawals[id]
		if w.Status == store.WithdrawalStatusSettled {
			return nil, nil
		}
		return w, nil
	}

	for _, w := range f.withdrawals {
		if w.SourceNoteID == nil && w.Status == store.WithdrawalStatusOpen &&
			w.DestinationZcashAddress == zcashAddress && w.AmountBase == amountBase {
			w.Status = store.WithdrawalStatusClaimed
			w.SourceNoteID = &sourceNoteID
			f.withdrawalByNote[sourceNoteID] = w.ID
			return w, nil
		}
	}

	w := &store.Withdrawal{
		ID:                      uuid.New(),
		DestinationZcashAddress: zcashAddress,
		AmountBase:              amountBase,
		Status:                  store.WithdrawalStatusClaimed,
		SourceNoteID:            &sourceNoteID,
	}
	f.withdrawals[w.ID] = w
	f.withdrawalByNote[sourceNoteID] = w.ID
	return w, nil
}

func (f *fakeStore) ReleaseWithdrawal(withdrawalID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := f.withdrawals[withdrawalID]
	if w.SourceNoteID != nil {
		delete(f.withdrawalByNote, *w.SourceNoteID)
	}
	w.Status = store.WithdrawalStatusOpen
	w.SourceNoteID = nil
	return nil
}

func (f *fakeStore) MarkConsumed(withdrawalID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.withdrawals[withdrawalID].Status = store.WithdrawalStatusConsumed
	return nil
}

func (f *fakeStore) MarkSent(withdrawalID uuid.UUID, targetTxID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := f.withdrawals[withdrawalID]
	w.Status = store.WithdrawalStatusPaid
	w.TargetTxID = &targetTxID
	return nil
}

func (f *fakeStore) MarkPaid(withdrawalID uuid.UUID, targetTxID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := f.withdrawals[withdrawalID]
	w.Status = store.WithdrawalStatusSettled
	w.TargetTxID = &targetTxID
	return nil
}

func (f *fakeStore) AdvanceCursor(chain store.Chain, lastScannedBlock int64, lastScannedTxPos int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur := f.cursors[chain]
	if cur != nil && lastScannedBlock < cur.LastScannedBlock {
		return nil
	}
	f.cursors[chain] = &store.ScanCursor{Chain: chain, LastScannedBlock: lastScannedBlock, LastScannedTxPos: lastScannedTxPos}
	return nil
}

func (f *fakeStore) GetCursor(chain store.Chain) (*store.ScanCursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursors[chain], nil
}

func (f *fakeStore) GetIntent(id uuid.UUID) (*store.DepositIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.intentsByID[id], nil
}

func (f *fakeStore) GetWithdrawal(id uuid.UUID) (*store.Withdrawal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.withdrawals[id], nil
}

func (f *fakeStore) ListIntents(limit int) ([]*store.DepositIntent, error) { return nil, nil }
func (f *fakeStore) ListWithdrawals(limit int) ([]*store.Withdrawal, error) { return nil, nil }

// fakeZcashClient serves a fixed, mutable set of confirmed transactions
// from ScanFrom and records SendShielded calls.
type fakeZcashClient struct {
	mu   sync.Mutex
	txs  []ConfirmedTx
	sent []sentPayment

	sendErrOnce error
}

type sentPayment struct {
	dest       string
	amountBase int64
}

func (f *fakeZcashClient) CurrentTip(ctx context.Context) (uint64, error) { return 0, nil }

func (f *fakeZcashClient) ScanFrom(ctx context.Context, cursor store.ScanCursor) (<-chan ConfirmedTx, <-chan error) {
	txCh := make(chan ConfirmedTx, len(f.txs))
	errCh := make(chan error, 1)
	f.mu.Lock()
	for _, tx := range f.txs {
		if tx.BlockHeight > cursor.LastScannedBlock ||
			(tx.BlockHeight == cursor.LastScannedBlock && tx.TxPos >= cursor.LastScannedTxPos) {
			txCh <- tx
		}
	}
	f.mu.Unlock()
	close(txCh)
	errCh <- nil
	return txCh, errCh
}

func (f *fakeZcashClient) SendShielded(ctx context.Context, dest string, amountBase int64, memo []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErrOnce != nil {
		err := f.sendErrOnce
		f.sendErrOnce = nil
		return "", err
	}
	f.sent = append(f.sent, sentPayment{dest: dest, amountBase: amountBase})
	return "zcash-tx-" + dest, nil
}

func (f *fakeZcashClient) GetBalance(ctx context.Context) (Balance, error) { return Balance{}, nil }

// fakeMidenClient mints notes on request and serves a fixed set of exit
// notes; ConsumeNote can be made to fail exactly once to exercise §4.5's
// release-and-retry path.
type fakeMidenClient struct {
	mu           sync.Mutex
	minted       []mintedNote
	mintErrOnce  error
	exitNotes    []ExitNote
	consumeErr   error
	consumeCalls map[string]int
}

type mintedNote struct {
	faucet        string
	recipientHash [32]byte
	amountBase    int64
	noteID        string
}

func newFakeMidenClient() *fakeMidenClient {
	return &fakeMidenClient{consumeCalls: make(map[string]int)}
}

func (f *fakeMidenClient) Sync(ctx context.Context) error { return nil }

func (f *fakeMidenClient) MintP2IDH(ctx context.Context, faucet string, recipientHash [32]byte, amountBase int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mintErrOnce != nil {
		err := f.mintErrOnce
		f.mintErrOnce = nil
		return "", err
	}
	noteID := "note-" + uuid.NewString()
	f.minted = append(f.minted, mintedNote{faucet: faucet, recipientHash: recipientHash, amountBase: amountBase, noteID: noteID})
	return noteID, nil
}

func (f *fakeMidenClient) ListConsumableExitNotes(ctx context.Context, bridgeAccountID string) (<-chan ExitNote, <-chan error) {
	noteCh := make(chan ExitNote, len(f.exitNotes))
	errCh := make(chan error, 1)
	for _, n := range f.exitNotes {
		noteCh <- n
	}
	close(noteCh)
	errCh <- nil
	return noteCh, errCh
}

func (f *fakeMidenClient) ConsumeNote(ctx context.Context, bridgeAccountID, noteID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consumeCalls[noteID]++
	if f.consumeErr != nil {
		err := f.consumeErr
		f.consumeErr = nil
		return "", err
	}
	return "miden-consume-" + noteID, nil
}

func (f *fakeMidenClient) GetVaultBalance(ctx context.Context, accountID, faucetID string) (int64, error) {
	return 0, nil
}
