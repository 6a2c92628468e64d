package relayer

import (
	"github.com/google/uuid"

	"github.com/chainsafe/zcash-miden-bridge/pkg/store"
)

// BridgeStore is the subset of pkg/store.Store the relayer loops depend
// on. Defined as an interface here so processors can be tested against an
// in-memory fake without a Postgres instance.
type BridgeStore interface {
	UpsertIntent(accountID string, recipientHash [32]byte) (*store.DepositIntent, error)
	ClaimDeposit(sourceTxID string, recipientHash [32]byte, amountBase int64) (*store.DepositIntent, error)
	GetIntentByRecipientHash(recipientHash [32]byte) (*store.DepositIntent, error)
	MarkMinted(intentID uuid.UUID, mintNoteID string, amountBase int64) error
	MarkQuarantined(intentID uuid.UUID) error
	IncrementMintAttempts(intentID uuid.UUID) (int, error)
	MarkUnclaimable(sourceTxID string) error

	CreateWithdrawal(originAccountID, zcashAddress string, amountBase int64) (*store.Withdrawal, error)
	ClaimWithdrawal(sourceNoteID, zcashAddress string, amountBase int64) (*store.Withdrawal, error)
	ReleaseWithdrawal(withdrawalID uuid.UUID) error
	MarkConsumed(withdrawalID uuid.UUID) error
	MarkSent(withdrawalID uuid.UUID, targetTxID string) error
	MarkPaid(withdrawalID uuid.UUID, targetTxID string) error

	AdvanceCursor(chain store.Chain, lastScannedBlock int64, lastScannedTxPos int) error
	GetCursor(chain store.Chain) (*store.ScanCursor, error)

	GetIntent(id uuid.UUID) (*store.DepositIntent, error)
	GetWithdrawal(id uuid.UUID) (*store.Withdrawal, error)
	ListIntents(limit int) ([]*store.DepositIntent, error)
	ListWithdrawals(limit int) ([]*store.Withdrawal, error)
}
