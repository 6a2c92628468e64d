package store

import (
	"time"

	"github.com/google/uuid"
)

// IntentStatus is the lifecycle state of a DepositIntent.
type IntentStatus string

const (
	IntentStatusOpen        IntentStatus = "open"
	IntentStatusObserved    IntentStatus = "observed"
	IntentStatusMinted      IntentStatus = "minted"
	IntentStatusSettled     IntentStatus = "settled"
	IntentStatusUnclaimable IntentStatus = "unclaimable"
	IntentStatusQuarantined IntentStatus = "quarantined"
)

// WithdrawalStatus is the lifecycle state of a Withdrawal. The sequence is
// Open -> Claimed -> Consumed -> Paid -> Settled; each step is persisted
// before the next chain call is attempted, so a crash anywhere resumes at
// the next state instead of repeating the last one.
type WithdrawalStatus string

const (
	WithdrawalStatusOpen     WithdrawalStatus = "open"
	WithdrawalStatusClaimed  WithdrawalStatus = "claimed"
	WithdrawalStatusConsumed WithdrawalStatus = "consumed"
	WithdrawalStatusPaid     WithdrawalStatus = "paid"
	WithdrawalStatusSettled  WithdrawalStatus = "settled"
)

// Chain identifies a side of the bridge for scan cursors.
type Chain string

const (
	ChainZcash Chain = "zcash"
)

// DepositIntent records a user's request for a recipient_hash and tracks
// its lifecycle through observation, minting, and settlement.
type DepositIntent struct {
	ID            uuid.UUID    `db:"id"`
	AccountID     string       `db:"account_id"`
	RecipientHash [32]byte     `db:"recipient_hash"`
	Status        IntentStatus `db:"status"`
	SourceTxID    *string      `db:"source_txid"`
	AmountBase    *int64       `db:"amount_base"`
	MintNoteID    *string      `db:"mint_note_id"`
	MintAttempts  int          `db:"mint_attempts"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
}

// Withdrawal records a burn-and-payout request moving value from Miden
// back to a shielded Zcash address.
type Withdrawal struct {
	ID                      uuid.UUID        `db:"id"`
	OriginAccountID         string           `db:"origin_account_id"`
	DestinationZcashAddress string           `db:"destination_zcash_address"`
	AmountBase              int64            `db:"amount_base"`
	Status                  WithdrawalStatus `db:"status"`
	SourceNoteID            *string          `db:"source_note_id"`
	TargetTxID              *string          `db:"target_txid"`
	CreatedAt               time.Time        `db:"created_at"`
	UpdatedAt               time.Time        `db:"updated_at"`
}

// ScanCursor records how far the engine has consumed a source chain.
type ScanCursor struct {
	Chain            Chain     `db:"chain"`
	LastScannedBlock int64     `db:"last_scanned_block"`
	LastScannedTxPos int       `db:"last_scanned_txpos"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// IdempotencyKey marks a source event as handled so retries are rejected.
type IdempotencyKey struct {
	SourceChain string    `db:"source_chain"`
	SourceID    string    `db:"source_id"`
	Outcome     string    `db:"outcome"`
	CreatedAt   time.Time `db:"created_at"`
}
