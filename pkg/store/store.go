// Package store implements the bridge's durable state: deposit intents,
// withdrawals, per-chain scan cursors, and the idempotency log that
// together give the relayers an exactly-once externally observable
// effect on top of at-least-once chain observation.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Store provides the durable operations the relayers and HTTP facade need.
// Every mutation below is a single-row transaction, so a crash between a
// source-chain observation and its persistence leaves the row in a
// well-defined, resumable state.
type Store struct {
	db *sql.DB
}

// NewStore opens a connection pool to the bridge's Postgres database.
func NewStore(connString string) (*Store, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertIntent creates (or returns the existing) DepositIntent for a
// (account_id, recipient_hash) pair. Idempotent on recipient_hash: calling
// it twice with the same hash returns the same row.
func (s *Store) UpsertIntent(accountID string, recipientHash [32]byte) (*DepositIntent, error) {
	query := `
		INSERT INTO deposit_intents (id, account_id, recipient_hash, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (recipient_hash) DO UPDATE SET recipient_hash = EXCLUDED.recipient_hash
		RETURNING id, account_id, recipient_hash, status, source_txid, amount_base,
			mint_note_id, mint_attempts, created_at, updated_at
	`
	intent := &DepositIntent{}
	var hash []byte
	err := s.db.QueryRow(query, uuid.New(), accountID, recipientHash[:], IntentStatusOpen).Scan(
		&intent.ID, &intent.AccountID, &hash, &intent.Status, &intent.SourceTxID,
		&intent.AmountBase, &intent.MintNoteID, &intent.MintAttempts,
		&intent.CreatedAt, &intent.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert intent: %w", err)
	}
	copy(intent.RecipientHash[:], hash)
	return intent, nil
}

// ClaimDeposit atomically binds a confirmed deposit to its intent row,
// back-creating the intent when no matching recipient_hash is known yet
// (the user's secret lives only on their device, so the bridge must still
// mint). A second call with the same source txid returns (nil, nil):
// already handled.
func (s *Store) ClaimDeposit(sourceTxID string, recipientHash [32]byte, amountBase int64) (*DepositIntent, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("claim deposit begin: %w", err)
	}
	defer tx.Rollback()

	var claimed bool
	err = tx.QueryRow(
		`INSERT INTO idempotency_keys (source_chain, source_id, outcome)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (source_chain, source_id) DO NOTHING
		 RETURNING true`,
		"zcash", sourceTxID, "claimed",
	).Scan(&claimed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim deposit idempotency: %w", err)
	}

	intent := &DepositIntent{}
	var hash []byte
	err = tx.QueryRow(
		`SELECT id, account_id, recipient_hash, status, source_txid, amount_base,
			mint_note_id, mint_attempts, created_at, updated_at
		 FROM deposit_intents WHERE recipient_hash = $1`,
		recipientHash[:],
	).Scan(&intent.ID, &intent.AccountID, &hash, &intent.Status, &intent.SourceTxID,
		&intent.AmountBase, &intent.MintNoteID, &intent.MintAttempts,
		&intent.CreatedAt, &intent.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		err = tx.QueryRow(
			`INSERT INTO deposit_intents (id, account_id, recipient_hash, status, source_txid, amount_base)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id, account_id, recipient_hash, status, source_txid, amount_base,
				 mint_note_id, mint_attempts, created_at, updated_at`,
			uuid.New(), "", recipientHash[:], IntentStatusObserved, sourceTxID, amountBase,
		).Scan(&intent.ID, &intent.AccountID, &hash, &intent.Status, &intent.SourceTxID,
			&intent.AmountBase, &intent.MintNoteID, &intent.MintAttempts,
			&intent.CreatedAt, &intent.UpdatedAt)
	} else if err == nil {
		_, err = tx.Exec(
			`UPDATE deposit_intents SET status = $1, source_txid = $2, amount_base = $3, updated_at = NOW()
			 WHERE id = $4`,
			IntentStatusObserved, sourceTxID, amountBase, intent.ID,
		)
		intent.Status = IntentStatusObserved
		intent.SourceTxID = &sourceTxID
		intent.AmountBase = &amountBase
	}
	if err != nil {
		return nil, fmt.Errorf("claim deposit intent: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("claim deposit commit: %w", err)
	}
	copy(intent.RecipientHash[:], hash)
	return intent, nil
}

// MarkMinted records that a P2IDH note was minted for an intent. Called
// with the mint_note_id looked up before minting, so retries after a crash
// skip the mint and only need to persist the id.
func (s *Store) MarkMinted(intentID uuid.UUID, mintNoteID string, amountBase int64) error {
	_, err := s.db.Exec(
		`UPDATE deposit_intents SET status = $1, mint_note_id = $2, amount_base = $3, updated_at = NOW()
		 WHERE id = $4`,
		IntentStatusMinted, mintNoteID, amountBase, intentID,
	)
	if err != nil {
		return fmt.Errorf("mark minted: %w", err)
	}
	return nil
}

// MarkQuarantined flags an intent as poisonous after MAX_MINT_ATTEMPTS,
// allowing the cursor to advance past it.
func (s *Store) MarkQuarantined(intentID uuid.UUID) error {
	_, err := s.db.Exec(
		`UPDATE deposit_intents SET status = $1, updated_at = NOW() WHERE id = $2`,
		IntentStatusQuarantined, intentID,
	)
	if err != nil {
		return fmt.Errorf("mark quarantined: %w", err)
	}
	return nil
}

// IncrementMintAttempts bumps the retry counter on an intent and returns
// the new count.
func (s *Store) IncrementMintAttempts(intentID uuid.UUID) (int, error) {
	var attempts int
	err := s.db.QueryRow(
		`UPDATE deposit_intents SET mint_attempts = mint_attempts + 1, updated_at = NOW()
		 WHERE id = $1 RETURNING mint_attempts`,
		intentID,
	).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("increment mint attempts: %w", err)
	}
	return attempts, nil
}

// MarkUnclaimable flags a deposit whose memo did not parse as a recipient
// hash. Funds remain in the pool; operator tooling surfaces it.
func (s *Store) MarkUnclaimable(sourceTxID string) error {
	_, err := s.db.Exec(
		`INSERT INTO idempotency_keys (source_chain, source_id, outcome)
		 VALUES ($1, $2, $3) ON CONFLICT (source_chain, source_id) DO NOTHING`,
		"zcash", sourceTxID, "unclaimable",
	)
	if err != nil {
		return fmt.Errorf("mark unclaimable: %w", err)
	}
	return nil
}

// CreateWithdrawal creates a new open withdrawal request.
func (s *Store) CreateWithdrawal(originAccountID, zcashAddress string, amountBase int64) (*Withdrawal, error) {
	w := &Withdrawal{}
	err := s.db.QueryRow(
		`INSERT INTO withdrawals (id, origin_account_id, destination_zcash_address, amount_base, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, origin_account_id, destination_zcash_address, amount_base, status,
			 source_note_id, target_txid, created_at, updated_at`,
		uuid.New(), originAccountID, zcashAddress, amountBase, WithdrawalStatusOpen,
	).Scan(&w.ID, &w.OriginAccountID, &w.DestinationZcashAddress, &w.AmountBase, &w.Status,
		&w.SourceNoteID, &w.TargetTxID, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create withdrawal: %w", err)
	}
	return w, nil
}

// ClaimWithdrawal atomically binds a consumable exit note to its
// withdrawal row, correlating on the note's own embedded payload
// (zcashAddress, amountBase) rather than row creation order: with more
// than one withdrawal open at a time, matching the oldest Open row
// regardless of its destination would pay the wrong user, exactly the
// failure §4.5/I3 rule out. This mirrors ClaimDeposit (store.go:73),
// which keys off the memo-derived recipient_hash rather than an
// unrelated stored value, and back-creates a row when no match exists
// because the note is authoritative: a withdrawal may reach the rollup
// without ever going through /withdrawal/create.
//
// A fresh claim transitions Open->Claimed. A retry after a crash
// mid-payout (status already Claimed, Consumed or Paid for this note) is resumed
// without changing its status, so the caller can tell from the returned
// status and TargetTxID whether consume_note/send_shielded still need to
// run. A second call with the same note id after settlement returns
// (nil, nil).
func (s *Store) ClaimWithdrawal(sourceNoteID, zcashAddress string, amountBase int64) (*Withdrawal, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("claim withdrawal begin: %w", err)
	}
	defer tx.Rollback()

	w := &Withdrawal{}
	err = tx.QueryRow(
		`SELECT id, origin_account_id, destination_zcash_address, amount_base, status,
			source_note_id, target_txid, created_at, updated_at
		 FROM withdrawals
		 WHERE source_note_id = $1`,
		sourceNoteID,
	).Scan(&w.ID, &w.OriginAccountID, &w.DestinationZcashAddress, &w.AmountBase, &w.Status,
		&w.SourceNoteID, &w.TargetTxID, &w.CreatedAt, &w.UpdatedAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Not already bound to this note id; look for an unclaimed row
		// whose requested payout exactly matches what the note carries.
		err = tx.QueryRow(
			`SELECT id, origin_account_id, destination_zcash_address, amount_base, status,
				source_note_id, target_txid, created_at, updated_at
			 FROM withdrawals
			 WHERE source_note_id IS NULL AND status = $1
				AND destination_zcash_address = $2 AND amount_base = $3
			 ORDER BY created_at ASC
			 LIMIT 1
			 FOR UPDATE SKIP LOCKED`,
			WithdrawalStatusOpen, zcashAddress, amountBase,
		).Scan(&w.ID, &w.OriginAccountID, &w.DestinationZcashAddress, &w.AmountBase, &w.Status,
			&w.SourceNoteID, &w.TargetTxID, &w.CreatedAt, &w.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			// No pre-registered withdrawal request matches; back-create
			// one from the note's own payload, same as ClaimDeposit does
			// for a recipient_hash with no matching intent.
			err = tx.QueryRow(
				`INSERT INTO withdrawals (id, origin_account_id, destination_zcash_address, amount_base, status, source_note_id)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 RETURNING id, origin_account_id, destination_zcash_address, amount_base, status,
					 source_note_id, target_txid, created_at, updated_at`,
				uuid.New(), "", zcashAddress, amountBase, WithdrawalStatusClaimed, sourceNoteID,
			).Scan(&w.ID, &w.OriginAccountID, &w.DestinationZcashAddress, &w.AmountBase, &w.Status,
				&w.SourceNoteID, &w.TargetTxID, &w.CreatedAt, &w.UpdatedAt)
		} else if err == nil {
			if _, err := tx.Exec(
				`UPDATE withdrawals SET status = $1, source_note_id = $2, updated_at = NOW() WHERE id = $3`,
				WithdrawalStatusClaimed, sourceNoteID, w.ID,
			); err != nil {
				return nil, fmt.Errorf("claim withdrawal update: %w", err)
			}
			w.Status = WithdrawalStatusClaimed
			w.SourceNoteID = &sourceNoteID
		}
	case err == nil:
		if w.Status == WithdrawalStatusSettled {
			return nil, nil
		}
		// Already bound to this exact note from a prior tick; resume at
		// whatever step the status indicates, without rebinding.
	}
	if err != nil {
		return nil, fmt.Errorf("claim withdrawal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("claim withdrawal commit: %w", err)
	}
	return w, nil
}

// MarkConsumed persists that consume_note has succeeded for a claimed
// withdrawal, ahead of send_shielded. A crash before this call resumes at
// consume_note (safe: the row is still Claimed, not yet Consumed); a
// crash after it resumes at send_shielded only, never re-consuming the
// note.
func (s *Store) MarkConsumed(withdrawalID uuid.UUID) error {
	_, err := s.db.Exec(
		`UPDATE withdrawals SET status = $1, updated_at = NOW() WHERE id = $2`,
		WithdrawalStatusConsumed, withdrawalID,
	)
	if err != nil {
		return fmt.Errorf("mark consumed: %w", err)
	}
	return nil
}

// ReleaseWithdrawal reverts a withdrawal back to Open after consume_note
// fails, so it is retried on the next tick (compensating write). It
// clears source_note_id along with status: ClaimWithdrawal only matches
// Open rows whose source_note_id is NULL, so leaving the old note id in
// place would make the row unreachable by any future claim attempt,
// including one for the very same note on a later list pass.
func (s *Store) ReleaseWithdrawal(withdrawalID uuid.UUID) error {
	_, err := s.db.Exec(
		`UPDATE withdrawals SET status = $1, source_note_id = NULL, updated_at = NOW() WHERE id = $2`,
		WithdrawalStatusOpen, withdrawalID,
	)
	if err != nil {
		return fmt.Errorf("release withdrawal: %w", err)
	}
	return nil
}

// MarkSent persists the target txid immediately after send_shielded
// succeeds, ahead of final settlement. A crash between this call and
// MarkPaid leaves the row Paid with a non-nil TargetTxID; ClaimWithdrawal
// re-claims that row on the next tick instead of resending.
func (s *Store) MarkSent(withdrawalID uuid.UUID, targetTxID string) error {
	_, err := s.db.Exec(
		`UPDATE withdrawals SET status = $1, target_txid = $2, updated_at = NOW() WHERE id = $3`,
		WithdrawalStatusPaid, targetTxID, withdrawalID,
	)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

// MarkPaid finalizes a withdrawal already marked Paid by MarkSent. It is
// idempotent: calling it again with the same targetTxID after a crash
// mid-settlement is a no-op in effect.
func (s *Store) MarkPaid(withdrawalID uuid.UUID, targetTxID string) error {
	_, err := s.db.Exec(
		`UPDATE withdrawals SET status = $1, target_txid = $2, updated_at = NOW() WHERE id = $3`,
		WithdrawalStatusSettled, targetTxID, withdrawalID,
	)
	if err != nil {
		return fmt.Errorf("mark paid: %w", err)
	}
	return nil
}

// AdvanceCursor persists a new scan cursor for a chain. Monotone: callers
// must never pass a cursor behind the one currently stored.
func (s *Store) AdvanceCursor(chain Chain, lastScannedBlock int64, lastScannedTxPos int) error {
	_, err := s.db.Exec(
		`INSERT INTO scan_cursors (chain, last_scanned_block, last_scanned_txpos)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (chain) DO UPDATE SET
			 last_scanned_block = GREATEST(scan_cursors.last_scanned_block, EXCLUDED.last_scanned_block),
			 last_scanned_txpos = EXCLUDED.last_scanned_txpos,
			 updated_at = NOW()`,
		chain, lastScannedBlock, lastScannedTxPos,
	)
	if err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	return nil
}

// GetCursor returns the persisted scan cursor for a chain, or nil if none
// exists yet (first run).
func (s *Store) GetCursor(chain Chain) (*ScanCursor, error) {
	c := &ScanCursor{}
	err := s.db.QueryRow(
		`SELECT chain, last_scanned_block, last_scanned_txpos, updated_at FROM scan_cursors WHERE chain = $1`,
		chain,
	).Scan(&c.Chain, &c.LastScannedBlock, &c.LastScannedTxPos, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cursor: %w", err)
	}
	return c, nil
}

// GetIntent retrieves a deposit intent by id.
func (s *Store) GetIntent(id uuid.UUID) (*DepositIntent, error) {
	intent := &DepositIntent{}
	var hash []byte
	err := s.db.QueryRow(
		`SELECT id, account_id, recipient_hash, status, source_txid, amount_base,
			mint_note_id, mint_attempts, created_at, updated_at
		 FROM deposit_intents WHERE id = $1`,
		id,
	).Scan(&intent.ID, &intent.AccountID, &hash, &intent.Status, &intent.SourceTxID,
		&intent.AmountBase, &intent.MintNoteID, &intent.MintAttempts,
		&intent.CreatedAt, &intent.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get intent: %w", err)
	}
	copy(intent.RecipientHash[:], hash)
	return intent, nil
}

// GetIntentByRecipientHash retrieves a deposit intent by its recipient
// hash, used by the HTTP facade's claim-mode consume fallback to look up
// a mint note id from a freshly re-derived hash.
func (s *Store) GetIntentByRecipientHash(recipientHash [32]byte) (*DepositIntent, error) {
	intent := &DepositIntent{}
	var hash []byte
	err := s.db.QueryRow(
		`SELECT id, account_id, recipient_hash, status, source_txid, amount_base,
			mint_note_id, mint_attempts, created_at, updated_at
		 FROM deposit_intents WHERE recipient_hash = $1`,
		recipientHash[:],
	).Scan(&intent.ID, &intent.AccountID, &hash, &intent.Status, &intent.SourceTxID,
		&intent.AmountBase, &intent.MintNoteID, &intent.MintAttempts,
		&intent.CreatedAt, &intent.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get intent by recipient hash: %w", err)
	}
	copy(intent.RecipientHash[:], hash)
	return intent, nil
}

// GetWithdrawal retrieves a withdrawal by id.
func (s *Store) GetWithdrawal(id uuid.UUID) (*Withdrawal, error) {
	w := &Withdrawal{}
	err := s.db.QueryRow(
		`SELECT id, origin_account_id, destination_zcash_address, amount_base, status,
			source_note_id, target_txid, created_at, updated_at
		 FROM withdrawals WHERE id = $1`,
		id,
	).Scan(&w.ID, &w.OriginAccountID, &w.DestinationZcashAddress, &w.AmountBase, &w.Status,
		&w.SourceNoteID, &w.TargetTxID, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get withdrawal: %w", err)
	}
	return w, nil
}

// ListIntents retrieves the most recent deposit intents.
func (s *Store) ListIntents(limit int) ([]*DepositIntent, error) {
	rows, err := s.db.Query(
		`SELECT id, account_id, recipient_hash, status, source_txid, amount_base,
			mint_note_id, mint_attempts, created_at, updated_at
		 FROM deposit_intents ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list intents: %w", err)
	}
	defer rows.Close()

	var intents []*DepositIntent
	for rows.Next() {
		intent := &DepositIntent{}
		var hash []byte
		if err := rows.Scan(&intent.ID, &intent.AccountID, &hash, &intent.Status, &intent.SourceTxID,
			&intent.AmountBase, &intent.MintNoteID, &intent.MintAttempts,
			&intent.CreatedAt, &intent.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan intent: %w", err)
		}
		copy(intent.RecipientHash[:], hash)
		intents = append(intents, intent)
	}
	return intents, rows.Err()
}

// ListWithdrawals retrieves the most recent withdrawals.
func (s *Store) ListWithdrawals(limit int) ([]*Withdrawal, error) {
	rows, err := s.db.Query(
		`SELECT id, origin_account_id, destination_zcash_address, amount_base, status,
			source_note_id, target_txid, created_at, updated_at
		 FROM withdrawals ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}
	defer rows.Close()

	var withdrawals []*Withdrawal
	for rows.Next() {
		w := &Withdrawal{}
		if err := rows.Scan(&w.ID, &w.OriginAccountID, &w.DestinationZcashAddress, &w.AmountBase, &w.Status,
			&w.SourceNoteID, &w.TargetTxID, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan withdrawal: %w", err)
		}
		withdrawals = append(withdrawals, w)
	}
	return withdrawals, rows.Err()
}

