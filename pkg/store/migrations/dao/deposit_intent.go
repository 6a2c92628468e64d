// Package dao holds the bun-tagged table definitions used only by schema
// migrations; pkg/store talks to these tables through raw database/sql.
package dao

import "time"

// DepositIntentDao maps to the 'deposit_intents' table in PostgreSQL.
type DepositIntentDao struct {
	tableName     struct{}  `bun:"table:deposit_intents"` // nolint
	ID            string    `bun:",pk,type:uuid"`
	AccountID     string    `bun:"account_id,type:varchar(255)"`
	RecipientHash []byte    `bun:"recipient_hash,notnull,type:bytea"`
	Status        string    `bun:",notnull,type:varchar(50),default:'open'"`
	SourceTxID    *string   `bun:"source_txid,type:varchar(255)"`
	AmountBase    *int64    `bun:"amount_base"`
	MintNoteID    *string   `bun:"mint_note_id,type:varchar(255)"`
	MintAttempts  int       `bun:"mint_attempts,notnull,default:0"`
	CreatedAt     time.Time `bun:",notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:",notnull,default:current_timestamp"`
}
