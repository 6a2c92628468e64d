package dao

import "time"

// IdempotencyKeyDao maps to the 'idempotency_keys' table in PostgreSQL.
// Inserted once per observed Zcash deposit; its presence is what makes
// claim_deposit reject a repeat (claim_withdrawal relies on the unique
// withdrawals.source_note_id instead).
type IdempotencyKeyDao struct {
	tableName   struct{}  `bun:"table:idempotency_keys"` // nolint
	SourceChain string    `bun:"source_chain,pk,type:varchar(50)"`
	SourceID    string    `bun:"source_id,pk,type:varchar(255)"`
	Outcome     string    `bun:",notnull,type:varchar(50)"`
	CreatedAt   time.Time `bun:",notnull,default:current_timestamp"`
}
