package dao

import "time"

// WithdrawalDao maps to the 'withdrawals' table in PostgreSQL.
type WithdrawalDao struct {
	tableName               struct{}  `bun:"table:withdrawals"` // nolint
	ID                      string    `bun:",pk,type:uuid"`
	OriginAccountID         string    `bun:"origin_account_id,notnull,type:varchar(255)"`
	DestinationZcashAddress string    `bun:"destination_zcash_address,notnull,type:varchar(255)"`
	AmountBase              int64     `bun:"amount_base,notnull"`
	Status                  string    `bun:",notnull,type:varchar(50),default:'open'"`
	SourceNoteID            *string   `bun:"source_note_id,type:varchar(255)"`
	TargetTxID              *string   `bun:"target_txid,type:varchar(255)"`
	CreatedAt               time.Time `bun:",notnull,default:current_timestamp"`
	UpdatedAt               time.Time `bun:",notnull,default:current_timestamp"`
}
