package dao

import "time"

// ScanCursorDao maps to the 'scan_cursors' table in PostgreSQL. One row
// per chain, monotonically non-decreasing.
type ScanCursorDao struct {
	tableName        struct{}  `bun:"table:scan_cursors"` // nolint
	Chain            string    `bun:",pk,type:varchar(50)"`
	LastScannedBlock int64     `bun:"last_scanned_block,notnull,default:0"`
	LastScannedTxPos int       `bun:"last_scanned_txpos,notnull,default:0"`
	UpdatedAt        time.Time `bun:",notnull,default:current_timestamp"`
}
