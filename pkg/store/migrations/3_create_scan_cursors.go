package migrations

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/chainsafe/zcash-miden-bridge/pkg/store/migrations/dao"

	mghelper "github.com/chainsafe/zcash-miden-bridge/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating scan_cursors table...")
		return mghelper.CreateSchema(ctx, db, &dao.ScanCursorDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping scan_cursors table...")
		return mghelper.DropTables(ctx, db, &dao.ScanCursorDao{})
	})
}
