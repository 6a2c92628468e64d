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
		log.Println("creating deposit_intents table...")
		if err := mghelper.CreateSchema(ctx, db, &dao.DepositIntentDao{}); err != nil {
			return err
		}
		if err := mghelper.CreateModelUniqueIndexes(ctx, db, &dao.DepositIntentDao{}, "recipient_hash"); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &dao.DepositIntentDao{}, "status", "source_txid")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping deposit_intents table...")
		return mghelper.DropTables(ctx, db, &dao.DepositIntentDao{})
	})
}
