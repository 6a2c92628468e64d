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
		log.Println("creating withdrawals table...")
		if err := mghelper.CreateSchema(ctx, db, &dao.WithdrawalDao{}); err != nil {
			return err
		}
		if err := mghelper.CreateModelUniqueIndexes(ctx, db, &dao.WithdrawalDao{}, "source_note_id"); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &dao.WithdrawalDao{}, "status")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping withdrawals table...")
		return mghelper.DropTables(ctx, db, &dao.WithdrawalDao{})
	})
}
