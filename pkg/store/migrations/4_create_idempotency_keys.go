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
		log.Println("creating idempotency_keys table...")
		return mghelper.CreateSchema(ctx, db, &dao.IdempotencyKeyDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping idempotency_keys table...")
		return mghelper.DropTables(ctx, db, &dao.IdempotencyKeyDao{})
	})
}
