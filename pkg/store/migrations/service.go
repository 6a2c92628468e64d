// Package migrations holds the bun/migrate schema migrations for the
// bridge's own store (deposit intents, withdrawals, scan cursors,
// idempotency keys). It intentionally does not migrate anything for the
// chain clients themselves: those are stateless adapters.
package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the registered set of schema migrations, applied in
// ascending file-name order by cmd/relayer/migrate.
var Migrations = migrate.NewMigrations()
