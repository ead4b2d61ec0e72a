// Package migrations holds the schema of the answer-key store and the winner
// ledger.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
