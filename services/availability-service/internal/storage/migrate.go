package storage

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/md-rashed-zaman/slotkeeper/libs/db"
)

//go:embed schema.sql
var schema string

// Migrate applies the idempotent schema. Intended for local runs and tests;
// deployed databases are migrated out of band.
func Migrate(ctx context.Context, q db.Querier) error {
	if _, err := q.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
