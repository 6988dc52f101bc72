// Package db holds the PostgreSQL connection and bulk-load helpers used to
// publish layers to PostGIS.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// ReplaceRows swaps the rows of schema.table that belong to key: every row
// whose keyColumn equals key is deleted and rows are loaded with COPY, in
// one transaction. Readers never see a half-replaced layer.
func ReplaceRows(ctx context.Context, pool Pool, schema, table, keyColumn string, key any, columns []string, rows [][]any) (int64, error) {
	target := pgx.Identifier{schema, table}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "db: replace %s: begin", target.Sanitize())
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	del := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", target.Sanitize(), pgx.Identifier{keyColumn}.Sanitize())
	if _, err := tx.Exec(ctx, del, key); err != nil {
		return 0, eris.Wrapf(err, "db: replace %s: delete %v", target.Sanitize(), key)
	}

	var n int64
	if len(rows) > 0 {
		n, err = tx.CopyFrom(ctx, target, columns, pgx.CopyFromRows(rows))
		if err != nil {
			return 0, eris.Wrapf(err, "db: replace %s: copy %d rows", target.Sanitize(), len(rows))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "db: replace %s: commit", target.Sanitize())
	}
	return n, nil
}
