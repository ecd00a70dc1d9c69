// Package schema carries the Postgres DDL for conversations and messages.
package schema

import (
	"context"
	"database/sql"
	_ "embed"
)

//go:embed schema.sql
var ddl string

// DDL returns the schema statements.
func DDL() string {
	return ddl
}

// Apply runs the schema against db. Every statement is idempotent.
func Apply(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, ddl)
	return err
}
