// Package migrations ships the schema in the Postgres dialect. The SQLite
// store translates it on the fly.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
