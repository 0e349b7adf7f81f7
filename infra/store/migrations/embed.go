// Package migrations embeds the SQL migrations of the SQLite trip store.
package migrations

import "embed"

// FS holds all *.sql migration files embedded at compile time.
//
//go:embed *.sql
var FS embed.FS
