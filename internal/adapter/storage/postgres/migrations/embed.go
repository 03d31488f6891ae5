// Package migrations contains embedded SQL migrations for the ledger database.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
