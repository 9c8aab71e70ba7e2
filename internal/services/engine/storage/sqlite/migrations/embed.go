// Package migrations contains embedded SQL migrations for the SQLite store.
package migrations

import "embed"

// HistoryFS holds the history log schema.
//
//go:embed history/*.sql
var HistoryFS embed.FS
