// Package migrations embeds the gateway's SQL schema into the binary.
package migrations

import "embed"

// FS holds every *.sql file in this directory, for database.Migrate.
//
//go:embed *.sql
var FS embed.FS
