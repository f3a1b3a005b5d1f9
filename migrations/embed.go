// Package migrations embeds the SQL schema files for the migrator and tests.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
