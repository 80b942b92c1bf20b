// Package migrations embeds the clinic schema and seed SQL for golang-migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
