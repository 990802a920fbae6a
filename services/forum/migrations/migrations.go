// Package migrations embeds the forum's Postgres schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
