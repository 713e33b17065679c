// Package migrations embeds the coach.db schema migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
