// Package migrations embeds the relay PostgreSQL schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
