// Package migrations embeds the SQL schema migrations applied with goose.
package migrations

import "embed"

// Migrations holds every goose migration file of this package.
//
//go:embed *.sql
var Migrations embed.FS
