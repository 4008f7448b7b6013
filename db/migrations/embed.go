// Package dbmigrations exposes the engine's embedded SQL migrations.
package dbmigrations

import "embed"

// Files contains the embedded SQL migrations bundled into engine binaries.
//
//go:embed *.sql
var Files embed.FS
