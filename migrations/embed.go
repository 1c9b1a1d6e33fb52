// Package migrations embeds the SQLite schema into the binary.
package migrations

import "embed"

//go:embed *.sql
var files embed.FS

// FS holds every migration file at its root.
var FS = files
