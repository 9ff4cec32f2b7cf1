// Package migrations embeds the journal schema into the binary so the daemon
// needs no SQL files on the node's filesystem.
package migrations

import "embed"

// FS holds the *.sql migrations at its root, ready for database.Migrate.
//
//go:embed *.sql
var FS embed.FS
