// Package migrations embeds the SQLite schema so satlinkd and satctl can
// migrate without the SQL files on disk.
package migrations

import "embed"

// FS holds the *.up.sql and *.down.sql files, passed to
// (*database.DB).Migrate.
//
//go:embed *.sql
var FS embed.FS
