// Package migrations holds the SQL schema of the engine. The files are
// embedded so the server and integration tests can migrate without a path
// on disk; cmd/migrate reads the same directory from the filesystem.
package migrations

import "embed"

// FS contains every *.up.sql and *.down.sql file.
//
//go:embed *.sql
var FS embed.FS
