// Package migrations embeds the ptcontrol SQL schema into the binary so the
// state database can be created without any files on disk.
package migrations

import "embed"

// FS holds every *.sql migration at its root, ready for database.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
