// Package database provides SQLite connectivity for the ptcontrol state store.
//
// This package manages:
//   - Database connection with WAL mode so status reads run alongside writes
//   - Versioned schema migrations loaded from an fs.FS
//   - Connection pool lifecycle and health checks
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive: new columns must be NULLABLE or carry a DEFAULT,
// and every .up.sql should ship with a matching .down.sql.
package database
