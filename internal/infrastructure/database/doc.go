// Package database provides the SQLite connection used by the SQLite
// record store.
//
// This package manages:
//   - Connection setup with WAL mode and busy timeout
//   - Versioned schema migrations read from any fs.FS
//   - Health checks and transaction helpers
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be nullable or carry a default,
// and each .up.sql should have a matching .down.sql.
package database
