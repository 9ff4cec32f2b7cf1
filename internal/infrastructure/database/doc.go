// Package database provides the SQLite connection used by the cycle journal.
//
// This package manages:
//   - Database connection with optional WAL mode
//   - Schema migrations read from any fs.FS (normally the embedded
//     migrations package)
//   - Connection pooling and lifecycle management
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Journal.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: each YYYYMMDD_HHMMSS_name.up.sql has a matching
// .down.sql that reverts it.
package database
