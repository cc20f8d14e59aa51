// Package database provides SQLite connectivity for the W215 bridge.
//
// The database holds the device registry (devices, features, params), the
// last accepted value of every feature, and the state change history.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations, applied in version order, one transaction each
//   - Connection pooling and lifecycle management
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql (with an
// optional matching .down.sql) and are registered by the migrations package.
package database
