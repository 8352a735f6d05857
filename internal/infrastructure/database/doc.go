// Package database provides the SQLite connection behind the override journal.
//
// This package manages:
//   - Opening the database file with WAL mode and a busy timeout
//   - Ordered, per-transaction schema migrations
//   - Connection lifecycle and health checks
//
// The database file is created with 0600 permissions. All queries issued
// through DB use parameterised statements.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{
//	    Path:        cfg.Journal.Path,
//	    WALMode:     cfg.Journal.WALMode,
//	    BusyTimeout: cfg.Journal.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with a
// matching .down.sql. The migrations package registers the embedded set
// at init time.
package database
