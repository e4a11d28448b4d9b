// Package database provides the SQLite connection used to persist node and
// sensor settings between gateway restarts.
//
// It manages:
//   - Connection setup with WAL mode, busy timeout and foreign keys
//   - Ordered up/down schema migrations loaded from an embedded filesystem
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// All queries use parameterised statements.
package database
