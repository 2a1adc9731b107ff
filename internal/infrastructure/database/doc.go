// Package database opens and manages the avrbridge SQLite store.
//
// It owns the connection (WAL journal, busy timeout, foreign keys,
// single-connection pool since SQLite has one writer) and runs the
// schema migrations embedded in the binary.
//
//	db, err := database.Open(cfg.Database)
//	if err != nil { ... }
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil { ... }
//
// The database file is created 0600. Migrations are additive: new
// columns are nullable or carry defaults, and every .up.sql has a
// matching .down.sql.
package database
