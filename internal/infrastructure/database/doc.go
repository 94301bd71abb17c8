// Package database opens the relational store that holds the staging
// (tmp) and permanent (data) reading tables.
//
// Two drivers are supported behind database/sql:
//   - sqlite3 (github.com/mattn/go-sqlite3): single file, WAL mode,
//     one open connection, busy timeout
//   - mysql (github.com/go-sql-driver/mysql): the deployment database
//     shared with the dashboard
//
// Dialect differences (identifier quoting, insert-ignore) are exposed on
// Dialect so repositories can build one query text per dialect.
//
// Usage:
//
//	db, err := database.Open(database.Config{Driver: "sqlite3", Path: cfg.Database.Path})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are embedded per dialect and applied additively; each file
// has an .up.sql and a .down.sql.
package database
