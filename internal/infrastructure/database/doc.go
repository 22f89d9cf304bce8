// Package database opens the SQLite file that backs the tuning journal
// and applies its schema migrations.
//
// The connection pool is limited to one connection, matching SQLite's
// single writer. WAL mode lets readers (satctl journal queries) run while
// the daemon writes.
//
// Migrations are plain SQL files embedded by the migrations package and
// passed to Migrate as an fs.FS:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Schema changes are additive: new columns are NULLABLE or carry a
// DEFAULT, and every .up.sql has a matching .down.sql.
package database
