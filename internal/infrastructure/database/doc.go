// Package database provides the SQLite connection that stores the
// gateway's network state.
//
// The driver daemon forgets node names, locations and scenes across
// restarts; the gateway keeps them here and replays them. The schema lives
// in the top-level migrations package and is applied with Migrate.
//
// Usage:
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
// Migrations are additive: new columns are nullable or carry a default,
// and every .up.sql has a .down.sql.
package database
