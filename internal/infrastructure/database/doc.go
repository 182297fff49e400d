// Package database provides SQLite connectivity for govee2mqtt.
//
// The bridge keeps almost everything in memory. SQLite holds the small
// records that must survive a restart, such as the daily Govee API call
// counter that the vendor rate-limits against.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are "YYYYMMDD_HHMMSS_description.up.sql" files embedded by the
// migrations package and applied in version order.
package database
