package telemetry

import "database/sql"

// initSchema initializes the database schema for telemetry data
func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS samples (
            timestamp INTEGER NOT NULL,
            appliance TEXT NOT NULL,
            watts REAL,
            phase TEXT,
            failures INTEGER,
            read_failed INTEGER,
            PRIMARY KEY (timestamp, appliance)
        )
    `)

	return err
}
