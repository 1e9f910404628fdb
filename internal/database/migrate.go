package database

import (
	"fmt"
)

// schemaVersion reads the applied schema version. SQLite keeps it in
// PRAGMA user_version; postgres uses a schema_version table.
func (db *DB) schemaVersion() (int, error) {
	var version int
	if db.driver == DriverPostgres {
		if _, err := db.conn.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
			return 0, fmt.Errorf("creating schema_version table: %w", err)
		}
		if err := db.conn.Get(&version, `SELECT COALESCE(MAX(version), 0) FROM schema_version`); err != nil {
			return 0, fmt.Errorf("reading schema version: %w", err)
		}
		return version, nil
	}

	if err := db.conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

func (db *DB) setSchemaVersion(version int) error {
	var err error
	if db.driver == DriverPostgres {
		_, err = db.conn.Exec(`INSERT INTO schema_version (version) VALUES ($1)`, version)
	} else {
		// modernc/sqlite requires this outside the migration transaction.
		_, err = db.conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", version))
	}
	if err != nil {
		return fmt.Errorf("setting version %d: %w", version, err)
	}
	return nil
}

// migrate brings the database schema up to the latest version.
// The DDL is idempotent, so a crash between commit and version stamp is safe.
func (db *DB) migrate() error {
	current, err := db.schemaVersion()
	if err != nil {
		return err
	}
	if current >= latestVersion() {
		return nil
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := db.conn.Beginx()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		if err := db.setSchemaVersion(m.Version); err != nil {
			return err
		}
	}

	return nil
}
