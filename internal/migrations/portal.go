package migrations

import (
	"database/sql"
)

// GetPortalMigrations returns the schema for a zone's portal database:
// active sessions and activated voucher roll records. Warden only
// reads sessions and rolls; the portal writes them. Bootstrapping the
// schema here lets a sweep run against a zone whose portal has not
// authenticated anyone yet.
func GetPortalMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_portal_tables",
			Up: func(db *sql.DB) error {
				_, err := db.Exec(`
					CREATE TABLE IF NOT EXISTS sessions (
						session_id TEXT PRIMARY KEY,
						mac TEXT NOT NULL,
						username TEXT NOT NULL DEFAULT '',
						ip TEXT NOT NULL DEFAULT '',
						allow_time INTEGER NOT NULL,
						session_timeout INTEGER NOT NULL
					)
				`)
				if err != nil {
					return err
				}

				_, err = db.Exec(`
					CREATE TABLE IF NOT EXISTS voucher_rolls (
						roll INTEGER NOT NULL,
						code TEXT NOT NULL,
						activated_at INTEGER NOT NULL,
						duration_minutes INTEGER NOT NULL
					)
				`)
				if err != nil {
					return err
				}

				_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_mac ON sessions(mac)`)
				if err != nil {
					return err
				}
				_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_voucher_rolls_code ON voucher_rolls(code)`)
				return err
			},
			Down: func(db *sql.DB) error {
				if _, err := db.Exec(`DROP TABLE IF EXISTS voucher_rolls`); err != nil {
					return err
				}
				_, err := db.Exec(`DROP TABLE IF EXISTS sessions`)
				return err
			},
		},
	}
}
