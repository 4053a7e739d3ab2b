// Package testutil provides helpers for seeding the external stores
// the engine collaborates with in tests.
package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/jbweber/homelab/warden/internal/domain"
	"github.com/jbweber/homelab/warden/internal/migrations"
	_ "modernc.org/sqlite"
)

// OpenPortalDB opens (and bootstraps) the portal database for a zone
// under dir, exactly as the portal itself would have created it.
func OpenPortalDB(t *testing.T, dir, zone string) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(dir, "portal-"+zone+".db"))
	if err != nil {
		t.Fatalf("failed to open portal db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	migrator := migrations.NewMigrator(db)
	for _, migration := range migrations.GetPortalMigrations() {
		migrator.AddMigration(migration)
	}
	if err := migrator.RunMigrations(); err != nil {
		t.Fatalf("failed to migrate portal db: %v", err)
	}
	return db
}

// SeedSession inserts a portal session row.
func SeedSession(t *testing.T, db *sql.DB, s domain.Session) {
	t.Helper()

	_, err := db.Exec(
		"INSERT INTO sessions (session_id, mac, username, ip, allow_time, session_timeout) VALUES (?, ?, ?, ?, ?, ?)",
		s.SessionID, s.MAC, s.Username, s.IP, s.AllowTime.Unix(), int64(s.Timeout.Seconds()),
	)
	if err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}
}

// SeedRollRecord inserts an activated voucher roll record.
func SeedRollRecord(t *testing.T, db *sql.DB, r domain.VoucherRollRecord) {
	t.Helper()

	_, err := db.Exec(
		"INSERT INTO voucher_rolls (roll, code, activated_at, duration_minutes) VALUES (?, ?, ?, ?)",
		r.Roll, r.Code, r.ActivatedAt.Unix(), r.DurationMinutes,
	)
	if err != nil {
		t.Fatalf("failed to seed voucher roll record: %v", err)
	}
}
