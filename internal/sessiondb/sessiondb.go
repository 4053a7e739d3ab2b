// Package sessiondb reads a zone's portal database: the ephemeral
// sessions the captive portal keeps per authenticated device and the
// voucher roll records activated in that zone. The portal owns these
// files; warden treats them as read-mostly and mutates only through
// TerminateSession.
package sessiondb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jbweber/homelab/warden/internal/domain"
	"github.com/jbweber/homelab/warden/internal/migrations"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// DB provides per-zone access to portal databases stored as
// "portal-<zone>.db" files under a common directory.
type DB struct {
	dir    string
	logger *zap.Logger

	mu    sync.Mutex
	conns map[string]*zoneConn
}

type zoneConn struct {
	db    *sql.DB
	stmts *StatementCache
}

// New creates a portal database accessor rooted at dir.
func New(dir string, logger *zap.Logger) *DB {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DB{dir: dir, logger: logger, conns: map[string]*zoneConn{}}
}

// Close closes every open zone connection.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	for zone, conn := range d.conns {
		conn.stmts.Close()
		if err := conn.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close portal db for zone %s: %w", zone, err)
		}
		delete(d.conns, zone)
	}
	return firstErr
}

// zonePath returns the portal database file for a zone.
func (d *DB) zonePath(zone string) string {
	return filepath.Join(d.dir, "portal-"+zone+".db")
}

// conn opens (or reuses) the zone's database, bootstrapping the schema
// when the file does not exist yet.
func (d *DB) conn(zone string) (*zoneConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if conn, ok := d.conns[zone]; ok {
		return conn, nil
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create portal db directory: %w", err)
	}

	db, err := sql.Open("sqlite", d.zonePath(zone))
	if err != nil {
		return nil, fmt.Errorf("failed to open portal db for zone %s: %w", zone, err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure portal db for zone %s: %w", zone, err)
	}

	migrator := migrations.NewMigrator(db)
	for _, migration := range migrations.GetPortalMigrations() {
		migrator.AddMigration(migration)
	}
	if err := migrator.RunMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate portal db for zone %s: %w", zone, err)
	}

	conn := &zoneConn{db: db, stmts: NewStatementCache(db)}
	d.conns[zone] = conn
	return conn, nil
}

// ListActiveSessions returns the sessions the portal currently holds
// for a zone. Expiry is evaluated by the caller.
func (d *DB) ListActiveSessions(zone string) ([]domain.Session, error) {
	conn, err := d.conn(zone)
	if err != nil {
		return nil, err
	}

	stmt, err := conn.stmts.Get("SELECT session_id, mac, username, ip, allow_time, session_timeout FROM sessions ORDER BY allow_time ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare session query: %w", err)
	}
	rows, err := stmt.Query()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions for zone %s: %w", zone, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			d.logger.Warn("failed to close session rows", zap.Error(err))
		}
	}()

	var sessions []domain.Session
	for rows.Next() {
		var s domain.Session
		var allowTime, timeoutSeconds int64
		if err := rows.Scan(&s.SessionID, &s.MAC, &s.Username, &s.IP, &allowTime, &timeoutSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		s.AllowTime = time.Unix(allowTime, 0).UTC()
		s.Timeout = time.Duration(timeoutSeconds) * time.Second
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// TerminateSession removes a session from the zone's portal database.
// The reason is recorded in the log only; the portal schema has no
// place for it.
func (d *DB) TerminateSession(zone, sessionID, reason string) error {
	conn, err := d.conn(zone)
	if err != nil {
		return err
	}

	stmt, err := conn.stmts.Get("DELETE FROM sessions WHERE session_id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare session delete: %w", err)
	}
	res, err := stmt.Exec(sessionID)
	if err != nil {
		return fmt.Errorf("failed to terminate session %s: %w", sessionID, err)
	}
	affected, _ := res.RowsAffected()
	d.logger.Info("terminated portal session",
		zap.String("zone", zone),
		zap.String("session_id", sessionID),
		zap.String("reason", reason),
		zap.Int64("rows", affected))
	return nil
}

// RollRecords returns the zone's activated voucher roll records in
// scan order (roll, then insertion order within a roll).
func (d *DB) RollRecords(zone string) ([]domain.VoucherRollRecord, error) {
	conn, err := d.conn(zone)
	if err != nil {
		return nil, err
	}

	stmt, err := conn.stmts.Get("SELECT roll, code, activated_at, duration_minutes FROM voucher_rolls ORDER BY roll ASC, rowid ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare roll query: %w", err)
	}
	rows, err := stmt.Query()
	if err != nil {
		return nil, fmt.Errorf("failed to list voucher rolls for zone %s: %w", zone, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			d.logger.Warn("failed to close roll rows", zap.Error(err))
		}
	}()

	var records []domain.VoucherRollRecord
	for rows.Next() {
		var r domain.VoucherRollRecord
		var activated int64
		if err := rows.Scan(&r.Roll, &r.Code, &activated, &r.DurationMinutes); err != nil {
			return nil, fmt.Errorf("failed to scan roll row: %w", err)
		}
		r.ActivatedAt = time.Unix(activated, 0).UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}
