package sessiondb

import (
	"testing"
	"time"

	"github.com/jbweber/homelab/warden/internal/domain"
	"github.com/jbweber/homelab/warden/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDB_ListActiveSessions(t *testing.T) {
	dir := t.TempDir()
	seed := testutil.OpenPortalDB(t, dir, "guest")
	allow := time.Now().Add(-10 * time.Minute).UTC().Truncate(time.Second)
	testutil.SeedSession(t, seed, domain.Session{
		SessionID: "sess-1",
		MAC:       "aa:bb:cc:dd:ee:ff",
		Username:  "VOUCH-123",
		IP:        "192.0.2.5",
		AllowTime: allow,
		Timeout:   time.Hour,
	})
	require.NoError(t, seed.Close())

	db := New(dir, nil)
	defer db.Close()

	sessions, err := db.ListActiveSessions("guest")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "sess-1", sessions[0].SessionID)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", sessions[0].MAC)
	assert.Equal(t, allow, sessions[0].AllowTime)
	assert.Equal(t, time.Hour, sessions[0].Timeout)
	assert.Equal(t, allow.Add(time.Hour), sessions[0].ExpiresAt())
}

func TestDB_TerminateSession(t *testing.T) {
	dir := t.TempDir()
	seed := testutil.OpenPortalDB(t, dir, "guest")
	testutil.SeedSession(t, seed, domain.Session{
		SessionID: "sess-1",
		MAC:       "aa:bb:cc:dd:ee:ff",
		AllowTime: time.Now().UTC(),
		Timeout:   time.Hour,
	})
	require.NoError(t, seed.Close())

	db := New(dir, nil)
	defer db.Close()

	require.NoError(t, db.TerminateSession("guest", "sess-1", "revoked"))

	sessions, err := db.ListActiveSessions("guest")
	require.NoError(t, err)
	assert.Empty(t, sessions)

	// Terminating a gone session is not an error.
	require.NoError(t, db.TerminateSession("guest", "sess-1", "revoked"))
}

func TestDB_RollRecordsScanOrder(t *testing.T) {
	dir := t.TempDir()
	seed := testutil.OpenPortalDB(t, dir, "guest")
	base := time.Now().UTC().Truncate(time.Second)
	testutil.SeedRollRecord(t, seed, domain.VoucherRollRecord{Roll: 1, Code: "CODE-A", ActivatedAt: base.Add(-time.Hour), DurationMinutes: 60})
	testutil.SeedRollRecord(t, seed, domain.VoucherRollRecord{Roll: 2, Code: "CODE-A", ActivatedAt: base, DurationMinutes: 120})
	require.NoError(t, seed.Close())

	db := New(dir, nil)
	defer db.Close()

	records, err := db.RollRecords("guest")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].Roll)
	assert.Equal(t, 2, records[1].Roll)
}

func TestDB_BootstrapsMissingZone(t *testing.T) {
	db := New(t.TempDir(), nil)
	defer db.Close()

	sessions, err := db.ListActiveSessions("fresh")
	require.NoError(t, err)
	assert.Empty(t, sessions)

	records, err := db.RollRecords("fresh")
	require.NoError(t, err)
	assert.Empty(t, records)
}
