package engine

import (
	"context"
	"testing"
	"time"

	"github.com/jbweber/homelab/warden/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveExpiry_SessionBeatsLedger(t *testing.T) {
	env := newTestEnv(t)

	sessionExpiry := testNow.Add(45 * time.Minute)
	env.sessions.sessions["guest"] = []domain.Session{{
		SessionID: "sess-1",
		MAC:       "aa:bb:cc:dd:ee:ff",
		Username:  "CODE-1",
		AllowTime: sessionExpiry.Add(-time.Hour),
		Timeout:   time.Hour,
	}}
	env.ledger.rolls["guest"] = []domain.VoucherRollRecord{{
		Roll: 1, Code: "CODE-1", ActivatedAt: testNow.Add(-time.Hour), DurationMinutes: 240,
	}}

	expiry, ok := env.engine.ResolveExpiry(context.Background(), "guest", "aa:bb:cc:dd:ee:ff", "CODE-1")
	require.True(t, ok)
	assert.Equal(t, sessionExpiry, expiry)
}

func TestResolveExpiry_ExpiredSessionSkipped(t *testing.T) {
	env := newTestEnv(t)

	env.sessions.sessions["guest"] = []domain.Session{{
		SessionID: "sess-1",
		MAC:       "aa:bb:cc:dd:ee:ff",
		AllowTime: testNow.Add(-2 * time.Hour),
		Timeout:   time.Hour,
	}}

	_, ok := env.engine.ResolveExpiry(context.Background(), "guest", "aa:bb:cc:dd:ee:ff", "")
	assert.False(t, ok)
}

func TestResolveExpiry_SessionByVoucherCode(t *testing.T) {
	env := newTestEnv(t)

	expiry := testNow.Add(20 * time.Minute)
	env.sessions.sessions["guest"] = []domain.Session{{
		SessionID: "sess-1",
		MAC:       "11:22:33:44:55:66", // different device, same code
		Username:  "CODE-1",
		AllowTime: expiry.Add(-time.Hour),
		Timeout:   time.Hour,
	}}

	got, ok := env.engine.ResolveExpiry(context.Background(), "guest", "aa:bb:cc:dd:ee:ff", "CODE-1")
	require.True(t, ok)
	assert.Equal(t, expiry, got)
}

func TestResolveExpiry_LedgerLastMatchWins(t *testing.T) {
	env := newTestEnv(t)

	// The same code appears in two rolls; the record scanned last is
	// the one reported.
	env.ledger.rolls["guest"] = []domain.VoucherRollRecord{
		{Roll: 1, Code: "CODE-1", ActivatedAt: testNow.Add(-3 * time.Hour), DurationMinutes: 60},
		{Roll: 2, Code: "CODE-1", ActivatedAt: testNow.Add(-time.Hour), DurationMinutes: 60},
	}

	expiry, ok := env.engine.ResolveExpiry(context.Background(), "guest", "aa:bb:cc:dd:ee:ff", "CODE-1")
	require.True(t, ok)
	assert.Equal(t, testNow, expiry)
}

func TestResolveExpiry_LedgerReturnsPastExpiry(t *testing.T) {
	env := newTestEnv(t)

	env.ledger.rolls["guest"] = []domain.VoucherRollRecord{
		{Roll: 1, Code: "CODE-1", ActivatedAt: testNow.Add(-3 * time.Hour), DurationMinutes: 60},
	}

	expiry, ok := env.engine.ResolveExpiry(context.Background(), "guest", "aa:bb:cc:dd:ee:ff", "CODE-1")
	require.True(t, ok)
	assert.True(t, expiry.Before(testNow))
}

func TestResolveExpiry_FallsBackToStore(t *testing.T) {
	env := newTestEnv(t)

	storeExpiry := testNow.Add(6 * time.Hour)
	_, err := env.bindings.Save(context.Background(), domain.Binding{
		Zone: "guest", MAC: "aa:bb:cc:dd:ee:ff", ExpiresAt: storeExpiry,
	})
	require.NoError(t, err)

	expiry, ok := env.engine.ResolveExpiry(context.Background(), "guest", "aa:bb:cc:dd:ee:ff", "")
	require.True(t, ok)
	assert.Equal(t, storeExpiry, expiry)
}

func TestResolveExpiry_UnknownIsAbsent(t *testing.T) {
	env := newTestEnv(t)

	_, ok := env.engine.ResolveExpiry(context.Background(), "guest", "aa:bb:cc:dd:ee:ff", "")
	assert.False(t, ok)
}
