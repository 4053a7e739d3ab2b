package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jbweber/homelab/warden/internal/bindingstore"
	"github.com/jbweber/homelab/warden/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBindingRepo(t *testing.T) BindingRepository {
	t.Helper()
	store := bindingstore.New(filepath.Join(t.TempDir(), "bindings.json"), nil)
	return NewBindingRepository(store)
}

func testBinding(zone, mac string) domain.Binding {
	return domain.Binding{
		Zone:      zone,
		MAC:       mac,
		ExpiresAt: time.Now().Add(time.Hour).UTC(),
		LastSeen:  time.Now().UTC(),
	}
}

func TestBindingRepository_SaveAndFind(t *testing.T) {
	repo := newTestBindingRepo(t)
	ctx := context.Background()

	b := testBinding("guest", "aa:bb:cc:dd:ee:ff")
	saved, err := repo.Save(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, b.MAC, saved.MAC)

	found, err := repo.FindByID(ctx, b.Key())
	require.NoError(t, err)
	assert.Equal(t, b.Zone, found.Zone)
}

func TestBindingRepository_SaveUpsertsSameKey(t *testing.T) {
	repo := newTestBindingRepo(t)
	ctx := context.Background()

	b := testBinding("guest", "aa:bb:cc:dd:ee:ff")
	_, err := repo.Save(ctx, b)
	require.NoError(t, err)

	b.SrcIP = "192.0.2.10"
	_, err = repo.Save(ctx, b)
	require.NoError(t, err)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "192.0.2.10", all[0].SrcIP)
}

func TestBindingRepository_SaveInvalid(t *testing.T) {
	repo := newTestBindingRepo(t)

	_, err := repo.Save(context.Background(), domain.Binding{Zone: "guest"})
	assert.ErrorIs(t, err, ErrInvalidEntity)
}

func TestBindingRepository_FindByID_NotFound(t *testing.T) {
	repo := newTestBindingRepo(t)

	_, err := repo.FindByID(context.Background(), domain.BindingKey{Zone: "guest", MAC: "aa:bb:cc:dd:ee:ff"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBindingRepository_DeleteByMAC_ZoneFilter(t *testing.T) {
	repo := newTestBindingRepo(t)
	ctx := context.Background()

	_, err := repo.Save(ctx, testBinding("guest", "aa:bb:cc:dd:ee:ff"))
	require.NoError(t, err)
	_, err = repo.Save(ctx, testBinding("staff", "aa:bb:cc:dd:ee:ff"))
	require.NoError(t, err)

	removed, err := repo.DeleteByMAC(ctx, "aa:bb:cc:dd:ee:ff", "guest")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	remaining, err := repo.FindByMAC(ctx, "aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "staff", remaining[0].Zone)

	// No filter removes the rest; a repeat removes nothing.
	removed, err = repo.DeleteByMAC(ctx, "aa:bb:cc:dd:ee:ff", "")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = repo.DeleteByMAC(ctx, "aa:bb:cc:dd:ee:ff", "")
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestBindingRepository_FindByZone(t *testing.T) {
	repo := newTestBindingRepo(t)
	ctx := context.Background()

	_, err := repo.Save(ctx, testBinding("guest", "aa:bb:cc:dd:ee:ff"))
	require.NoError(t, err)
	_, err = repo.Save(ctx, testBinding("guest", "11:22:33:44:55:66"))
	require.NoError(t, err)
	_, err = repo.Save(ctx, testBinding("staff", "aa:bb:cc:dd:ee:01"))
	require.NoError(t, err)

	guest, err := repo.FindByZone(ctx, "guest")
	require.NoError(t, err)
	assert.Len(t, guest, 2)
}

func TestVoucherUsageRepository_CRUDAndPrune(t *testing.T) {
	store := bindingstore.New(filepath.Join(t.TempDir(), "bindings.json"), nil)
	repo := NewVoucherUsageRepository(store)
	ctx := context.Background()
	now := time.Now().UTC()

	live := domain.VoucherUsage{
		Zone:        "guest",
		VoucherHash: "hash-live",
		MAC:         "aa:bb:cc:dd:ee:ff",
		FirstUsedAt: now,
		LastUsedAt:  now,
		ExpiresAt:   now.Add(time.Hour),
	}
	expired := domain.VoucherUsage{
		Zone:        "guest",
		VoucherHash: "hash-old",
		MAC:         "11:22:33:44:55:66",
		FirstUsedAt: now.Add(-2 * time.Hour),
		LastUsedAt:  now.Add(-2 * time.Hour),
		ExpiresAt:   now.Add(-time.Hour),
	}
	_, err := repo.Save(ctx, live)
	require.NoError(t, err)
	_, err = repo.Save(ctx, expired)
	require.NoError(t, err)

	found, err := repo.FindByID(ctx, live.Key())
	require.NoError(t, err)
	assert.Equal(t, live.MAC, found.MAC)

	pruned, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	exists, err := repo.ExistsByID(ctx, expired.Key())
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = repo.ExistsByID(ctx, live.Key())
	require.NoError(t, err)
	assert.True(t, exists)
}
