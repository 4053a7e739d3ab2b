package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jbweber/homelab/warden/internal/bindingstore"
	"github.com/jbweber/homelab/warden/internal/domain"
)

// VoucherUsageRepository defines domain-specific operations for
// voucher usage records
type VoucherUsageRepository interface {
	Repository[domain.VoucherUsage, domain.VoucherKey]
	// DeleteExpired prunes usage records whose expiry is at or before
	// now and reports how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

type voucherUsageRepositoryImpl struct {
	store *bindingstore.Store
}

// NewVoucherUsageRepository creates a new voucher usage repository
func NewVoucherUsageRepository(store *bindingstore.Store) VoucherUsageRepository {
	return &voucherUsageRepositoryImpl{store: store}
}

// Save creates or updates a usage record keyed by (zone, voucher_hash)
func (r *voucherUsageRepositoryImpl) Save(ctx context.Context, u domain.VoucherUsage) (domain.VoucherUsage, error) {
	if u.Zone == "" || u.VoucherHash == "" {
		return domain.VoucherUsage{}, fmt.Errorf("voucher usage zone and hash are required: %w", ErrInvalidEntity)
	}
	err := r.store.Update(func(doc *bindingstore.Document) error {
		doc.VoucherUsage[u.Key().String()] = u
		return nil
	})
	if err != nil {
		return domain.VoucherUsage{}, fmt.Errorf("failed to save voucher usage: %w", err)
	}
	return u, nil
}

// FindByID retrieves a usage record by its composite key
func (r *voucherUsageRepositoryImpl) FindByID(ctx context.Context, id domain.VoucherKey) (domain.VoucherUsage, error) {
	doc, err := r.store.Load()
	if err != nil {
		return domain.VoucherUsage{}, fmt.Errorf("failed to find voucher usage: %w", err)
	}
	u, ok := doc.VoucherUsage[id.String()]
	if !ok {
		return domain.VoucherUsage{}, fmt.Errorf("voucher usage %s: %w", id.String(), ErrNotFound)
	}
	return u, nil
}

// FindAll retrieves all usage records
func (r *voucherUsageRepositoryImpl) FindAll(ctx context.Context) ([]domain.VoucherUsage, error) {
	doc, err := r.store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to list voucher usage: %w", err)
	}
	var out []domain.VoucherUsage
	for _, u := range doc.VoucherUsage {
		out = append(out, u)
	}
	return out, nil
}

// DeleteByID removes a usage record by its composite key
func (r *voucherUsageRepositoryImpl) DeleteByID(ctx context.Context, id domain.VoucherKey) error {
	found := false
	err := r.store.Update(func(doc *bindingstore.Document) error {
		if _, ok := doc.VoucherUsage[id.String()]; ok {
			found = true
			delete(doc.VoucherUsage, id.String())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete voucher usage: %w", err)
	}
	if !found {
		return fmt.Errorf("voucher usage %s: %w", id.String(), ErrNotFound)
	}
	return nil
}

// ExistsByID checks if a usage record exists by its composite key
func (r *voucherUsageRepositoryImpl) ExistsByID(ctx context.Context, id domain.VoucherKey) (bool, error) {
	doc, err := r.store.Load()
	if err != nil {
		return false, fmt.Errorf("failed to check voucher usage existence: %w", err)
	}
	_, ok := doc.VoucherUsage[id.String()]
	return ok, nil
}

// DeleteExpired prunes usage records past their expiry
func (r *voucherUsageRepositoryImpl) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	err := r.store.Update(func(doc *bindingstore.Document) error {
		for key, u := range doc.VoucherUsage {
			if !u.ExpiresAt.After(now) {
				delete(doc.VoucherUsage, key)
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune voucher usage: %w", err)
	}
	return removed, nil
}
