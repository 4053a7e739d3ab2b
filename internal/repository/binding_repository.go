package repository

import (
	"context"
	"fmt"

	"github.com/jbweber/homelab/warden/internal/bindingstore"
	"github.com/jbweber/homelab/warden/internal/domain"
)

// BindingRepository defines domain-specific operations for bindings
type BindingRepository interface {
	Repository[domain.Binding, domain.BindingKey]
	FindByMAC(ctx context.Context, mac string) ([]domain.Binding, error)
	FindByZone(ctx context.Context, zone string) ([]domain.Binding, error)
	// DeleteByMAC removes every binding for mac, restricted to zone
	// when zone is non-empty, and reports how many were removed.
	DeleteByMAC(ctx context.Context, mac, zone string) (int, error)
}

type bindingRepositoryImpl struct {
	store *bindingstore.Store
}

// NewBindingRepository creates a new binding repository over the store
func NewBindingRepository(store *bindingstore.Store) BindingRepository {
	return &bindingRepositoryImpl{store: store}
}

// Save creates or updates a binding keyed by (zone, mac)
func (r *bindingRepositoryImpl) Save(ctx context.Context, b domain.Binding) (domain.Binding, error) {
	if b.Zone == "" || b.MAC == "" {
		return domain.Binding{}, fmt.Errorf("binding zone and mac are required: %w", ErrInvalidEntity)
	}
	err := r.store.Update(func(doc *bindingstore.Document) error {
		doc.Bindings[b.Key().String()] = b
		return nil
	})
	if err != nil {
		return domain.Binding{}, fmt.Errorf("failed to save binding: %w", err)
	}
	return b, nil
}

// FindByID retrieves a binding by its composite key
func (r *bindingRepositoryImpl) FindByID(ctx context.Context, id domain.BindingKey) (domain.Binding, error) {
	doc, err := r.store.Load()
	if err != nil {
		return domain.Binding{}, fmt.Errorf("failed to find binding: %w", err)
	}
	b, ok := doc.Bindings[id.String()]
	if !ok {
		return domain.Binding{}, fmt.Errorf("binding %s: %w", id.String(), ErrNotFound)
	}
	return b, nil
}

// FindAll retrieves all bindings
func (r *bindingRepositoryImpl) FindAll(ctx context.Context) ([]domain.Binding, error) {
	doc, err := r.store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to list bindings: %w", err)
	}
	var out []domain.Binding
	for _, b := range doc.Bindings {
		out = append(out, b)
	}
	return out, nil
}

// DeleteByID removes a binding by its composite key
func (r *bindingRepositoryImpl) DeleteByID(ctx context.Context, id domain.BindingKey) error {
	found := false
	err := r.store.Update(func(doc *bindingstore.Document) error {
		if _, ok := doc.Bindings[id.String()]; ok {
			found = true
			delete(doc.Bindings, id.String())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete binding: %w", err)
	}
	if !found {
		return fmt.Errorf("binding %s: %w", id.String(), ErrNotFound)
	}
	return nil
}

// ExistsByID checks if a binding exists by its composite key
func (r *bindingRepositoryImpl) ExistsByID(ctx context.Context, id domain.BindingKey) (bool, error) {
	doc, err := r.store.Load()
	if err != nil {
		return false, fmt.Errorf("failed to check binding existence: %w", err)
	}
	_, ok := doc.Bindings[id.String()]
	return ok, nil
}

// FindByMAC retrieves bindings for a mac across all zones
func (r *bindingRepositoryImpl) FindByMAC(ctx context.Context, mac string) ([]domain.Binding, error) {
	doc, err := r.store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to find bindings by mac: %w", err)
	}
	var out []domain.Binding
	for _, b := range doc.Bindings {
		if b.MAC == mac {
			out = append(out, b)
		}
	}
	return out, nil
}

// FindByZone retrieves all bindings in a zone
func (r *bindingRepositoryImpl) FindByZone(ctx context.Context, zone string) ([]domain.Binding, error) {
	doc, err := r.store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to find bindings by zone: %w", err)
	}
	var out []domain.Binding
	for _, b := range doc.Bindings {
		if b.Zone == zone {
			out = append(out, b)
		}
	}
	return out, nil
}

// DeleteByMAC removes bindings for a mac, optionally zone-filtered
func (r *bindingRepositoryImpl) DeleteByMAC(ctx context.Context, mac, zone string) (int, error) {
	removed := 0
	err := r.store.Update(func(doc *bindingstore.Document) error {
		for key, b := range doc.Bindings {
			if b.MAC != mac {
				continue
			}
			if zone != "" && b.Zone != zone {
				continue
			}
			delete(doc.Bindings, key)
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete bindings by mac: %w", err)
	}
	return removed, nil
}
