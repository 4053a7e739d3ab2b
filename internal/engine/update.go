package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jbweber/homelab/warden/internal/audit"
	"github.com/jbweber/homelab/warden/internal/domain"
)

// UpdateRequest mutates fields of an existing binding.
type UpdateRequest struct {
	MAC string
	// Zone restricts the update to one zone when non-empty.
	Zone string
	// Action replaces the entry action when non-empty.
	Action string
	// Description replaces the entry description when non-empty.
	// Managed entries keep their provenance marker.
	Description string
	// ExpiresAt replaces the store expiry when non-nil.
	ExpiresAt *time.Time
}

// UpdateResult reports how many zone entries were touched.
type UpdateResult struct {
	Updated int `json:"updated"`
}

// UpdateBinding changes action, description, or expiry of a binding
// wherever it appears, optionally restricted to one zone.
func (e *Engine) UpdateBinding(ctx context.Context, req UpdateRequest) (UpdateResult, error) {
	mac, err := domain.CanonicalMAC(req.MAC)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	zones, err := e.registry.ListZones()
	if err != nil {
		return UpdateResult{}, fmt.Errorf("%w: list zones: %v", ErrCollaborator, err)
	}

	result := UpdateResult{}
	foundElsewhere := false
	var touchedZones []string

	for _, zone := range zones {
		if req.Zone != "" && zone != req.Zone {
			// Still track presence so a filtered miss is reported as
			// such rather than as unknown. Presence tracking is
			// best-effort; a read failure here only downgrades the
			// miss message.
			if held, err := e.registryHasMAC(zone, mac); err == nil && held {
				foundElsewhere = true
			}
			continue
		}

		entries, err := e.registry.ListEntries(zone)
		if err != nil {
			return result, fmt.Errorf("%w: list entries for zone %s: %v", ErrCollaborator, zone, err)
		}
		for _, entry := range entries {
			canonical, err := domain.CanonicalMAC(entry.MAC)
			if err != nil || canonical != mac {
				continue
			}

			updated := entry
			if req.Action != "" {
				updated.Action = req.Action
			}
			if req.Description != "" {
				if classifyDescription(entry.Description) == domain.SourceManaged {
					updated.Description = managedDescription(e.now(), req.Description)
				} else {
					updated.Description = req.Description
				}
			}
			if err := e.registry.UpsertEntry(zone, updated); err != nil {
				return result, fmt.Errorf("%w: upsert entry: %v", ErrCollaborator, err)
			}

			if req.ExpiresAt != nil {
				if b, err := e.bindings.FindByID(ctx, bindingKey(zone, mac)); err == nil {
					b.ExpiresAt = req.ExpiresAt.UTC()
					if _, err := e.bindings.Save(ctx, b); err != nil {
						return result, fmt.Errorf("%w: %v", ErrPersistence, err)
					}
				}
			}

			result.Updated++
			touchedZones = append(touchedZones, zone)
		}
	}

	if result.Updated == 0 {
		if req.Zone != "" && foundElsewhere {
			return result, fmt.Errorf("mac %s not present in zone %q: %w", mac, req.Zone, ErrNotFound)
		}
		return result, fmt.Errorf("mac %s: %w", mac, ErrNotFound)
	}

	var failures []error
	if err := e.registry.Commit(); err != nil {
		failures = append(failures, fmt.Errorf("commit: %w", err))
	}
	for _, zone := range touchedZones {
		if err := e.registry.Reload(zone); err != nil {
			failures = append(failures, fmt.Errorf("reload zone %s: %w", zone, err))
		}
	}

	e.appendAudit(audit.Record{
		Operation: "update_binding",
		Zone:      req.Zone,
		MAC:       mac,
		Detail: map[string]string{
			"updated": strconv.Itoa(result.Updated),
		},
	})

	if len(failures) > 0 {
		return result, fmt.Errorf("%w: %v", ErrCollaborator, errors.Join(failures...))
	}
	return result, nil
}
