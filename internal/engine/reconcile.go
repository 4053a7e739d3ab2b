package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jbweber/homelab/warden/internal/domain"
	"go.uber.org/zap"
)

// ListBindings produces the deduplicated, provenance-tagged view of
// every binding across the store and the registry, optionally filtered
// to one zone. Store entries take precedence over registry entries for
// the same (zone, mac). Read-only.
func (e *Engine) ListBindings(ctx context.Context, zone string) ([]domain.UnifiedBinding, error) {
	zones, err := e.registry.ListZones()
	if err != nil {
		return nil, fmt.Errorf("%w: list zones: %v", ErrCollaborator, err)
	}
	if zone != "" {
		found := false
		for _, z := range zones {
			if z == zone {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("zone %q: %w", zone, ErrNotFound)
		}
		zones = []string{zone}
	}

	var out []domain.UnifiedBinding
	for _, z := range zones {
		unified, err := e.reconcileZone(ctx, z)
		if err != nil {
			return nil, err
		}
		out = append(out, unified...)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Zone != out[j].Zone {
			return out[i].Zone < out[j].Zone
		}
		return out[i].MAC < out[j].MAC
	})
	return out, nil
}

// reconcileZone merges one zone's store bindings and registry entries.
func (e *Engine) reconcileZone(ctx context.Context, zone string) ([]domain.UnifiedBinding, error) {
	stored, err := e.bindings.FindByZone(ctx, zone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	entries, err := e.registry.ListEntries(zone)
	if err != nil {
		return nil, fmt.Errorf("%w: list entries for zone %s: %v", ErrCollaborator, zone, err)
	}

	entryByMAC := map[string]domain.PassthroughEntry{}
	for _, entry := range entries {
		mac, err := domain.CanonicalMAC(entry.MAC)
		if err != nil {
			e.logger.Warn("skipping registry entry with malformed mac",
				zap.String("zone", zone), zap.String("mac", entry.MAC))
			continue
		}
		entryByMAC[mac] = entry
	}

	var out []domain.UnifiedBinding
	covered := map[string]bool{}

	for _, b := range stored {
		u := domain.UnifiedBinding{
			Zone:   zone,
			MAC:    b.MAC,
			Action: "pass",
			Source: domain.SourceManaged,
		}
		if entry, ok := entryByMAC[b.MAC]; ok {
			u.Action = entry.Action
			u.Description = entry.Description
		}
		if expiry, ok := e.ResolveExpiry(ctx, zone, b.MAC, ""); ok {
			u.ExpiresAt = &expiry
		}
		out = append(out, u)
		covered[b.MAC] = true
	}

	for mac, entry := range entryByMAC {
		if covered[mac] {
			continue
		}
		source := classifyDescription(entry.Description)
		u := domain.UnifiedBinding{
			Zone:        zone,
			MAC:         mac,
			Action:      entry.Action,
			Description: entry.Description,
			Source:      source,
		}
		code := ""
		if source == domain.SourceExternalAuto {
			code = voucherCodeFromDescription(entry.Description)
		}
		if expiry, ok := e.ResolveExpiry(ctx, zone, mac, code); ok {
			u.ExpiresAt = &expiry
		}
		out = append(out, u)
	}
	return out, nil
}

// Search filters the unified view by a case-insensitive substring
// match across zone, mac, action, description, and source tag.
func (e *Engine) Search(ctx context.Context, query string) ([]domain.UnifiedBinding, error) {
	all, err := e.ListBindings(ctx, "")
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return all, nil
	}
	var out []domain.UnifiedBinding
	for _, u := range all {
		haystack := strings.ToLower(strings.Join([]string{
			u.Zone, u.MAC, u.Action, u.Description, string(u.Source),
		}, " "))
		if strings.Contains(haystack, q) {
			out = append(out, u)
		}
	}
	return out, nil
}
