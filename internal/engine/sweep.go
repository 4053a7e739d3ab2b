package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jbweber/homelab/warden/internal/audit"
	"github.com/jbweber/homelab/warden/internal/domain"
	"go.uber.org/zap"
)

// SweepResult reports what a cleanup pass removed.
type SweepResult struct {
	RemovedCount   int `json:"removed_count"`
	VouchersPruned int `json:"vouchers_pruned"`
	Failures       int `json:"failures"`
}

// CleanupExpired scans every registry entry and removes the ones whose
// access has lapsed: managed entries whose store expiry passed or
// whose store record is gone (orphans), and voucher-issued entries
// whose session or ledger expiry passed. Entries whose expiry cannot
// be resolved are left alone. Each removal runs the full ordered
// teardown. Expired voucher usage records are pruned at the end.
func (e *Engine) CleanupExpired(ctx context.Context) (SweepResult, error) {
	now := e.now()
	result := SweepResult{}

	stored, err := e.bindings.FindAll(ctx)
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	expiries := map[domain.BindingKey]struct{ expired bool }{}
	for _, b := range stored {
		expiries[b.Key()] = struct{ expired bool }{expired: !b.ExpiresAt.After(now)}
	}

	zones, err := e.registry.ListZones()
	if err != nil {
		return result, fmt.Errorf("%w: list zones: %v", ErrCollaborator, err)
	}

	handled := map[domain.BindingKey]bool{}
	for _, zone := range zones {
		entries, err := e.registry.ListEntries(zone)
		if err != nil {
			e.logger.Warn("failed to list registry entries during sweep",
				zap.String("zone", zone), zap.Error(err))
			result.Failures++
			continue
		}
		for _, entry := range entries {
			mac, err := domain.CanonicalMAC(entry.MAC)
			if err != nil {
				e.logger.Warn("skipping registry entry with malformed mac",
					zap.String("zone", zone), zap.String("mac", entry.MAC))
				continue
			}
			key := bindingKey(zone, mac)

			// A store record makes the entry managed regardless of its
			// description.
			if state, ok := expiries[key]; ok {
				handled[key] = true
				if state.expired {
					e.sweepRemove(ctx, &result, mac, zone, "store expiry passed")
				}
				continue
			}

			switch classifyDescription(entry.Description) {
			case domain.SourceManaged:
				// Orphan candidate. Re-check against a fresh store
				// read and give young entries a grace window: an
				// in-flight admission may have committed the registry
				// entry before its store write became visible.
				if exists, err := e.bindings.ExistsByID(ctx, key); err == nil && exists {
					continue
				}
				if ts, ok := managedTimestamp(entry.Description); ok && now.Sub(ts) < e.opts.OrphanGrace {
					continue
				}
				e.sweepRemove(ctx, &result, mac, zone, "orphaned managed entry")
			case domain.SourceExternalAuto:
				code := voucherCodeFromDescription(entry.Description)
				expiry, ok := e.ResolveExpiry(ctx, zone, mac, code)
				if ok && !expiry.After(now) {
					e.sweepRemove(ctx, &result, mac, zone, "voucher expiry passed")
				}
				// Unknown expiry is not evidence of expiry; keep.
			case domain.SourceExternalManual:
				// Operator-owned; never swept.
			}
		}
	}

	// Store records whose expiry passed but whose registry entry is
	// already gone still need their local record and sessions cleaned.
	for _, b := range stored {
		key := b.Key()
		if handled[key] || b.ExpiresAt.After(now) {
			continue
		}
		if exists, err := e.bindings.ExistsByID(ctx, key); err != nil || !exists {
			continue
		}
		e.sweepRemove(ctx, &result, b.MAC, b.Zone, "stale store record")
	}

	pruned, err := e.vouchers.DeleteExpired(ctx, now)
	if err != nil {
		e.logger.Warn("failed to prune voucher usage", zap.Error(err))
		result.Failures++
	}
	result.VouchersPruned = pruned

	e.appendAudit(audit.Record{
		Operation: "cleanup_expired",
		Detail: map[string]string{
			"removed_count":   strconv.Itoa(result.RemovedCount),
			"vouchers_pruned": strconv.Itoa(result.VouchersPruned),
			"failures":        strconv.Itoa(result.Failures),
		},
	})
	e.logger.Info("sweep complete",
		zap.Int("removed_count", result.RemovedCount),
		zap.Int("vouchers_pruned", result.VouchersPruned),
		zap.Int("failures", result.Failures))
	return result, nil
}

// sweepRemove runs the ordered teardown for one expired entry.
func (e *Engine) sweepRemove(ctx context.Context, result *SweepResult, mac, zone, reason string) {
	res, err := e.RemoveBinding(ctx, mac, zone)
	if err != nil {
		e.logger.Warn("sweep removal failed",
			zap.String("zone", zone), zap.String("mac", mac),
			zap.String("reason", reason), zap.Error(err))
		result.Failures++
		return
	}
	result.Failures += res.Failures
	if res.Outcome == OutcomeRemoved {
		result.RemovedCount++
		e.logger.Info("swept expired binding",
			zap.String("zone", zone), zap.String("mac", mac), zap.String("reason", reason))
	}
}
