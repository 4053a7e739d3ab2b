package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jbweber/homelab/warden/internal/audit"
	"github.com/jbweber/homelab/warden/internal/domain"
	"go.uber.org/zap"
)

// RevokeOutcome classifies what a revocation found.
type RevokeOutcome string

const (
	// OutcomeRemoved means at least one binding, entry, or session was
	// torn down.
	OutcomeRemoved RevokeOutcome = "removed"
	// OutcomeNotFound means the mac is unknown everywhere.
	OutcomeNotFound RevokeOutcome = "not-found"
	// OutcomeNotFoundInZone means the zone filter matched nothing but
	// the mac exists in another zone.
	OutcomeNotFoundInZone RevokeOutcome = "not-found-in-zone"
)

// RevokeResult reports per-step counts of a teardown.
type RevokeResult struct {
	Outcome            RevokeOutcome `json:"outcome"`
	StoreRemoved       int           `json:"store_removed"`
	SessionsTerminated int           `json:"sessions_terminated"`
	RulesFlushed       int           `json:"rules_flushed"`
	EntriesRemoved     int           `json:"entries_removed"`
	// Failures counts collaborator calls that failed; the teardown
	// continues past them.
	Failures int `json:"failures"`
}

// RemoveBinding tears down every trace of a mac, optionally restricted
// to one zone: store record first, then live sessions, then firewall
// rules before their registry entries, then commit and a mac-scoped
// state flush. Each step's failure is logged and counted but never
// aborts the later steps; the teardown is maximal best-effort across
// independently-owned subsystems. Idempotent: revoking an absent mac
// reports zero removals, not an error.
func (e *Engine) RemoveBinding(ctx context.Context, rawMAC, zoneFilter string) (RevokeResult, error) {
	mac, err := domain.CanonicalMAC(rawMAC)
	if err != nil {
		return RevokeResult{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	result := RevokeResult{}

	zones, err := e.registry.ListZones()
	if err != nil {
		e.logger.Warn("failed to list zones during revocation", zap.Error(err))
		result.Failures++
	}

	// Find where the mac lives: registry entries per zone plus store
	// records (which may name zones the registry no longer has).
	type match struct {
		zone  string
		entry domain.PassthroughEntry
	}
	var regMatches []match
	regZonesWithMAC := map[string]bool{}
	for _, z := range zones {
		entries, err := e.registry.ListEntries(z)
		if err != nil {
			e.logger.Warn("failed to list registry entries during revocation",
				zap.String("zone", z), zap.Error(err))
			result.Failures++
			continue
		}
		for _, entry := range entries {
			canonical, err := domain.CanonicalMAC(entry.MAC)
			if err != nil || canonical != mac {
				continue
			}
			regZonesWithMAC[z] = true
			if zoneFilter == "" || z == zoneFilter {
				regMatches = append(regMatches, match{zone: z, entry: entry})
			}
		}
	}

	stored, err := e.bindings.FindByMAC(ctx, mac)
	if err != nil {
		e.logger.Warn("failed to read binding store during revocation", zap.Error(err))
		result.Failures++
	}
	storeZonesWithMAC := map[string]bool{}
	inScopeStore := false
	for _, b := range stored {
		storeZonesWithMAC[b.Zone] = true
		if zoneFilter == "" || b.Zone == zoneFilter {
			inScopeStore = true
		}
	}

	if len(regMatches) == 0 && !inScopeStore {
		outcome := OutcomeNotFound
		if zoneFilter != "" && (len(storeZonesWithMAC) > 0 || len(regZonesWithMAC) > 0) {
			outcome = OutcomeNotFoundInZone
		}
		result.Outcome = outcome
		return result, nil
	}

	// Step 1: store records first, shrinking the window where the
	// reconciled view still shows the binding as managed.
	removed, err := e.bindings.DeleteByMAC(ctx, mac, zoneFilter)
	if err != nil {
		e.logger.Warn("failed to remove store bindings", zap.String("mac", mac), zap.Error(err))
		result.Failures++
	}
	result.StoreRemoved = removed

	// Step 2: terminate live sessions in every affected zone.
	affectedZones := map[string]bool{}
	for _, m := range regMatches {
		affectedZones[m.zone] = true
	}
	for z := range storeZonesWithMAC {
		if zoneFilter == "" || z == zoneFilter {
			affectedZones[z] = true
		}
	}
	for z := range affectedZones {
		sessions, err := e.sessions.ListActiveSessions(z)
		if err != nil {
			e.logger.Warn("failed to list sessions during revocation",
				zap.String("zone", z), zap.Error(err))
			result.Failures++
			continue
		}
		for _, s := range sessions {
			if s.MAC != mac {
				continue
			}
			if err := e.sessions.TerminateSession(z, s.SessionID, "binding revoked"); err != nil {
				e.logger.Warn("failed to terminate session",
					zap.String("zone", z), zap.String("session_id", s.SessionID), zap.Error(err))
				result.Failures++
				continue
			}
			result.SessionsTerminated++
		}
	}

	// Step 3: firewall rule before registry entry, so a crash
	// mid-step leaves a retryable record rather than an orphaned live
	// rule.
	for _, m := range regMatches {
		if err := e.firewall.DeletePassthroughRule(m.zone, m.entry); err != nil {
			e.logger.Warn("failed to delete firewall rule",
				zap.String("zone", m.zone), zap.String("mac", mac), zap.Error(err))
			result.Failures++
		} else {
			result.RulesFlushed++
		}
		if err := e.registry.DeleteEntry(m.zone, m.entry.MAC); err != nil {
			e.logger.Warn("failed to delete registry entry",
				zap.String("zone", m.zone), zap.String("mac", mac), zap.Error(err))
			result.Failures++
		} else {
			result.EntriesRemoved++
		}
	}

	// Step 4: persist registry changes, then flush any remaining
	// connection-tracking state not tied to a session.
	if len(regMatches) > 0 {
		if err := e.registry.Commit(); err != nil {
			e.logger.Warn("failed to commit registry", zap.Error(err))
			result.Failures++
		}
		for z := range affectedZones {
			if err := e.registry.Reload(z); err != nil {
				e.logger.Warn("failed to reload zone", zap.String("zone", z), zap.Error(err))
				result.Failures++
			}
		}
	}
	if err := e.firewall.FlushState(mac); err != nil {
		e.logger.Warn("failed to flush firewall state", zap.String("mac", mac), zap.Error(err))
		result.Failures++
	}

	result.Outcome = OutcomeRemoved
	e.appendAudit(audit.Record{
		Operation: "remove_binding",
		Zone:      zoneFilter,
		MAC:       mac,
		Detail: map[string]string{
			"store_removed":       strconv.Itoa(result.StoreRemoved),
			"sessions_terminated": strconv.Itoa(result.SessionsTerminated),
			"rules_flushed":       strconv.Itoa(result.RulesFlushed),
			"entries_removed":     strconv.Itoa(result.EntriesRemoved),
			"failures":            strconv.Itoa(result.Failures),
		},
	})
	e.logger.Info("binding revoked",
		zap.String("mac", mac),
		zap.String("zone_filter", zoneFilter),
		zap.Int("store_removed", result.StoreRemoved),
		zap.Int("sessions_terminated", result.SessionsTerminated),
		zap.Int("entries_removed", result.EntriesRemoved),
		zap.Int("failures", result.Failures))
	return result, nil
}
