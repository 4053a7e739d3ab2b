package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ResolveExpiry derives a binding's effective expiry from the sources
// in priority order: a live portal session for the mac, a live session
// keyed by the voucher code, the voucher ledger (returned even when
// already past, so callers can display it), and finally the binding
// store. The second return is false when no source knows an expiry —
// absence of information, not evidence of expiry.
//
// Collaborator read failures are logged and the chain continues; a
// resolver call never mutates anything.
func (e *Engine) ResolveExpiry(ctx context.Context, zone, mac, voucherCode string) (time.Time, bool) {
	now := e.now()

	sessions, err := e.sessions.ListActiveSessions(zone)
	if err != nil {
		e.logger.Warn("failed to list portal sessions",
			zap.String("zone", zone), zap.Error(err))
	}
	for _, s := range sessions {
		if s.MAC == mac && s.ExpiresAt().After(now) {
			return s.ExpiresAt(), true
		}
	}
	if voucherCode != "" {
		for _, s := range sessions {
			if s.Username == voucherCode && s.ExpiresAt().After(now) {
				return s.ExpiresAt(), true
			}
		}

		records, err := e.ledger.RollRecords(zone)
		if err != nil {
			e.logger.Warn("failed to read voucher rolls",
				zap.String("zone", zone), zap.Error(err))
		}
		// The last matching record across the rolls wins; the same
		// code can appear in more than one roll.
		var expiry time.Time
		found := false
		for _, r := range records {
			if r.Code == voucherCode {
				expiry = r.ExpiresAt()
				found = true
			}
		}
		if found {
			return expiry, true
		}
	}

	if b, err := e.bindings.FindByID(ctx, bindingKey(zone, mac)); err == nil && !b.ExpiresAt.IsZero() {
		return b.ExpiresAt, true
	}

	return time.Time{}, false
}
