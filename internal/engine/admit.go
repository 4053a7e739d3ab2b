package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jbweber/homelab/warden/internal/audit"
	"github.com/jbweber/homelab/warden/internal/domain"
	"github.com/jbweber/homelab/warden/internal/repository"
	"go.uber.org/zap"
)

// AddRequest describes an admission or renewal.
type AddRequest struct {
	Zone string
	MAC  string
	// Duration of the access window. Non-positive falls back to the
	// default window unless ExpiresAt is set.
	Duration time.Duration
	// ExpiresAt, when non-zero, is used instead of Duration.
	ExpiresAt   time.Time
	VoucherHash string
	SrcIP       string
	Description string
	// Action defaults to "pass".
	Action string
}

// AddResult reports the applied binding.
type AddResult struct {
	Binding   domain.Binding
	ExpiresAt time.Time
	// Action is "created" or "renewed".
	Action string
}

// AddBinding validates and commits a new or renewed binding. The local
// store is written first so readers see intent even if the registry
// commit is still in flight; registry, reload, and audit failures are
// reported to the caller but do not roll the store back.
func (e *Engine) AddBinding(ctx context.Context, req AddRequest) (AddResult, error) {
	mac, err := domain.CanonicalMAC(req.MAC)
	if err != nil {
		return AddResult{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if req.Zone == "" {
		return AddResult{}, fmt.Errorf("%w: zone is required", ErrValidation)
	}
	ok, err := e.zoneExists(req.Zone)
	if err != nil {
		return AddResult{}, err
	}
	if !ok {
		return AddResult{}, fmt.Errorf("zone %q: %w", req.Zone, ErrNotFound)
	}

	now := e.now()
	expiry := req.ExpiresAt
	if expiry.IsZero() {
		window := req.Duration
		if window <= 0 {
			window = e.opts.DefaultWindow
		}
		expiry = now.Add(window)
	}

	// Single active device per voucher: a voucher held by a different
	// mac that is still live in the registry blocks admission. A mac
	// that has since left the registry releases the voucher for
	// reassignment.
	if req.VoucherHash != "" {
		usage, err := e.vouchers.FindByID(ctx, domain.VoucherKey{Zone: req.Zone, VoucherHash: req.VoucherHash})
		switch {
		case err == nil && usage.MAC != mac:
			held, err := e.registryHasMAC(req.Zone, usage.MAC)
			if err != nil {
				return AddResult{}, err
			}
			if held {
				remaining := int64(usage.ExpiresAt.Sub(now).Seconds())
				if remaining < 0 {
					remaining = 0
				}
				return AddResult{}, &ConflictError{
					VoucherHash:      req.VoucherHash,
					BoundMAC:         usage.MAC,
					RemainingSeconds: remaining,
				}
			}
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return AddResult{}, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
	}

	action := "created"
	existing, err := e.bindings.FindByID(ctx, bindingKey(req.Zone, mac))
	switch {
	case err == nil:
		action = "renewed"
		// Re-admission never shortens an existing window.
		if existing.ExpiresAt.After(expiry) {
			expiry = existing.ExpiresAt
		}
	case !errors.Is(err, repository.ErrNotFound):
		return AddResult{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	binding := domain.Binding{
		Zone:        req.Zone,
		MAC:         mac,
		ExpiresAt:   expiry,
		VoucherHash: req.VoucherHash,
		LastSeen:    now,
		SrcIP:       req.SrcIP,
	}
	if _, err := e.bindings.Save(ctx, binding); err != nil {
		return AddResult{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if req.VoucherHash != "" {
		usage := domain.VoucherUsage{
			Zone:        req.Zone,
			VoucherHash: req.VoucherHash,
			MAC:         mac,
			FirstUsedAt: now,
			LastUsedAt:  now,
			ExpiresAt:   expiry,
			SrcIP:       req.SrcIP,
		}
		if prior, err := e.vouchers.FindByID(ctx, usage.Key()); err == nil {
			usage.FirstUsedAt = prior.FirstUsedAt
		}
		if _, err := e.vouchers.Save(ctx, usage); err != nil {
			return AddResult{}, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
	}

	result := AddResult{Binding: binding, ExpiresAt: expiry, Action: action}

	// Registry, reload, and audit are best-effort from here on: the
	// store already reflects intent and a later sweep or retry can
	// reconcile.
	var failures []error

	text := req.Description
	if text == "" {
		if req.VoucherHash != "" {
			text = "voucher redemption"
		} else {
			text = "manual add"
		}
	}
	entryAction := req.Action
	if entryAction == "" {
		entryAction = "pass"
	}
	entry := domain.PassthroughEntry{
		MAC:         mac,
		Action:      entryAction,
		Description: managedDescription(now, text),
	}
	if err := e.registry.UpsertEntry(req.Zone, entry); err != nil {
		failures = append(failures, fmt.Errorf("upsert entry: %w", err))
	} else {
		if err := e.registry.Commit(); err != nil {
			failures = append(failures, fmt.Errorf("commit: %w", err))
		}
		if err := e.registry.Reload(req.Zone); err != nil {
			failures = append(failures, fmt.Errorf("reload zone %s: %w", req.Zone, err))
		}
	}

	if e.auditor != nil {
		rec := audit.Record{
			Operation: "add_binding",
			Zone:      req.Zone,
			MAC:       mac,
			Detail: map[string]string{
				"action":     action,
				"expires_at": expiry.UTC().Format(time.RFC3339),
				"src_ip":     req.SrcIP,
			},
		}
		if err := e.auditor.Append(rec); err != nil {
			failures = append(failures, fmt.Errorf("audit: %w", err))
		}
	}

	if len(failures) > 0 {
		joined := errors.Join(failures...)
		e.logger.Warn("admission committed locally but collaborator steps failed",
			zap.String("zone", req.Zone), zap.String("mac", mac), zap.Error(joined))
		return result, fmt.Errorf("%w: %v", ErrCollaborator, joined)
	}

	e.logger.Info("binding admitted",
		zap.String("zone", req.Zone),
		zap.String("mac", mac),
		zap.String("action", action),
		zap.Time("expires_at", expiry))
	return result, nil
}
