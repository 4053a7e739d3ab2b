// Package engine implements the binding reconciliation and lifecycle
// core: merging the binding store, the pass-through registry, and the
// per-zone portal databases into one consistent view, admitting new
// bindings under the single-device-per-voucher rule, and tearing
// bindings down in an order that reliably cuts live access.
package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jbweber/homelab/warden/internal/audit"
	"github.com/jbweber/homelab/warden/internal/domain"
	"github.com/jbweber/homelab/warden/internal/repository"
	"go.uber.org/zap"
)

// Registry is the pass-through registry collaborator. Mutations become
// durable on Commit; Reload signals the enforcement agent for a zone.
type Registry interface {
	ListZones() ([]string, error)
	ListEntries(zone string) ([]domain.PassthroughEntry, error)
	UpsertEntry(zone string, entry domain.PassthroughEntry) error
	DeleteEntry(zone, mac string) error
	Commit() error
	Reload(zone string) error
}

// SessionStore reads a zone's live portal sessions and terminates them
// on revocation. It is read-mostly; warden never writes sessions.
type SessionStore interface {
	ListActiveSessions(zone string) ([]domain.Session, error)
	TerminateSession(zone, sessionID, reason string) error
}

// VoucherLedger reads a zone's activated voucher roll records.
type VoucherLedger interface {
	RollRecords(zone string) ([]domain.VoucherRollRecord, error)
}

// Firewall cuts live access for a revoked device.
type Firewall interface {
	DeletePassthroughRule(zone string, entry domain.PassthroughEntry) error
	FlushState(target string) error
}

// Auditor records admissions, revocations, updates, and sweeps.
type Auditor interface {
	Append(rec audit.Record) error
}

// Options tunes engine behavior.
type Options struct {
	// DefaultWindow is applied when an admission carries no positive
	// duration and no explicit expiry.
	DefaultWindow time.Duration
	// OrphanGrace protects freshly committed registry entries from the
	// sweeper while their store write may still be in flight.
	OrphanGrace time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

// DefaultWindow is the fallback admission window.
const DefaultWindow = 30 * 24 * time.Hour

// DefaultOrphanGrace is the default sweep grace for young managed
// entries with no store record.
const DefaultOrphanGrace = 2 * time.Minute

// Engine coordinates the binding store with the external collaborators.
type Engine struct {
	bindings repository.BindingRepository
	vouchers repository.VoucherUsageRepository
	registry Registry
	sessions SessionStore
	ledger   VoucherLedger
	firewall Firewall
	auditor  Auditor
	logger   *zap.Logger
	opts     Options
}

// New wires an engine from its collaborators.
func New(
	bindings repository.BindingRepository,
	vouchers repository.VoucherUsageRepository,
	reg Registry,
	sessions SessionStore,
	ledger VoucherLedger,
	fw Firewall,
	auditor Auditor,
	logger *zap.Logger,
	opts Options,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultWindow <= 0 {
		opts.DefaultWindow = DefaultWindow
	}
	if opts.OrphanGrace <= 0 {
		opts.OrphanGrace = DefaultOrphanGrace
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		bindings: bindings,
		vouchers: vouchers,
		registry: reg,
		sessions: sessions,
		ledger:   ledger,
		firewall: fw,
		auditor:  auditor,
		logger:   logger,
		opts:     opts,
	}
}

func (e *Engine) now() time.Time {
	return e.opts.Now().UTC()
}

// zoneExists reports whether the registry knows the zone.
func (e *Engine) zoneExists(zone string) (bool, error) {
	zones, err := e.registry.ListZones()
	if err != nil {
		return false, fmt.Errorf("%w: list zones: %v", ErrCollaborator, err)
	}
	for _, z := range zones {
		if z == zone {
			return true, nil
		}
	}
	return false, nil
}

// registryHasMAC reports whether a zone's allow-list currently carries
// the mac. An unreadable registry is an error, not absence: callers
// enforcing the single-device voucher invariant must not treat
// "presence unknown" as "released".
func (e *Engine) registryHasMAC(zone, mac string) (bool, error) {
	entries, err := e.registry.ListEntries(zone)
	if err != nil {
		return false, fmt.Errorf("%w: list entries for zone %s: %v", ErrCollaborator, zone, err)
	}
	for _, entry := range entries {
		if canonical, err := domain.CanonicalMAC(entry.MAC); err == nil && canonical == mac {
			return true, nil
		}
	}
	return false, nil
}

// Provenance markers carried in registry entry descriptions.
const (
	// managedPrefix tags entries this engine owns. The prefix is
	// followed by the unix timestamp of the write, then free text:
	// "warden:1724745600 voucher redemption".
	managedPrefix = "warden:"
	// voucherIssuedPrefix tags entries the portal created on voucher
	// redemption: "Voucher-<code>".
	voucherIssuedPrefix = "Voucher-"
)

// managedDescription stamps a description with the managed provenance
// marker and write time.
func managedDescription(now time.Time, text string) string {
	return fmt.Sprintf("%s%d %s", managedPrefix, now.Unix(), text)
}

// classifyDescription maps a registry description to a source tag.
func classifyDescription(desc string) domain.Source {
	switch {
	case strings.HasPrefix(desc, managedPrefix):
		return domain.SourceManaged
	case strings.HasPrefix(desc, voucherIssuedPrefix):
		return domain.SourceExternalAuto
	default:
		return domain.SourceExternalManual
	}
}

// managedTimestamp extracts the write time from a managed description.
func managedTimestamp(desc string) (time.Time, bool) {
	if !strings.HasPrefix(desc, managedPrefix) {
		return time.Time{}, false
	}
	rest := strings.TrimPrefix(desc, managedPrefix)
	field, _, _ := strings.Cut(rest, " ")
	unix, err := strconv.ParseInt(field, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(unix, 0).UTC(), true
}

// voucherCodeFromDescription extracts the code from a voucher-issued
// description.
func voucherCodeFromDescription(desc string) string {
	if !strings.HasPrefix(desc, voucherIssuedPrefix) {
		return ""
	}
	code, _, _ := strings.Cut(strings.TrimPrefix(desc, voucherIssuedPrefix), " ")
	return code
}

func bindingKey(zone, mac string) domain.BindingKey {
	return domain.BindingKey{Zone: zone, MAC: mac}
}

func (e *Engine) appendAudit(rec audit.Record) {
	if e.auditor == nil {
		return
	}
	if err := e.auditor.Append(rec); err != nil {
		e.logger.Warn("failed to append audit record",
			zap.String("operation", rec.Operation), zap.Error(err))
	}
}
