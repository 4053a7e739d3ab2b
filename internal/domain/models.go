package domain

import (
	"fmt"
	"strings"
	"time"
)

// Source classifies where a pass-through entry came from when the
// registry and the binding store are reconciled into one view.
type Source string

const (
	// SourceManaged marks entries owned by this engine.
	SourceManaged Source = "managed"
	// SourceExternalAuto marks entries created by another automated
	// system, e.g. voucher redemption in the portal itself.
	SourceExternalAuto Source = "external-auto"
	// SourceExternalManual marks entries an operator added by hand.
	SourceExternalManual Source = "external-manual"
)

// Binding is a time-bounded network-access approval for a MAC address
// within a zone. MAC is always stored canonicalized.
type Binding struct {
	Zone        string    `json:"zone"`
	MAC         string    `json:"mac"`
	ExpiresAt   time.Time `json:"expires_at"`
	VoucherHash string    `json:"voucher_hash,omitempty"`
	LastSeen    time.Time `json:"last_seen"`
	SrcIP       string    `json:"src_ip,omitempty"`
}

// Key returns the composite store key for this binding.
func (b Binding) Key() BindingKey {
	return BindingKey{Zone: b.Zone, MAC: b.MAC}
}

// VoucherUsage records which device currently holds a voucher in a zone.
type VoucherUsage struct {
	Zone        string    `json:"zone"`
	VoucherHash string    `json:"voucher_hash"`
	MAC         string    `json:"mac"`
	FirstUsedAt time.Time `json:"first_used_at"`
	LastUsedAt  time.Time `json:"last_used_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	SrcIP       string    `json:"src_ip,omitempty"`
}

// Key returns the composite store key for this usage record.
func (v VoucherUsage) Key() VoucherKey {
	return VoucherKey{Zone: v.Zone, VoucherHash: v.VoucherHash}
}

// BindingKey is the unique (zone, mac) identity of a binding.
type BindingKey struct {
	Zone string
	MAC  string
}

// String renders the key in the persisted "<zone>|<mac>" form.
func (k BindingKey) String() string {
	return k.Zone + "|" + k.MAC
}

// ParseBindingKey parses a persisted "<zone>|<mac>" key.
func ParseBindingKey(s string) (BindingKey, error) {
	zone, mac, ok := strings.Cut(s, "|")
	if !ok || zone == "" || mac == "" {
		return BindingKey{}, fmt.Errorf("malformed binding key %q", s)
	}
	return BindingKey{Zone: zone, MAC: mac}, nil
}

// VoucherKey is the unique (zone, voucher_hash) identity of a usage record.
type VoucherKey struct {
	Zone        string
	VoucherHash string
}

// String renders the key in the persisted "<zone>|<hash>" form.
func (k VoucherKey) String() string {
	return k.Zone + "|" + k.VoucherHash
}

// ParseVoucherKey parses a persisted "<zone>|<hash>" key.
func ParseVoucherKey(s string) (VoucherKey, error) {
	zone, hash, ok := strings.Cut(s, "|")
	if !ok || zone == "" || hash == "" {
		return VoucherKey{}, fmt.Errorf("malformed voucher key %q", s)
	}
	return VoucherKey{Zone: zone, VoucherHash: hash}, nil
}

// PassthroughEntry is an allow-list entry owned by the pass-through
// registry. Description carries the provenance marker.
type PassthroughEntry struct {
	MAC         string `json:"mac"`
	Action      string `json:"action"`
	Description string `json:"description,omitempty"`
}

// Session is an active authenticated connection in a zone's portal
// database. Its effective expiry is AllowTime + Timeout.
type Session struct {
	SessionID string
	MAC       string
	Username  string
	IP        string
	AllowTime time.Time
	Timeout   time.Duration
}

// ExpiresAt returns the moment the session stops being valid.
func (s Session) ExpiresAt() time.Time {
	return s.AllowTime.Add(s.Timeout)
}

// VoucherRollRecord is one activated voucher code in a zone's roll set.
type VoucherRollRecord struct {
	Roll            int
	Code            string
	ActivatedAt     time.Time
	DurationMinutes int
}

// ExpiresAt returns when the voucher's validity window closes.
func (r VoucherRollRecord) ExpiresAt() time.Time {
	return r.ActivatedAt.Add(time.Duration(r.DurationMinutes) * time.Minute)
}

// UnifiedBinding is one row of the reconciled view across the binding
// store and the pass-through registry. ExpiresAt is nil when no source
// could resolve an expiry.
type UnifiedBinding struct {
	Zone        string     `json:"zone"`
	MAC         string     `json:"mac"`
	Action      string     `json:"action"`
	Description string     `json:"description,omitempty"`
	Source      Source     `json:"source"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}
