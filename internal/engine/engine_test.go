package engine

import (
	"fmt"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/jbweber/homelab/warden/internal/audit"
	"github.com/jbweber/homelab/warden/internal/bindingstore"
	"github.com/jbweber/homelab/warden/internal/domain"
	"github.com/jbweber/homelab/warden/internal/repository"
)

// testNow is the frozen clock all engine tests run against.
var testNow = time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

type fakeRegistry struct {
	zones       map[string][]domain.PassthroughEntry
	commits     int
	reloaded    []string
	oplog       *[]string
	failUpsert  bool
	failCommit  bool
	failEntries bool
}

func (r *fakeRegistry) ListZones() ([]string, error) {
	var zones []string
	for z := range r.zones {
		zones = append(zones, z)
	}
	sort.Strings(zones)
	return zones, nil
}

func (r *fakeRegistry) ListEntries(zone string) ([]domain.PassthroughEntry, error) {
	if r.failEntries {
		return nil, fmt.Errorf("registry unreadable")
	}
	entries, ok := r.zones[zone]
	if !ok {
		return nil, fmt.Errorf("zone %s not found", zone)
	}
	out := make([]domain.PassthroughEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// macEqual mirrors the file registry's spelling-insensitive compare.
func macEqual(a, b string) bool {
	ca, errA := domain.CanonicalMAC(a)
	cb, errB := domain.CanonicalMAC(b)
	if errA == nil && errB == nil {
		return ca == cb
	}
	return a == b
}

func (r *fakeRegistry) UpsertEntry(zone string, entry domain.PassthroughEntry) error {
	if r.failUpsert {
		return fmt.Errorf("upsert refused")
	}
	entries, ok := r.zones[zone]
	if !ok {
		return fmt.Errorf("zone %s not found", zone)
	}
	for i := range entries {
		if macEqual(entries[i].MAC, entry.MAC) {
			entries[i] = entry
			return nil
		}
	}
	r.zones[zone] = append(entries, entry)
	return nil
}

func (r *fakeRegistry) DeleteEntry(zone, mac string) error {
	if r.oplog != nil {
		*r.oplog = append(*r.oplog, "registry-delete")
	}
	entries := r.zones[zone]
	for i := range entries {
		if macEqual(entries[i].MAC, mac) {
			r.zones[zone] = append(entries[:i], entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *fakeRegistry) Commit() error {
	if r.failCommit {
		return fmt.Errorf("commit refused")
	}
	r.commits++
	return nil
}

func (r *fakeRegistry) Reload(zone string) error {
	r.reloaded = append(r.reloaded, zone)
	return nil
}

type fakeSessions struct {
	sessions   map[string][]domain.Session
	terminated []string
	failList   bool
}

func (s *fakeSessions) ListActiveSessions(zone string) ([]domain.Session, error) {
	if s.failList {
		return nil, fmt.Errorf("session db unavailable")
	}
	return s.sessions[zone], nil
}

func (s *fakeSessions) TerminateSession(zone, sessionID, reason string) error {
	sessions := s.sessions[zone]
	for i := range sessions {
		if sessions[i].SessionID == sessionID {
			s.sessions[zone] = append(sessions[:i], sessions[i+1:]...)
			s.terminated = append(s.terminated, sessionID)
			return nil
		}
	}
	return nil
}

type fakeLedger struct {
	rolls map[string][]domain.VoucherRollRecord
}

func (l *fakeLedger) RollRecords(zone string) ([]domain.VoucherRollRecord, error) {
	return l.rolls[zone], nil
}

type fakeFirewall struct {
	deleted    []string
	flushed    []string
	oplog      *[]string
	failDelete bool
}

func (f *fakeFirewall) DeletePassthroughRule(zone string, entry domain.PassthroughEntry) error {
	if f.failDelete {
		return fmt.Errorf("rule delete refused")
	}
	if f.oplog != nil {
		*f.oplog = append(*f.oplog, "firewall-delete")
	}
	f.deleted = append(f.deleted, zone+"|"+entry.MAC)
	return nil
}

func (f *fakeFirewall) FlushState(target string) error {
	f.flushed = append(f.flushed, target)
	return nil
}

type fakeAuditor struct {
	records    []audit.Record
	failAppend bool
}

func (a *fakeAuditor) Append(rec audit.Record) error {
	if a.failAppend {
		return fmt.Errorf("audit log full")
	}
	a.records = append(a.records, rec)
	return nil
}

func (a *fakeAuditor) operations() []string {
	var ops []string
	for _, rec := range a.records {
		ops = append(ops, rec.Operation)
	}
	return ops
}

type testEnv struct {
	engine   *Engine
	bindings repository.BindingRepository
	vouchers repository.VoucherUsageRepository
	reg      *fakeRegistry
	sessions *fakeSessions
	ledger   *fakeLedger
	fw       *fakeFirewall
	auditor  *fakeAuditor
	oplog    []string
}

// newTestEnv wires an engine against in-memory collaborators and a
// real file-backed binding store, with guest and staff zones present.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{}
	env.reg = &fakeRegistry{
		zones: map[string][]domain.PassthroughEntry{
			"guest": {},
			"staff": {},
		},
		oplog: &env.oplog,
	}
	env.sessions = &fakeSessions{sessions: map[string][]domain.Session{}}
	env.ledger = &fakeLedger{rolls: map[string][]domain.VoucherRollRecord{}}
	env.fw = &fakeFirewall{oplog: &env.oplog}
	env.auditor = &fakeAuditor{}

	store := bindingstore.New(filepath.Join(t.TempDir(), "bindings.json"), nil)
	env.bindings = repository.NewBindingRepository(store)
	env.vouchers = repository.NewVoucherUsageRepository(store)

	env.engine = New(
		env.bindings, env.vouchers,
		env.reg, env.sessions, env.ledger, env.fw, env.auditor,
		nil,
		Options{Now: func() time.Time { return testNow }},
	)
	return env
}
