// Package registry implements the pass-through registry collaborator:
// the per-zone allow-list an external enforcement agent consumes. The
// registry file is owned by that subsystem; warden mutates it only
// through upsert/delete and makes changes durable with Commit, after
// which Reload signals the agent to re-read a zone.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jbweber/homelab/warden/internal/domain"
	"go.uber.org/zap"
)

// ErrZoneNotFound is returned when a zone is not present in the
// registry file.
var ErrZoneNotFound = errors.New("zone not found in registry")

type document struct {
	Version int                                  `json:"version"`
	Zones   map[string][]domain.PassthroughEntry `json:"zones"`
}

// FileRegistry is a registry backed by a single JSON allow-list file.
// Mutations accumulate in memory; Commit writes the file atomically.
type FileRegistry struct {
	path      string
	reloadCmd []string
	logger    *zap.Logger

	mu    sync.Mutex
	doc   *document
	dirty bool
}

// Open loads the registry file. A missing file is an empty registry;
// zones are created by the external subsystem, not by warden.
// reloadCmd, when non-empty, is executed on Reload with "%ZONE%"
// substituted by the zone name.
func Open(path string, reloadCmd []string, logger *zap.Logger) (*FileRegistry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &FileRegistry{path: path, reloadCmd: reloadCmd, logger: logger}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRegistry) load() error {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		r.doc = &document{Version: 1, Zones: map[string][]domain.PassthroughEntry{}}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read registry file: %w", err)
	}
	doc := &document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return fmt.Errorf("failed to parse registry file %s: %w", r.path, err)
	}
	if doc.Zones == nil {
		doc.Zones = map[string][]domain.PassthroughEntry{}
	}
	r.doc = doc
	return nil
}

// ListZones returns the registry's zone names, sorted.
func (r *FileRegistry) ListZones() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	zones := make([]string, 0, len(r.doc.Zones))
	for zone := range r.doc.Zones {
		zones = append(zones, zone)
	}
	sort.Strings(zones)
	return zones, nil
}

// ListEntries returns a zone's entries.
func (r *FileRegistry) ListEntries(zone string) ([]domain.PassthroughEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries, ok := r.doc.Zones[zone]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrZoneNotFound, zone)
	}
	out := make([]domain.PassthroughEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// macEqual compares two mac spellings canonically. The registry file
// is shared with the portal and operators, so entries may carry any
// spelling; malformed macs fall back to a literal compare.
func macEqual(a, b string) bool {
	ca, errA := domain.CanonicalMAC(a)
	cb, errB := domain.CanonicalMAC(b)
	if errA == nil && errB == nil {
		return ca == cb
	}
	return a == b
}

// UpsertEntry updates a zone entry in place when the mac already
// exists under any spelling, otherwise appends it.
func (r *FileRegistry) UpsertEntry(zone string, entry domain.PassthroughEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries, ok := r.doc.Zones[zone]
	if !ok {
		return fmt.Errorf("%w: %s", ErrZoneNotFound, zone)
	}
	for i := range entries {
		if macEqual(entries[i].MAC, entry.MAC) {
			entries[i] = entry
			r.dirty = true
			return nil
		}
	}
	r.doc.Zones[zone] = append(entries, entry)
	r.dirty = true
	return nil
}

// DeleteEntry removes a zone entry by mac, matching any spelling.
// Deleting an absent mac is not an error.
func (r *FileRegistry) DeleteEntry(zone, mac string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries, ok := r.doc.Zones[zone]
	if !ok {
		return fmt.Errorf("%w: %s", ErrZoneNotFound, zone)
	}
	for i := range entries {
		if macEqual(entries[i].MAC, mac) {
			r.doc.Zones[zone] = append(entries[:i], entries[i+1:]...)
			r.dirty = true
			return nil
		}
	}
	return nil
}

// Commit writes pending mutations to the registry file atomically.
func (r *FileRegistry) Commit() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.dirty {
		return nil
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp registry file: %w", err)
	}
	tmpName := tmp.Name()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r.doc); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to encode registry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp registry file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp registry file: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace registry file: %w", err)
	}
	r.dirty = false
	return nil
}

// Reload signals the enforcement agent to re-read a zone by running
// the configured reload command. With no command configured it is a
// no-op.
func (r *FileRegistry) Reload(zone string) error {
	if len(r.reloadCmd) == 0 {
		return nil
	}
	argv := make([]string, len(r.reloadCmd))
	for i, arg := range r.reloadCmd {
		argv[i] = strings.ReplaceAll(arg, "%ZONE%", zone)
	}
	out, err := exec.Command(argv[0], argv[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("registry reload command failed for zone %s: %w (output: %s)", zone, err, strings.TrimSpace(string(out)))
	}
	r.logger.Debug("reloaded zone", zap.String("zone", zone))
	return nil
}
