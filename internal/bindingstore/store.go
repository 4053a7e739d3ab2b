// Package bindingstore persists the engine's only owned state: the
// binding document holding managed bindings and voucher usage records.
// Every read and read-modify-write reloads the file under an exclusive
// lock and replaces it atomically (write to temp, then rename), so
// concurrent admissions and revocations never interleave partial
// writes and a crash mid-write leaves the prior document intact.
package bindingstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jbweber/homelab/warden/internal/domain"
	"go.uber.org/zap"
)

// DocumentVersion is the current on-disk schema version.
const DocumentVersion = 1

// Document is the persisted store layout. Map keys are the composite
// "<zone>|<mac>" and "<zone>|<voucher_hash>" forms.
type Document struct {
	Version      int                            `json:"version"`
	UpdatedAt    time.Time                      `json:"updated_at"`
	Bindings     map[string]domain.Binding      `json:"bindings"`
	VoucherUsage map[string]domain.VoucherUsage `json:"voucher_usage"`
}

// NewDocument returns an empty document at the current version.
func NewDocument() *Document {
	return &Document{
		Version:      DocumentVersion,
		Bindings:     map[string]domain.Binding{},
		VoucherUsage: map[string]domain.VoucherUsage{},
	}
}

// Store provides lock-guarded access to the binding document.
type Store struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

// New creates a store backed by the file at path. The file is created
// lazily on first write; a missing file reads as an empty document.
func New(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the current document. Safe for concurrent use.
func (s *Store) Load() (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Update runs fn against the current document under the exclusive lock
// and, if fn succeeds, replaces the file atomically.
func (s *Store) Update(fn func(doc *Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	doc.Version = DocumentVersion
	doc.UpdatedAt = time.Now().UTC()
	return s.write(doc)
}

// load reads and decodes the document. A corrupt file is backed up and
// replaced by an empty document rather than failing every later call.
func (s *Store) load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read binding store: %w", err)
	}

	doc := NewDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		backup := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
		if renameErr := os.Rename(s.path, backup); renameErr != nil {
			return nil, fmt.Errorf("failed to quarantine corrupt binding store: %w", renameErr)
		}
		s.logger.Warn("binding store was corrupt, starting from an empty document",
			zap.String("path", s.path),
			zap.String("backup", backup),
			zap.Error(err))
		return NewDocument(), nil
	}
	if doc.Bindings == nil {
		doc.Bindings = map[string]domain.Binding{}
	}
	if doc.VoucherUsage == nil {
		doc.VoucherUsage = map[string]domain.VoucherUsage{}
	}
	return doc, nil
}

// write encodes the document to a temp file in the same directory and
// renames it over the store path.
func (s *Store) write(doc *Document) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp store file: %w", err)
	}
	tmpName := tmp.Name()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to encode binding store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync binding store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp store file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace binding store: %w", err)
	}
	return nil
}
