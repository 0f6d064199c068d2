// Package productdb maintains the persistent mapping from product IDs
// to the repository IDs that provide them.
package productdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/enterstudio/subscription-manager/internal/utils/logger"
	"github.com/enterstudio/subscription-manager/internal/utils/slice"
)

var log = logger.Logger()

// ErrCorruptDatabase reports a database file that exists but does not
// parse as the expected JSON object.
var ErrCorruptDatabase = errors.New("product database is corrupt")

// ProductDb is the product ID to repository ID mapping backed by a JSON
// file. The zero value is not usable; call New.
type ProductDb struct {
	Path    string
	entries map[string][]string
}

// New returns an empty database bound to path.
func New(path string) *ProductDb {
	return &ProductDb{
		Path:    path,
		entries: make(map[string][]string),
	}
}

// Load reads the database file. A missing file leaves the database
// empty, which is the normal first-run state.
func (db *ProductDb) Load() error {
	data, err := os.ReadFile(db.Path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debugf("Product database %s not found, starting empty", db.Path)
			return nil
		}
		log.Errorf("Failed to read product database %s: %v", db.Path, err)
		return fmt.Errorf("reading product database %s: %w", db.Path, err)
	}

	entries := make(map[string][]string)
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Errorf("Product database %s does not parse: %v", db.Path, err)
		return fmt.Errorf("%w: %s: %v", ErrCorruptDatabase, db.Path, err)
	}

	db.entries = entries
	log.Debugf("Loaded product database %s with %d products", db.Path, len(entries))
	return nil
}

// AddRepoID records that repoID provides productID. Repeated adds are
// idempotent and the repo ID list stays sorted.
func (db *ProductDb) AddRepoID(productID, repoID string) {
	if slice.Contains(db.entries[productID], repoID) {
		return
	}
	repoIDs := append(db.entries[productID], repoID)
	sort.Strings(repoIDs)
	db.entries[productID] = repoIDs
}

// HasProductID reports whether productID is present.
func (db *ProductDb) HasProductID(productID string) bool {
	_, ok := db.entries[productID]
	return ok
}

// RepoIDs returns the repository IDs recorded for productID.
func (db *ProductDb) RepoIDs(productID string) []string {
	return append([]string(nil), db.entries[productID]...)
}

// ProductIDs returns all recorded product IDs in sorted order.
func (db *ProductDb) ProductIDs() []string {
	ids := make([]string, 0, len(db.entries))
	for id := range db.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// isNumericStem reports whether s is a non-empty run of ASCII digits.
func isNumericStem(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// OrphanedCertIDs scans certDir for installed product certificates whose
// product ID is no longer in the database. Only files named
// <digits>.pem are considered; anything else in the directory is left
// alone.
func (db *ProductDb) OrphanedCertIDs(certDir string) ([]string, error) {
	dirEntries, err := os.ReadDir(certDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		log.Errorf("Failed to scan certificate directory %s: %v", certDir, err)
		return nil, fmt.Errorf("scanning certificate directory %s: %w", certDir, err)
	}

	var orphans []string
	for _, entry := range dirEntries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if filepath.Ext(name) != ".pem" {
			continue
		}
		stem := strings.TrimSuffix(name, ".pem")
		if !isNumericStem(stem) {
			continue
		}
		if !db.HasProductID(stem) {
			orphans = append(orphans, stem)
		}
	}
	sort.Strings(orphans)
	return orphans, nil
}

// Write persists the database atomically: the JSON document is written
// to a temp file in the same directory and renamed over the target.
func (db *ProductDb) Write() error {
	dir := filepath.Dir(db.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Errorf("Failed to create product database directory %s: %v", dir, err)
		return fmt.Errorf("creating product database directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(db.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding product database: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(db.Path)+".*")
	if err != nil {
		log.Errorf("Failed to create temp file for product database: %v", err)
		return fmt.Errorf("creating temp file for product database: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing product database: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing product database temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("setting product database permissions: %w", err)
	}

	if err := os.Rename(tmpPath, db.Path); err != nil {
		os.Remove(tmpPath)
		log.Errorf("Failed to replace product database %s: %v", db.Path, err)
		return fmt.Errorf("replacing product database %s: %w", db.Path, err)
	}

	log.Debugf("Wrote product database %s with %d products", db.Path, len(db.entries))
	return nil
}
