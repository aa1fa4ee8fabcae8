// Package sekaiversion loads, persists, and compares the per-region version
// manifest (app/data/asset/CDN versions and the app hash).
package sekaiversion

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/apperror"
)

// Manifest is the persisted version state for one region.
type Manifest struct {
	AppVersion   string `json:"appVersion"`
	AppHash      string `json:"appHash"`
	DataVersion  string `json:"dataVersion"`
	AssetVersion string `json:"assetVersion"`
	AssetHash    string `json:"assetHash"`
	CdnVersion   string `json:"cdnVersion"`
}

// Store holds the last-loaded manifest for a region under a mutex for cheap
// concurrent reads, backed by a JSON file on disk.
type Store struct {
	path string

	mu sync.RWMutex
	m  Manifest
}

// Load reads the manifest file at path, defaulting every field to its zero
// value if the file doesn't exist.
func Load(path string) (*Store, error) {
	s := &Store{path: path}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, apperror.New(apperror.KindIoError, "read version manifest: %v", err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, apperror.New(apperror.KindParseError, "parse version manifest: %v", err)
	}
	s.m = m
	return s, nil
}

// Get returns a copy of the currently loaded manifest.
func (s *Store) Get() Manifest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m
}

// Set replaces the in-memory manifest without writing to disk.
func (s *Store) Set(m Manifest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = m
}

// Reload re-reads the manifest file from disk, picking up changes written by
// another process (such as the master/app-hash sync tasks). A missing file
// is treated as a no-op, leaving the in-memory manifest unchanged.
func (s *Store) Reload() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apperror.New(apperror.KindIoError, "reload version manifest: %v", err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return apperror.New(apperror.KindParseError, "reload version manifest: %v", err)
	}
	s.Set(m)
	return nil
}

// Save writes the current manifest to the backing file, pretty-printed.
func (s *Store) Save() error {
	s.mu.RLock()
	m := s.m
	s.mu.RUnlock()
	return writeManifest(s.path, m)
}

// SaveAs writes m both to the backing file and to the given snapshot path
// (used for the per-dataVersion snapshot written after a master sync).
func (s *Store) SaveAs(m Manifest, snapshotPath string) error {
	s.Set(m)
	if err := writeManifest(s.path, m); err != nil {
		return err
	}
	if snapshotPath != "" {
		if err := writeManifest(snapshotPath, m); err != nil {
			return err
		}
	}
	return nil
}

func writeManifest(path string, m Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return apperror.New(apperror.KindParseError, "marshal version manifest: %v", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return apperror.New(apperror.KindIoError, "write version manifest: %v", err)
	}
	return nil
}

// CompareVersion reports whether a is strictly greater than b, comparing
// dot-separated unsigned segments left to right, zero-padding the shorter
// side with implicit zero segments.
func CompareVersion(a, b string) bool {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		var av, bv uint64
		if i < len(as) {
			av, _ = strconv.ParseUint(as[i], 10, 64)
		}
		if i < len(bs) {
			bv, _ = strconv.ParseUint(bs[i], 10, 64)
		}
		if av != bv {
			return av > bv
		}
	}
	return false
}
