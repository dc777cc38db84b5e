// Package registry looks up plaintext certificate records by ID.
//
// The registry is independent of the token codec: it answers "was this
// certificate ID ever issued" from a list loaded from a JSON or YAML
// file, optionally backed by the SQLite store.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/adamscao/certlink/internal/models"
)

// ErrNotFound is returned when no entry matches the requested ID.
var ErrNotFound = errors.New("no matching certificate in the registry")

// Lookup returns the first entry whose id or certificateId equals id,
// compared case-insensitively after trimming.
func Lookup(entries []models.Certificate, id string) (*models.Certificate, error) {
	for i := range entries {
		if entries[i].Matches(id) {
			match := entries[i]
			return &match, nil
		}
	}
	return nil, ErrNotFound
}

// Registry is an immutable, in-memory list of entries.
type Registry struct {
	entries []models.Certificate
}

// New returns a registry over a copy of entries
func New(entries []models.Certificate) *Registry {
	copied := make([]models.Certificate, len(entries))
	copy(copied, entries)
	return &Registry{entries: copied}
}

// Lookup finds id in the registry
func (r *Registry) Lookup(id string) (*models.Certificate, error) {
	if r == nil {
		return nil, ErrNotFound
	}
	return Lookup(r.entries, id)
}

// Entries returns a copy of the registry contents
func (r *Registry) Entries() []models.Certificate {
	if r == nil {
		return nil
	}
	copied := make([]models.Certificate, len(r.entries))
	copy(copied, r.entries)
	return copied
}

// Len returns the number of entries
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// LoadFile reads a registry from a .json, .yaml or .yml file
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file: %w", err)
	}

	entries, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry file %s: %w", path, err)
	}

	return New(entries), nil
}

// Parse decodes a list of entries; ext selects the format and defaults
// to JSON
func Parse(data []byte, ext string) ([]models.Certificate, error) {
	var entries []models.Certificate

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, err
		}
	}

	return entries, nil
}
