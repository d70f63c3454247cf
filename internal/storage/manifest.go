package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/tidwall/gjson"

	rverrors "github.com/randalmurphal/repovault/internal/errors"
)

const (
	// FormatVersion is written into every manifest.
	FormatVersion = "1.0.0"
	// SupportedFormats is the range of manifest versions this build restores.
	SupportedFormats = "^1.0.0"

	manifestFile = "manifest.json"
)

// Manifest describes one save.
type Manifest struct {
	FormatVersion string                    `json:"format_version"`
	ToolVersion   string                    `json:"tool_version,omitempty"`
	Provider      string                    `json:"provider,omitempty"`
	Repository    string                    `json:"repository,omitempty"`
	RunID         string                    `json:"run_id,omitempty"`
	CreatedAt     time.Time                 `json:"created_at"`
	UpdatedAt     time.Time                 `json:"updated_at"`
	Entities      map[string]EntityManifest `json:"entities"`
}

// EntityManifest records what was saved for one entity.
type EntityManifest struct {
	Selection string    `json:"selection"`
	Items     int       `json:"items"`
	SavedAt   time.Time `json:"saved_at"`
}

// ReadManifest loads the manifest. A missing manifest yields ErrNotFound.
func (s *Store) ReadManifest() (*Manifest, error) {
	data, err := os.ReadFile(s.Path(manifestFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("manifest: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	// Check the version before decoding so a future layout fails cleanly.
	if err := CheckFormat(gjson.GetBytes(data, "format_version").String()); err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Entities == nil {
		m.Entities = map[string]EntityManifest{}
	}
	return &m, nil
}

// WriteManifest replaces the manifest.
func (s *Store) WriteManifest(m *Manifest) error {
	if m.FormatVersion == "" {
		m.FormatVersion = FormatVersion
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return writeAtomic(s.Path(manifestFile), append(data, '\n'))
}

// RecordEntity updates the manifest entry for entity, creating the manifest
// when absent. Safe for concurrent use.
func (s *Store) RecordEntity(entity string, em EntityManifest, header Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.ReadManifest()
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		m = &header
		m.FormatVersion = FormatVersion
		if m.CreatedAt.IsZero() {
			m.CreatedAt = em.SavedAt
		}
		m.Entities = map[string]EntityManifest{}
	}
	if header.RunID != "" {
		m.RunID = header.RunID
	}
	m.UpdatedAt = em.SavedAt
	m.Entities[entity] = em
	return s.WriteManifest(m)
}

// CheckFormat fails unless version satisfies SupportedFormats.
func CheckFormat(version string) error {
	constraint, err := semver.NewConstraint(SupportedFormats)
	if err != nil {
		return fmt.Errorf("parse supported formats: %w", err)
	}
	v, err := semver.NewVersion(version)
	if err != nil || !constraint.Check(v) {
		return rverrors.ErrDataFormatIncompatible(version, SupportedFormats)
	}
	return nil
}
