package evidence

import (
	"encoding/json"
	"os"
	"time"
)

const manifestFileName = "manifest.json"

// ArtifactType names one of the four inputs hashed into a cache key.
type ArtifactType string

const (
	ArtifactModel         ArtifactType = "Model"
	ArtifactProfile       ArtifactType = "Profile"
	ArtifactConfiguration ArtifactType = "Configuration"
	ArtifactDmm           ArtifactType = "Dmm"
)

// Artifact records one hashed input to the cache key.
type Artifact struct {
	Type         ArtifactType `json:"type"`
	RelativePath string       `json:"relativePath"`
	ContentHash  string       `json:"contentHash"`
}

// ModuleSelection records the module filter in effect when the entry was
// created, per §4.3.
type ModuleSelection struct {
	IncludeSystem   bool     `json:"includeSystem"`
	IncludeInactive bool     `json:"includeInactive"`
	Count           int      `json:"count"`
	ModulesHash     string   `json:"modulesHash,omitempty"`
	Modules         []string `json:"modules,omitempty"`
}

// Manifest is the per-entry manifest.json document (spec §4.3).
type Manifest struct {
	Version            int             `json:"version"`
	Key                string          `json:"key"`
	Command            string          `json:"command"`
	CreatedAtUtc       time.Time       `json:"createdAtUtc"`
	LastValidatedAtUtc time.Time       `json:"lastValidatedAtUtc"`
	ExpiresAtUtc       *time.Time      `json:"expiresAtUtc,omitempty"`
	ModuleSelection    ModuleSelection `json:"moduleSelection"`
	Metadata           map[string]string `json:"metadata"`
	Artifacts          []Artifact      `json:"artifacts"`
}

const manifestVersion = 1

func readManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is derived from the cache root we own
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

func writeManifest(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644) // #nosec G306 - manifest is non-sensitive cache metadata
}

func entryRowFromManifest(m Manifest) entryRow {
	expires := ""
	if m.ExpiresAtUtc != nil {
		expires = m.ExpiresAtUtc.UTC().Format(time.RFC3339)
	}
	metaJSON, _ := json.Marshal(m.Metadata)
	return entryRow{
		Key:                 m.Key,
		CreatedAt:           m.CreatedAtUtc.UTC().Format(time.RFC3339),
		LastValidatedAt:     m.LastValidatedAtUtc.UTC().Format(time.RFC3339),
		ExpiresAt:           expires,
		ModuleSelectionHash: m.ModuleSelection.ModulesHash,
		MetadataJSON:        string(metaJSON),
	}
}
