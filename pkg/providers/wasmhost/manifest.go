package wasmhost

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Manifest describes a platform plugin: where its WASM module lives and how
// to verify it.
type Manifest struct {
	// Name is the plugin name (e.g. "azure", "sim-wasm").
	Name string `yaml:"name"`

	// Version is the plugin version.
	Version string `yaml:"version"`

	// Description is a human-readable summary.
	Description string `yaml:"description,omitempty"`

	// Module is the path to the WASM module, relative to the manifest file.
	Module string `yaml:"module"`

	// Checksum is the expected hex SHA-256 of the module. Empty skips
	// verification.
	Checksum string `yaml:"checksum,omitempty"`

	// path is where the manifest was loaded from.
	path string
}

// LoadManifest reads and validates a plugin manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("manifest %s: name is required", path)
	}
	if m.Module == "" {
		return nil, fmt.Errorf("manifest %s: module is required", path)
	}
	m.path = path
	return &m, nil
}

// ModulePath resolves the module location against the manifest directory.
func (m *Manifest) ModulePath() string {
	if filepath.IsAbs(m.Module) || m.path == "" {
		return m.Module
	}
	return filepath.Join(filepath.Dir(m.path), m.Module)
}

// LoadModule reads the WASM module and verifies its checksum.
func (m *Manifest) LoadModule() ([]byte, error) {
	data, err := os.ReadFile(m.ModulePath())
	if err != nil {
		return nil, fmt.Errorf("failed to read module: %w", err)
	}

	if m.Checksum != "" {
		sum := sha256.Sum256(data)
		got := hex.EncodeToString(sum[:])
		if got != m.Checksum {
			return nil, fmt.Errorf("module checksum mismatch: manifest says %s, module is %s", m.Checksum, got)
		}
	}

	return data, nil
}

// DiscoverManifests finds plugin manifests (*.yaml, *.yml) under dir.
func DiscoverManifests(dir string) ([]*Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin dir: %w", err)
	}

	var manifests []*Manifest
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		m, err := LoadManifest(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}
