package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Loader parses stack manifests from CUE or YAML files.
type Loader struct {
	validate *validator.Validate
}

// NewLoader creates a manifest loader.
func NewLoader() *Loader {
	return &Loader{validate: validator.New()}
}

// Load reads, parses, and validates the manifest at path. The parser is
// chosen from the extension: .cue, or .yaml/.yml.
func (l *Loader) Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m *Manifest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		m, err = l.parseCUE(data, path)
	case ".yaml", ".yml":
		m, err = l.parseYAML(data)
	default:
		return nil, fmt.Errorf("unsupported manifest format: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	m.applyDefaults()
	if err := l.Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

// parseCUE compiles the CUE source and decodes it through JSON so custom
// unmarshalers (duration strings) apply.
func (l *Loader) parseCUE(data []byte, filename string) (*Manifest, error) {
	ctx := cuecontext.New()
	val := ctx.CompileBytes(data)
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("cue compile failed: %s", cueerrors.Details(err, nil))
	}
	if err := val.Validate(); err != nil {
		return nil, fmt.Errorf("cue validation failed in %s: %s", filename, cueerrors.Details(err, nil))
	}

	encoded, err := val.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("cue export failed: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(encoded, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return &m, nil
}

func (l *Loader) parseYAML(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return &m, nil
}

// Validate checks struct tags plus the semantic constraints the tag
// language cannot express.
func (l *Loader) Validate(m *Manifest) error {
	if err := l.validate.Struct(m); err != nil {
		return fmt.Errorf("manifest validation failed: %w", err)
	}

	if ttl := time.Duration(m.Signing.TTL); ttl < 0 {
		return fmt.Errorf("signing ttl must not be negative")
	} else if ttl > MaxSigningTTL {
		return fmt.Errorf("signing ttl %s exceeds maximum %s", ttl, MaxSigningTTL)
	}

	if len(m.Endpoint.Command) == 1 && strings.TrimSpace(m.Endpoint.Command[0]) == "" {
		return fmt.Errorf("endpoint command must not be blank")
	}

	if m.Site.RewriteScript != "" {
		if _, err := os.Stat(m.Site.RewriteScript); err != nil {
			return fmt.Errorf("rewrite script %s: %w", m.Site.RewriteScript, err)
		}
	}

	return nil
}
