package signals

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	cberrors "crossbridge/internal/errors"
)

// Manifest is a file an adapter hands over instead of calling Register
// directly. Entries are registered in file order.
//
//	framework: behave
//	signals:
//	  - pattern: user logs in
//	    type: CODE_PATH
//	    value: pages/login_page.py::LoginPage.login
type Manifest struct {
	Framework string          `json:"framework,omitempty" yaml:"framework,omitempty" toml:"framework,omitempty"`
	Signals   []ManifestEntry `json:"signals" yaml:"signals" toml:"signals"`
}

// ManifestEntry is one registration in a manifest
type ManifestEntry struct {
	Pattern  string         `json:"pattern" yaml:"pattern" toml:"pattern"`
	Type     string         `json:"type" yaml:"type" toml:"type"`
	Value    string         `json:"value" yaml:"value" toml:"value"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty" toml:"metadata,omitempty"`
}

// ManifestFormat is the encoding of a manifest file
type ManifestFormat string

const (
	FormatYAML ManifestFormat = "yaml"
	FormatTOML ManifestFormat = "toml"
	FormatJSON ManifestFormat = "json"
)

// FormatFromPath picks the format from a file extension
func FormatFromPath(path string) (ManifestFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported manifest extension %q", filepath.Ext(path))
}

// ParseManifest decodes data and checks every entry. Nothing is registered
// here, so a bad entry anywhere rejects the whole manifest.
func ParseManifest(data []byte, format ManifestFormat) (*Manifest, error) {
	var m Manifest
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &m)
	case FormatTOML:
		err = toml.Unmarshal(data, &m)
	case FormatJSON:
		err = json.Unmarshal(data, &m)
	default:
		return nil, fmt.Errorf("unsupported manifest format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s manifest: %w", format, err)
	}

	for i, e := range m.Signals {
		if _, err := ParseSignalType(e.Type); err != nil {
			return nil, cberrors.NewValidationError("manifest entry %d (%q): %v", i, e.Pattern, err)
		}
		if e.Value == "" {
			return nil, cberrors.NewValidationError("manifest entry %d (%q): empty value", i, e.Pattern)
		}
	}
	return &m, nil
}

// LoadManifest reads and parses a manifest file
func LoadManifest(path string) (*Manifest, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := ParseManifest(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// RegisterManifest registers the entries of m into r and returns how many
// were registered. Entries with an unknown type are skipped; ParseManifest
// rejects those up front. The manifest framework is added to entry metadata
// unless the entry sets one.
func RegisterManifest(r *Registry, m *Manifest) int {
	n := 0
	for _, e := range m.Signals {
		t, err := ParseSignalType(e.Type)
		if err != nil {
			continue
		}
		md := e.Metadata
		if m.Framework != "" {
			if _, ok := md["framework"]; !ok {
				md = cloneMetadata(md)
				if md == nil {
					md = make(map[string]any, 1)
				}
				md["framework"] = m.Framework
			}
		}
		r.Register(e.Pattern, NewStepSignal(t, e.Value, md))
		n++
	}
	return n
}
