// Package manifest loads component declarations from YAML files so a
// component can be listed as an MCP tool before any plugin provides a
// handler for it.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"deskos/component"
	"deskos/plugin"
)

// ErrInvalid wraps every decode or validation failure.
var ErrInvalid = errors.New("invalid manifest")

// PluginInfo names the plugin a manifest belongs to. It is optional.
type PluginInfo struct {
	ID              string `yaml:"id"`
	plugin.Manifest `yaml:",inline"`
}

// Manifest is one YAML file.
//
//	plugin:
//	  id: calculator
//	  name: Calculator
//	  version: 1.0.0
//	components:
//	  - id: calculator
//	    type: app
//	    name: Calculator
//	    actions:
//	      - id: add
//	        parameters:
//	          - {name: a, type: number, required: true}
type Manifest struct {
	Path       string                `yaml:"-"`
	Plugin     *PluginInfo           `yaml:"plugin,omitempty"`
	Components []component.Component `yaml:"components"`
}

// ComponentIDs lists the declared component ids in file order.
func (m *Manifest) ComponentIDs() []string {
	ids := make([]string, 0, len(m.Components))
	for _, c := range m.Components {
		ids = append(ids, c.ID)
	}
	return ids
}

// Decode parses and validates a manifest. Unknown keys are rejected so a
// misspelt field does not silently drop an action.
func Decode(r io.Reader) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalid)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if m.Plugin != nil && m.Plugin.ID == "" {
		return nil, fmt.Errorf("%w: plugin.id is required", ErrInvalid)
	}
	if len(m.Components) == 0 {
		return nil, fmt.Errorf("%w: no components declared", ErrInvalid)
	}

	seen := make(map[string]bool, len(m.Components))
	for i, c := range m.Components {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("%w: components[%d]: %v", ErrInvalid, i, err)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("%w: component %q declared twice", ErrInvalid, c.ID)
		}
		seen[c.ID] = true
	}
	return &m, nil
}

// Load reads a single manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	m.Path = path
	return m, nil
}

// IsManifestFile reports whether path looks like a manifest by extension.
func IsManifestFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// LoadDir loads every manifest directly inside dir, sorted by file name.
// A missing dir yields no manifests. Files that fail to load are skipped
// and their errors joined into the returned error.
func LoadDir(dir string) ([]*Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var (
		out  []*Manifest
		errs []error
	)
	for _, e := range entries {
		if e.IsDir() || !IsManifestFile(e.Name()) {
			continue
		}
		m, err := Load(filepath.Join(dir, e.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, m)
	}
	return out, errors.Join(errs...)
}
