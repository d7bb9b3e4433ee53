// Package plugin discovers, vets, and loads handler plugins. A plugin is a
// directory containing a manifest.yaml, its Go source, and a built shared
// object. Source is statically scanned before the object is opened; anything
// scoring high risk is refused.
package plugin

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Manifest describes one plugin.
type Manifest struct {
	Name        string   `yaml:"name" json:"name"`
	Version     string   `yaml:"version" json:"version"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Author      string   `yaml:"author,omitempty" json:"author,omitempty"`
	Entry       string   `yaml:"entry" json:"entry"`
	Handles     []string `yaml:"handles" json:"handles"`
	Priority    int      `yaml:"priority,omitempty" json:"priority,omitempty"`
}

const manifestSchema = `{
  "type": "object",
  "required": ["name", "version", "entry", "handles"],
  "properties": {
    "name":        {"type": "string", "pattern": "^[a-z][a-z0-9_-]*$"},
    "version":     {"type": "string", "pattern": "^[0-9]+\\.[0-9]+\\.[0-9]+"},
    "description": {"type": "string"},
    "author":      {"type": "string"},
    "entry":       {"type": "string", "pattern": "\\.so$"},
    "handles":     {"type": "array", "minItems": 1, "items": {"type": "string"}},
    "priority":    {"type": "integer", "minimum": 0, "maximum": 1000}
  },
  "additionalProperties": false
}`

// LoadManifest reads and validates manifest.yaml from a plugin directory.
func LoadManifest(dir string) (*Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "manifest.yaml"))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := validateManifest(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

func validateManifest(m *Manifest) error {
	doc, err := json.Marshal(m)
	if err != nil {
		return err
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(manifestSchema),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("validate manifest: %w", err)
	}
	if !result.Valid() {
		errs := result.Errors()
		if len(errs) > 0 {
			return fmt.Errorf("invalid manifest: %s", errs[0])
		}
		return fmt.Errorf("invalid manifest")
	}
	return nil
}
