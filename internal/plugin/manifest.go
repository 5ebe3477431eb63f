package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ManifestFile is the file name looked up inside every plugin directory.
const ManifestFile = "manifest.json"

// ErrInvalidManifest is returned for manifests missing required fields.
var ErrInvalidManifest = errors.New("invalid manifest")

// Manifest is the metadata file shipped with every plugin directory.
type Manifest struct {
	// Name is the human facing integration name.
	Name string `json:"name"`
	// Domain selects the component implementing the integration.
	Domain string `json:"domain"`
}

// Validate checks that both fields are present.
func (m Manifest) Validate() error {
	switch {
	case strings.TrimSpace(m.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidManifest)
	case strings.TrimSpace(m.Domain) == "":
		return fmt.Errorf("%w: domain is required", ErrInvalidManifest)
	}
	return nil
}

// ReadManifest loads and validates the manifest at path.
func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalidManifest, path, err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}
