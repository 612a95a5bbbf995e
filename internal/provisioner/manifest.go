package provisioner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ManifestFile is the project manifest read by Node package managers
const ManifestFile = "package.json"

// Manifest holds the dependency sections of package.json
type Manifest struct {
	Name             string            `json:"name"`
	Scripts          map[string]string `json:"scripts"`
	Dependencies     map[string]string `json:"dependencies"`
	DevDependencies  map[string]string `json:"devDependencies"`
	PeerDependencies map[string]string `json:"peerDependencies"`
	Engines          map[string]string `json:"engines,omitempty"`
	Workspaces       json.RawMessage   `json:"workspaces,omitempty"`
	ManagerSpec      string            `json:"packageManager,omitempty"`
}

// ReadManifest reads package.json from dir
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ManifestFile, err)
	}
	return &m, nil
}

// AllDependencies returns the union of dependencies, devDependencies and
// peerDependencies.
func (m *Manifest) AllDependencies() map[string]string {
	all := make(map[string]string, len(m.Dependencies)+len(m.DevDependencies)+len(m.PeerDependencies))
	for _, section := range []map[string]string{m.PeerDependencies, m.DevDependencies, m.Dependencies} {
		for k, v := range section {
			all[k] = v
		}
	}
	return all
}

// Has reports whether pkg is already declared. For a scoped package any
// declared package sharing the scope counts.
func (m *Manifest) Has(pkg string) bool {
	if m == nil || pkg == "" {
		return false
	}

	all := m.AllDependencies()
	if _, ok := all[pkg]; ok {
		return true
	}

	if strings.HasPrefix(pkg, "@") {
		scope := strings.SplitN(pkg, "/", 2)[0] + "/"
		for name := range all {
			if strings.HasPrefix(name, scope) {
				return true
			}
		}
	}
	return false
}
