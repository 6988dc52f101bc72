package present

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/wildfire-cli/internal/model"
)

// DefaultManifest is the map project file name.
const DefaultManifest = "map.yaml"

// Project is the YAML map project a Manifest maintains.
type Project struct {
	Name      string        `yaml:"name"`
	UpdatedAt time.Time     `yaml:"updated_at"`
	Layers    []model.Layer `yaml:"layers"`
}

// Layer returns the named layer, or nil.
func (p *Project) Layer(name string) *model.Layer {
	for i := range p.Layers {
		if p.Layers[i].Name == name {
			return &p.Layers[i]
		}
	}
	return nil
}

// Manifest is a Presenter that appends layers to a YAML map project on disk.
// A layer whose name is already present replaces it in place, so reruns
// never duplicate entries.
type Manifest struct {
	mu   sync.Mutex
	path string
	name string
}

// NewManifest creates a Manifest writing to path. name titles a new project.
func NewManifest(path, name string) *Manifest {
	if name == "" {
		name = "wildfire"
	}
	return &Manifest{path: path, name: name}
}

// Path returns the manifest file path.
func (m *Manifest) Path() string { return m.path }

// AddLayer implements Presenter.
func (m *Manifest) AddLayer(_ context.Context, l model.Layer) error {
	if l.Name == "" {
		return eris.New("present: layer has no name")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	proj, err := LoadProject(m.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if proj == nil {
		proj = &Project{Name: m.name}
	}

	if existing := proj.Layer(l.Name); existing != nil {
		*existing = l
	} else {
		proj.Layers = append(proj.Layers, l)
	}
	proj.UpdatedAt = time.Now().UTC()

	return writeProject(m.path, proj)
}

// LoadProject reads a map project. A missing file yields an error wrapping
// os.ErrNotExist.
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "present: read manifest %s", path)
	}
	var proj Project
	if err := yaml.Unmarshal(data, &proj); err != nil {
		return nil, eris.Wrapf(err, "present: parse manifest %s", path)
	}
	return &proj, nil
}

func writeProject(path string, proj *Project) error {
	data, err := yaml.Marshal(proj)
	if err != nil {
		return eris.Wrap(err, "present: encode manifest")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "present: create dir for %s", path)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrapf(err, "present: write manifest %s", path)
	}
	return eris.Wrapf(os.Rename(tmp, path), "present: replace manifest %s", path)
}
