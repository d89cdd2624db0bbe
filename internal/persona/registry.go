package persona

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"galgame-server/internal/models"
)

// Registry looks up registered personas.
type Registry interface {
	// Default returns the current default persona, or nil when none is selected.
	Default(ctx context.Context) (*models.Persona, error)
	// Get returns models.ErrPersonaNotFound when id is not registered.
	Get(ctx context.Context, id string) (*models.Persona, error)
}

type registryFile struct {
	Default  string           `yaml:"default"`
	Personas []models.Persona `yaml:"personas"`
}

// FileRegistry is a Registry loaded from a YAML file at startup.
type FileRegistry struct {
	mu        sync.RWMutex
	defaultID string
	personas  map[string]models.Persona
	order     []string
}

var _ Registry = (*FileRegistry)(nil)

// NewFileRegistry builds a registry from already parsed personas.
func NewFileRegistry(defaultID string, personas []models.Persona) (*FileRegistry, error) {
	r := &FileRegistry{
		defaultID: defaultID,
		personas:  make(map[string]models.Persona, len(personas)),
	}
	for _, p := range personas {
		if p.ID == "" {
			return nil, fmt.Errorf("persona without id (name '%s')", p.Name)
		}
		if p.ID == models.NoPersonaID {
			return nil, fmt.Errorf("persona id '%s' is reserved", p.ID)
		}
		if _, dup := r.personas[p.ID]; dup {
			return nil, fmt.Errorf("duplicate persona id '%s'", p.ID)
		}
		r.personas[p.ID] = p
		r.order = append(r.order, p.ID)
	}
	if defaultID != "" {
		if _, ok := r.personas[defaultID]; !ok {
			return nil, fmt.Errorf("default persona '%s' is not defined", defaultID)
		}
	}
	return r, nil
}

// LoadRegistry reads a YAML persona file. An empty path yields an empty registry.
func LoadRegistry(path string, logger *zap.Logger) (*FileRegistry, error) {
	if path == "" {
		logger.Info("No personas file configured, using generic instructions only")
		return NewFileRegistry("", nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read personas file %s: %w", path, err)
	}
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse personas file %s: %w", path, err)
	}
	r, err := NewFileRegistry(f.Default, f.Personas)
	if err != nil {
		return nil, fmt.Errorf("invalid personas file %s: %w", path, err)
	}
	logger.Info("Personas loaded", zap.String("path", path), zap.Int("count", len(f.Personas)), zap.String("default", f.Default))
	return r, nil
}

func (r *FileRegistry) Default(_ context.Context) (*models.Persona, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.defaultID == "" {
		return nil, nil
	}
	p := r.personas[r.defaultID]
	return &p, nil
}

func (r *FileRegistry) Get(_ context.Context, id string) (*models.Persona, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.personas[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrPersonaNotFound, id)
	}
	return &p, nil
}

// List returns the registered personas in file order.
func (r *FileRegistry) List() []models.Persona {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Persona, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.personas[id])
	}
	return out
}
