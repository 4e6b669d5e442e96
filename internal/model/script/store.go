package script

import (
	"fmt"
	"os"

	"github.com/jinzhu/copier"
	"gopkg.in/yaml.v3"
)

// Store exposes script retrieval for handlers and the session registry.
type Store interface {
	List() []Script
	FindByID(id string) (Script, bool)
}

// MemoryStore implements Store with an in-memory slice. Callers receive deep
// copies, so a script handed to a session can never change underneath it.
type MemoryStore struct {
	items []Script
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied scripts.
func NewMemoryStore(items []Script) *MemoryStore {
	normalized := make([]Script, 0, len(items))
	for _, item := range items {
		normalized = append(normalized, Normalize(item))
	}
	return &MemoryStore{items: normalized}
}

// List returns every script.
func (s *MemoryStore) List() []Script {
	out := make([]Script, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, clone(item))
	}
	return out
}

// FindByID looks up a script by identifier.
func (s *MemoryStore) FindByID(id string) (Script, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return clone(item), true
		}
	}
	return Script{}, false
}

func clone(src Script) Script {
	var dst Script
	if err := copier.CopyWithOption(&dst, &src, copier.Option{DeepCopy: true}); err != nil {
		// copier only fails on mismatched kinds, which cannot happen for identical types
		return src
	}
	return dst
}

type scriptFile struct {
	Scripts []Script `yaml:"scripts"`
}

// LoadFile reads scripts from a YAML document of the form `scripts: [...]`.
func LoadFile(path string) ([]Script, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scripts file: %w", err)
	}

	var doc scriptFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse scripts file %s: %w", path, err)
	}

	scripts := make([]Script, 0, len(doc.Scripts))
	for _, sc := range doc.Scripts {
		sc = Normalize(sc)
		if err := sc.Validate(); err != nil {
			return nil, fmt.Errorf("scripts file %s: %w", path, err)
		}
		scripts = append(scripts, sc)
	}
	return scripts, nil
}
