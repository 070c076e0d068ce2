package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tolosaweb/agenda/backend/internal/source"
)

// SourceSet is one named group of sources aggregated and cached together.
type SourceSet struct {
	Name    string
	TTL     time.Duration
	Sources []source.Descriptor
}

// Catalogue is the YAML file listing every source set. Credentials never
// appear in it; descriptors reference environment variables instead.
type Catalogue struct {
	Sets []SourceSet `yaml:"sets"`
}

// UnmarshalYAML decodes a set, parsing its ttl as a Go duration string.
func (s *SourceSet) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Name    string              `yaml:"name"`
		TTL     string              `yaml:"ttl"`
		Sources []source.Descriptor `yaml:"sources"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	s.Name = raw.Name
	s.Sources = raw.Sources

	if raw.TTL != "" {
		ttl, err := time.ParseDuration(raw.TTL)
		if err != nil {
			return fmt.Errorf("set %q: invalid ttl %q: %w", raw.Name, raw.TTL, err)
		}
		s.TTL = ttl
	}
	return nil
}

// LoadCatalogue reads and validates the source catalogue file.
func LoadCatalogue(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalogue: %w", err)
	}

	var cat Catalogue
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalogue: %w", err)
	}

	if len(cat.Sets) == 0 {
		return nil, fmt.Errorf("catalogue %s defines no source sets", path)
	}

	names := make(map[string]struct{}, len(cat.Sets))
	for _, set := range cat.Sets {
		if set.Name == "" {
			return nil, fmt.Errorf("catalogue: every set needs a name")
		}
		if _, dup := names[set.Name]; dup {
			return nil, fmt.Errorf("catalogue: duplicate set %q", set.Name)
		}
		names[set.Name] = struct{}{}

		if len(set.Sources) == 0 {
			return nil, fmt.Errorf("set %q defines no sources", set.Name)
		}
		for _, d := range set.Sources {
			if d.Name == "" || d.Kind == "" || d.Endpoint == "" {
				return nil, fmt.Errorf("set %q: every source needs name, kind, and endpoint", set.Name)
			}
		}
	}

	return &cat, nil
}

// Set returns the named source set.
func (c *Catalogue) Set(name string) (SourceSet, bool) {
	for _, set := range c.Sets {
		if set.Name == name {
			return set, true
		}
	}
	return SourceSet{}, false
}
