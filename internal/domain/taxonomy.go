package domain

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// TechniqueTag is a label from the closed propaganda-technique vocabulary.
// Stages may only assign tags present in the loaded Taxonomy.
type TechniqueTag string

// TechniqueDef describes one technique in the taxonomy file.
type TechniqueDef struct {
	Tag         TechniqueTag `yaml:"tag" json:"tag"`
	Description string       `yaml:"description" json:"description"`
}

// Taxonomy is the versioned, closed technique vocabulary loaded at startup.
// The core consumes it only as a set of valid tag values; its lifecycle
// (authoring, versioning) is owned elsewhere.
type Taxonomy struct {
	Version    string         `yaml:"version" json:"version"`
	Techniques []TechniqueDef `yaml:"techniques" json:"techniques"`

	tags map[TechniqueTag]struct{}
}

//go:embed taxonomy.yaml
var defaultTaxonomyYAML []byte

// LoadTaxonomy parses a taxonomy from YAML and indexes its tags.
func LoadTaxonomy(data []byte) (*Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}
	if t.Version == "" {
		return nil, fmt.Errorf("taxonomy has no version")
	}
	if len(t.Techniques) == 0 {
		return nil, fmt.Errorf("taxonomy %s defines no techniques", t.Version)
	}
	t.tags = make(map[TechniqueTag]struct{}, len(t.Techniques))
	for _, def := range t.Techniques {
		if def.Tag == "" {
			return nil, fmt.Errorf("taxonomy %s contains an empty tag", t.Version)
		}
		if _, dup := t.tags[def.Tag]; dup {
			return nil, fmt.Errorf("taxonomy %s contains duplicate tag %q", t.Version, def.Tag)
		}
		t.tags[def.Tag] = struct{}{}
	}
	return &t, nil
}

// DefaultTaxonomy loads the taxonomy embedded in the binary.
func DefaultTaxonomy() *Taxonomy {
	t, err := LoadTaxonomy(defaultTaxonomyYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded taxonomy is invalid: %v", err))
	}
	return t
}

// Valid reports whether the tag belongs to the taxonomy.
func (t *Taxonomy) Valid(tag TechniqueTag) bool {
	_, ok := t.tags[tag]
	return ok
}

// Tags returns the tags in file order.
func (t *Taxonomy) Tags() []TechniqueTag {
	tags := make([]TechniqueTag, 0, len(t.Techniques))
	for _, def := range t.Techniques {
		tags = append(tags, def.Tag)
	}
	return tags
}
