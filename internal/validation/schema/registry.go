// Package schema holds the process-wide mapping from record data type to the
// fields a record of that type must and may carry. A Registry is read-only
// once built and safe to share across concurrent validations.
package schema

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFallbackType is used when a submission names an unknown data type.
const DefaultFallbackType = "lead"

var (
	ErrEmptyRegistry   = errors.New("schema registry has no definitions")
	ErrUnknownFallback = errors.New("fallback type is not defined")
)

// Definition lists the required and optional fields of one data type.
type Definition struct {
	Type     string   `yaml:"-"`
	Required []string `yaml:"required"`
	Optional []string `yaml:"optional"`
}

// IsRequired reports whether field must be present.
func (d Definition) IsRequired(field string) bool {
	for _, f := range d.Required {
		if f == field {
			return true
		}
	}
	return false
}

func (d Definition) validate() error {
	required := make(map[string]struct{}, len(d.Required))
	for _, f := range d.Required {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("schema %q: blank required field name", d.Type)
		}
		required[f] = struct{}{}
	}
	for _, f := range d.Optional {
		if _, dup := required[f]; dup {
			return fmt.Errorf("schema %q: field %q is both required and optional", d.Type, f)
		}
	}
	return nil
}

// Registry resolves data types to definitions.
type Registry struct {
	definitions map[string]Definition
	fallback    string
}

// New builds a registry and enforces that required and optional sets are disjoint.
func New(definitions map[string]Definition, fallback string) (*Registry, error) {
	if len(definitions) == 0 {
		return nil, ErrEmptyRegistry
	}
	if fallback == "" {
		fallback = DefaultFallbackType
	}
	defs := make(map[string]Definition, len(definitions))
	for name, def := range definitions {
		key := normalizeType(name)
		def.Type = key
		def.Required = append([]string(nil), def.Required...)
		def.Optional = append([]string(nil), def.Optional...)
		if err := def.validate(); err != nil {
			return nil, err
		}
		defs[key] = def
	}
	fallback = normalizeType(fallback)
	if _, ok := defs[fallback]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFallback, fallback)
	}
	return &Registry{definitions: defs, fallback: fallback}, nil
}

// Default returns the registry for the four record types produced by the
// acquisition pipeline.
func Default() *Registry {
	r, err := New(map[string]Definition{
		"lead": {
			Required: []string{"id", "source_url", "scraped_at"},
			Optional: []string{"address", "price", "property_type", "status", "owner_name"},
		},
		"property": {
			Required: []string{"id", "address", "property_type"},
			Optional: []string{"list_price", "estimated_value", "roi_percent", "county", "state"},
		},
		"intelligence": {
			Required: []string{"id", "type", "source", "timestamp"},
			Optional: []string{"confidence", "data", "metadata"},
		},
		"repository": {
			Required: []string{"name", "full_name"},
			Optional: []string{"description", "language", "stars", "forks"},
		},
	}, DefaultFallbackType)
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve returns the definition for dataType. When the type is unknown the
// fallback definition is returned with exact=false.
func (r *Registry) Resolve(dataType string) (def Definition, exact bool) {
	if def, ok := r.definitions[normalizeType(dataType)]; ok {
		return def, true
	}
	return r.definitions[r.fallback], false
}

// Types lists the registered data types in sorted order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.definitions))
	for t := range r.definitions {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Fallback returns the data type used for unknown submissions.
func (r *Registry) Fallback() string {
	return r.fallback
}

type fileFormat struct {
	Fallback string                `yaml:"fallback"`
	Types    map[string]Definition `yaml:"types"`
}

// Parse reads a registry from YAML:
//
//	fallback: lead
//	types:
//	  lead:
//	    required: [id, source_url, scraped_at]
//	    optional: [address, price]
func Parse(data []byte) (*Registry, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode schema registry: %w", err)
	}
	return New(f.Types, f.Fallback)
}

// Load reads a YAML registry file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema registry: %w", err)
	}
	return Parse(data)
}

func normalizeType(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}
