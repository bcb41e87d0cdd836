package registry

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/lexlapax/kernelspell/errors"
)

// Factory constructs a runnable instance of a registered component given
// a JSON-encoded configuration document. Concrete agent/tool/workflow
// implementations are external collaborators (spec §1); the registry only
// holds the constructor and its descriptor.
type Factory func(ctx context.Context, config json.RawMessage) (any, error)

// Descriptor is what a caller registers: metadata plus the factory that
// builds instances and an optional JSON Schema bounding the configuration
// documents Descriptor.Factory will accept.
type Descriptor struct {
	Metadata     Metadata
	Factory      Factory
	ConfigSchema json.RawMessage // optional; validated on Create
}

type entry struct {
	descriptor Descriptor
	schema     *jsonschema.Schema
}

// Registry is a name-to-descriptor-and-factory map with kind and tag
// filtering and a text search over name, description, category and tags,
// rewritten from registry/store/memory/memory.go's
// matchesTags/matchesQuery generalized from a single "toolset" shape to
// any agent/tool/workflow descriptor (spec §2 "Component Registry").
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*entry
	byID    map[string]*entry
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		byName: make(map[string]*entry),
		byID:   make(map[string]*entry),
	}
}

// Register adds or replaces the descriptor under its metadata's name. If
// ConfigSchema is set it is compiled immediately so a malformed schema
// fails fast at registration time rather than at first Create.
func (r *Registry) Register(d Descriptor) error {
	var compiled *jsonschema.Schema
	if len(d.ConfigSchema) > 0 {
		var doc any
		if err := json.Unmarshal(d.ConfigSchema, &doc); err != nil {
			return errors.Wrap(errors.Validation, "config schema is not valid JSON", err)
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(d.Metadata.Name+"-schema.json", doc); err != nil {
			return errors.Wrap(errors.Validation, "add schema resource", err)
		}
		s, err := c.Compile(d.Metadata.Name + "-schema.json")
		if err != nil {
			return errors.Wrap(errors.Validation, "compile config schema", err)
		}
		compiled = s
	}

	e := &entry{descriptor: d, schema: compiled}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[d.Metadata.Name] = e
	r.byID[d.Metadata.ID.String()] = e
	return nil
}

// Unregister removes a component by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byName[name]; ok {
		delete(r.byID, e.descriptor.Metadata.ID.String())
		delete(r.byName, name)
	}
}

// Get returns the descriptor registered under name.
func (r *Registry) Get(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	if !ok {
		return Descriptor{}, errors.New(errors.NotFound, "component not registered: "+name)
	}
	return e.descriptor, nil
}

// GetByID returns the descriptor whose metadata id matches id.
func (r *Registry) GetByID(id ComponentID) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[id.String()]
	if !ok {
		return Descriptor{}, errors.New(errors.NotFound, "component not registered: "+id.String())
	}
	return e.descriptor, nil
}

// Create validates config against the descriptor's schema (if any) and
// invokes its factory.
func (r *Registry) Create(ctx context.Context, name string, config json.RawMessage) (any, error) {
	r.mu.RLock()
	e, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.New(errors.NotFound, "component not registered: "+name)
	}
	if e.schema != nil {
		var doc any
		if len(config) == 0 {
			config = []byte("{}")
		}
		if err := json.Unmarshal(config, &doc); err != nil {
			return nil, errors.Wrap(errors.Validation, "config is not valid JSON", err)
		}
		if err := e.schema.Validate(doc); err != nil {
			return nil, errors.Wrap(errors.Validation, "config failed schema validation", err)
		}
	}
	return e.descriptor.Factory(ctx, config)
}

// List returns every descriptor whose kind matches (zero value Kind
// matches all) and whose tags are a superset of the requested tags
// (registry/store/memory/memory.go's matchesTags, generalized to any
// Kind rather than a single toolset shape).
func (r *Registry) List(kind Kind, tags []string) []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Metadata, 0, len(r.byName))
	for _, e := range r.byName {
		m := e.descriptor.Metadata
		if kind != "" && m.Kind != kind {
			continue
		}
		if !matchesTags(m.Tags, tags) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Search matches query (case-insensitive) against a component's name,
// description, category, or tags, mirroring
// registry/store/memory/memory.go's matchesQuery.
func (r *Registry) Search(query string) []Metadata {
	lowerQuery := strings.ToLower(query)
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Metadata, 0)
	for _, e := range r.byName {
		if matchesQuery(e.descriptor.Metadata, lowerQuery) {
			out = append(out, e.descriptor.Metadata)
		}
	}
	return out
}

func matchesTags(componentTags, filterTags []string) bool {
	if len(filterTags) == 0 {
		return true
	}
	tagSet := make(map[string]struct{}, len(componentTags))
	for _, tag := range componentTags {
		tagSet[tag] = struct{}{}
	}
	for _, tag := range filterTags {
		if _, ok := tagSet[tag]; !ok {
			return false
		}
	}
	return true
}

func matchesQuery(m Metadata, lowerQuery string) bool {
	if strings.Contains(strings.ToLower(m.Name), lowerQuery) {
		return true
	}
	if strings.Contains(strings.ToLower(m.Description), lowerQuery) {
		return true
	}
	if strings.Contains(strings.ToLower(m.Category), lowerQuery) {
		return true
	}
	for _, tag := range m.Tags {
		if strings.Contains(strings.ToLower(tag), lowerQuery) {
			return true
		}
	}
	return false
}
