package metadata

import (
	"strings"
	"sync"

	"objectgate/internal/config"
)

// Field describes one filterable column of a resource table.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"` // string, int, bigint, decimal, boolean, timestamp
}

// ResourceType identifies one addressable kind of resource. The App label
// plus the Name form the type component of permission names
// ("app.action_name"), and Table is the backing store table that grant
// constraints are evaluated against.
type ResourceType struct {
	App        string  `json:"app"`
	Name       string  `json:"name"`
	Table      string  `json:"table"`
	PrimaryKey string  `json:"primary_key"`
	Fields     []Field `json:"fields"`
}

// Label returns the "app.name" identifier stored on grant rows.
func (rt *ResourceType) Label() string {
	return rt.App + "." + rt.Name
}

// GetField returns a pointer to the field with the given name, or nil.
func (rt *ResourceType) GetField(name string) *Field {
	for i := range rt.Fields {
		if rt.Fields[i].Name == name {
			return &rt.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the resource type has a field with the given name.
func (rt *ResourceType) HasField(name string) bool {
	return name == rt.PrimaryKey || rt.GetField(name) != nil
}

// FieldNames returns the primary key followed by all field names.
func (rt *ResourceType) FieldNames() []string {
	names := make([]string, 0, len(rt.Fields)+1)
	names = append(names, rt.PrimaryKey)
	for _, f := range rt.Fields {
		if f.Name != rt.PrimaryKey {
			names = append(names, f.Name)
		}
	}
	return names
}

// Registry holds the resource types registered with the engine.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*ResourceType // keyed by lowercase "app.name"
}

func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*ResourceType)}
}

// Register adds or replaces a resource type.
func (r *Registry) Register(rt *ResourceType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[strings.ToLower(rt.Label())] = rt
}

// Get returns the resource type for an app label and type name, or nil.
func (r *Registry) Get(app, name string) *ResourceType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.types[strings.ToLower(app+"."+name)]
}

// GetByLabel returns the resource type for an "app.name" label, or nil.
func (r *Registry) GetByLabel(label string) *ResourceType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.types[strings.ToLower(label)]
}

// All returns all registered resource types.
func (r *Registry) All() []*ResourceType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]*ResourceType, 0, len(r.types))
	for _, rt := range r.types {
		types = append(types, rt)
	}
	return types
}

// LoadFromConfig registers every resource type declared in config.
func (r *Registry) LoadFromConfig(resources []config.ResourceConfig) {
	for _, rc := range resources {
		rt := &ResourceType{
			App:        rc.App,
			Name:       rc.Name,
			Table:      rc.Table,
			PrimaryKey: rc.PrimaryKey,
		}
		if rt.PrimaryKey == "" {
			rt.PrimaryKey = "id"
		}
		for _, fc := range rc.Fields {
			rt.Fields = append(rt.Fields, Field{Name: fc.Name, Type: fc.Type})
		}
		r.Register(rt)
	}
}
