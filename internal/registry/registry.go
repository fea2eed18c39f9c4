// Package registry holds the ordered, name-keyed set of invocable tools.
// Readers work against an immutable snapshot; Register and Unregister
// serialize on a mutex and publish a new snapshot atomically.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/mcp-gateway/internal/protocol"
	"github.com/AltairaLabs/mcp-gateway/internal/tools"
)

var (
	// ErrToolNotFound is returned by Lookup and Unregister for unknown names
	ErrToolNotFound = errors.New("tool not found")
	// ErrToolExists is returned when registering a taken name without Replace
	ErrToolExists = errors.New("tool already registered")
	// ErrInvalidSchema is returned for malformed input schemas
	ErrInvalidSchema = errors.New("invalid tool schema")
)

// Descriptor is the immutable, schema-bearing record advertised for a tool
type Descriptor struct {
	Name        string
	Description string
	InputSchema mcp.ToolInputSchema
	ServerInfo  protocol.ServerInfo
	Version     string
	Pool        tools.Pool
}

// Info renders the descriptor as a tools/list entry
func (d Descriptor) Info() protocol.ToolInfo {
	return protocol.ToolInfo{
		Name:        d.Name,
		Description: d.Description,
		InputSchema: d.InputSchema,
		ServerInfo:  d.ServerInfo,
	}
}

// Entry pairs a descriptor with its implementation and compiled schema
type Entry struct {
	Descriptor Descriptor
	Tool       tools.Tool
	schema     *jsonschema.Resolved
}

type snapshot struct {
	order    []*Entry
	byName   map[string]*Entry
	revision uint64
}

// Registry is safe for concurrent use
type Registry struct {
	mu         sync.Mutex
	current    atomic.Pointer[snapshot]
	serverInfo protocol.ServerInfo
}

// New creates an empty registry. serverInfo is stamped on descriptors that
// don't carry their own.
func New(serverInfo protocol.ServerInfo) *Registry {
	r := &Registry{serverInfo: serverInfo}
	r.current.Store(&snapshot{byName: map[string]*Entry{}})
	return r
}

type registerOptions struct {
	replace    bool
	version    string
	serverInfo *protocol.ServerInfo
}

// RegisterOption tunes a Register call
type RegisterOption func(*registerOptions)

// Replace allows Register to overwrite an existing tool of the same name
func Replace() RegisterOption {
	return func(o *registerOptions) { o.replace = true }
}

// WithVersion records the tool's version on its descriptor
func WithVersion(version string) RegisterOption {
	return func(o *registerOptions) { o.version = version }
}

// WithServerInfo overrides the serving component advertised for the tool
func WithServerInfo(name, version string) RegisterOption {
	return func(o *registerOptions) { o.serverInfo = &protocol.ServerInfo{Name: name, Version: version} }
}

// Register validates and adds a tool. A replaced tool keeps its position.
func (r *Registry) Register(tool tools.Tool, opts ...RegisterOption) error {
	if tool == nil {
		return fmt.Errorf("%w: nil tool", ErrInvalidSchema)
	}
	var o registerOptions
	for _, opt := range opts {
		opt(&o)
	}

	def := tool.Definition()
	resolved, err := compileSchema(def.Name, def.InputSchema)
	if err != nil {
		return err
	}

	entry := &Entry{
		Descriptor: Descriptor{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
			ServerInfo:  r.serverInfo,
			Version:     o.version,
			Pool:        tools.PoolOf(tool),
		},
		Tool:   tool,
		schema: resolved,
	}
	if o.serverInfo != nil {
		entry.Descriptor.ServerInfo = *o.serverInfo
	}
	if entry.Descriptor.Version == "" {
		entry.Descriptor.Version = entry.Descriptor.ServerInfo.Version
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current.Load()
	_, exists := cur.byName[def.Name]
	if exists && !o.replace {
		return fmt.Errorf("%w: %s", ErrToolExists, def.Name)
	}

	next := &snapshot{
		order:    make([]*Entry, 0, len(cur.order)+1),
		byName:   make(map[string]*Entry, len(cur.byName)+1),
		revision: cur.revision + 1,
	}
	for _, e := range cur.order {
		if e.Descriptor.Name == def.Name {
			e = entry
		}
		next.order = append(next.order, e)
		next.byName[e.Descriptor.Name] = e
	}
	if !exists {
		next.order = append(next.order, entry)
		next.byName[def.Name] = entry
	}
	r.current.Store(next)
	return nil
}

// Unregister removes a tool by name
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current.Load()
	if _, ok := cur.byName[name]; !ok {
		return fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	next := &snapshot{
		order:    make([]*Entry, 0, len(cur.order)),
		byName:   make(map[string]*Entry, len(cur.byName)),
		revision: cur.revision + 1,
	}
	for _, e := range cur.order {
		if e.Descriptor.Name == name {
			continue
		}
		next.order = append(next.order, e)
		next.byName[e.Descriptor.Name] = e
	}
	r.current.Store(next)
	return nil
}

// List returns descriptors in registration order
func (r *Registry) List() []Descriptor {
	snap := r.current.Load()
	out := make([]Descriptor, len(snap.order))
	for i, e := range snap.order {
		out[i] = e.Descriptor
	}
	return out
}

// Entries returns the registered entries in registration order
func (r *Registry) Entries() []*Entry {
	snap := r.current.Load()
	out := make([]*Entry, len(snap.order))
	copy(out, snap.order)
	return out
}

// Lookup finds a tool by name
func (r *Registry) Lookup(name string) (*Entry, error) {
	if e, ok := r.current.Load().byName[name]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
}

// Len returns the number of registered tools
func (r *Registry) Len() int {
	return len(r.current.Load().order)
}

// Revision increments on every mutation. Clients told that the list changed
// re-poll List and compare revisions.
func (r *Registry) Revision() uint64 {
	return r.current.Load().revision
}

// Validate checks parameters against the tool's input schema
func (e *Entry) Validate(params map[string]any) error {
	for _, name := range e.Descriptor.InputSchema.Required {
		if _, ok := params[name]; !ok {
			return fmt.Errorf("missing required parameter %q", name)
		}
	}
	if e.schema == nil {
		return nil
	}
	instance := params
	if instance == nil {
		instance = map[string]any{}
	}
	if err := e.schema.Validate(instance); err != nil {
		return fmt.Errorf("parameters do not match schema: %w", err)
	}
	return nil
}

func compileSchema(name string, s mcp.ToolInputSchema) (*jsonschema.Resolved, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: tool name is required", ErrInvalidSchema)
	}
	if s.Type != "object" {
		return nil, fmt.Errorf("%w: tool %s: input schema type must be \"object\", got %q", ErrInvalidSchema, name, s.Type)
	}
	seen := make(map[string]bool, len(s.Required))
	for _, req := range s.Required {
		if _, ok := s.Properties[req]; !ok {
			return nil, fmt.Errorf("%w: tool %s: required property %q is not declared", ErrInvalidSchema, name, req)
		}
		if seen[req] {
			return nil, fmt.Errorf("%w: tool %s: required property %q listed twice", ErrInvalidSchema, name, req)
		}
		seen[req] = true
	}

	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: tool %s: %v", ErrInvalidSchema, name, err)
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("%w: tool %s: %v", ErrInvalidSchema, name, err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: tool %s: %v", ErrInvalidSchema, name, err)
	}
	return resolved, nil
}
