package ogm

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/armchr/graphogm/internal/cypher"
	"github.com/armchr/graphogm/internal/util"
)

// Direction is the way an edge points relative to the declaring node.
type Direction int

const (
	// From edges start at the declaring node.
	From Direction = iota + 1
	// To edges end at the declaring node.
	To
	// Both writes one edge each way.
	Both
)

func (d Direction) String() string {
	switch d {
	case From:
		return "from"
	case To:
		return "to"
	case Both:
		return "both"
	default:
		return "unset"
	}
}

// ParseDirection accepts "from", "to", "both" and the short form "bi".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "from":
		return From, nil
	case "to":
		return To, nil
	case "both", "bi", "":
		return Both, nil
	default:
		return 0, fmt.Errorf("%w: unknown direction %q", ErrRelationship, s)
	}
}

// DeletePolicy decides what happens to related nodes when a node is deleted.
type DeletePolicy int

const (
	// Protect removes only the edges.
	Protect DeletePolicy = iota
	// Cascade deletes the related nodes as well.
	Cascade
)

func (p DeletePolicy) String() string {
	if p == Cascade {
		return "CASCADE"
	}
	return "PROTECT"
}

// Self names the declaring type in RelationshipSchema.Start or Target.
const Self = "self"

// RelationshipSchema declares a relationship accessor on a node type.
type RelationshipSchema struct {
	Type      string
	Direction Direction
	// Start and Target restrict the endpoint types by registered name. For
	// From and Both the declaring node is the start, so Start may only be
	// empty or Self; for To the same holds for Target.
	Start  string
	Target string

	AllowSelfLoop bool
	OnDelete      DeletePolicy
	// Unique allows at most one such edge per declaring node.
	Unique     bool
	Properties []Property
}

// NodeSchema declares a node type.
type NodeSchema struct {
	Name string
	// Extends names a registered parent whose labels, properties and
	// relationships are inherited.
	Extends string
	// Labels are added to the derived label set.
	Labels        []string
	Properties    []Property
	Relationships map[string]RelationshipSchema
}

// NodeType is a registered node type with everything precomputed.
type NodeType struct {
	name          string
	parent        string
	labels        []string
	properties    propertySet
	relationships map[string]*RelationshipType
	registry      *Registry
}

func (t *NodeType) Name() string        { return t.name }
func (t *NodeType) Parent() string      { return t.parent }
func (t *NodeType) Registry() *Registry { return t.registry }

// Labels returns the type's own name, every ancestor name, then extra labels.
func (t *NodeType) Labels() []string {
	return append([]string(nil), t.labels...)
}

// Properties returns the declared properties, uuid first.
func (t *NodeType) Properties() []Property {
	return t.properties.declared()
}

func (t *NodeType) Property(name string) (Property, bool) {
	return t.properties.get(name)
}

func (t *NodeType) Relationship(name string) (*RelationshipType, bool) {
	rt, ok := t.relationships[name]
	return rt, ok
}

// RelationshipNames returns the accessor names in sorted order.
func (t *NodeType) RelationshipNames() []string {
	names := make([]string, 0, len(t.relationships))
	for name := range t.relationships {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Is reports whether t is name or descends from it.
func (t *NodeType) Is(name string) bool {
	for _, l := range t.labels {
		if l == name {
			return true
		}
	}
	return false
}

func (t *NodeType) uniqueProperties() []Property {
	var out []Property
	for _, p := range t.properties.list {
		if p.Unique {
			out = append(out, p)
		}
	}
	return out
}

// RelationshipType is a compiled RelationshipSchema bound to its owner.
type RelationshipType struct {
	name       string
	owner      string
	schema     RelationshipSchema
	properties propertySet
	registry   *Registry
}

func newRelationshipType(reg *Registry, owner, name string, s RelationshipSchema) (*RelationshipType, error) {
	where := owner + "." + name
	if err := cypher.CheckIdentifier("relationship type", s.Type); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSchema, where, err)
	}
	switch s.Direction {
	case From, Both:
		if s.Start != "" && s.Start != Self {
			return nil, fmt.Errorf("%w: %s: a %s relationship starts at the declaring node, start must be empty or %q",
				ErrSchema, where, s.Direction, Self)
		}
	case To:
		if s.Target != "" && s.Target != Self {
			return nil, fmt.Errorf("%w: %s: a to relationship ends at the declaring node, target must be empty or %q",
				ErrSchema, where, Self)
		}
	default:
		return nil, fmt.Errorf("%w: %s: direction is required", ErrSchema, where)
	}

	props, err := newPropertySet(where, nil, s.Properties)
	if err != nil {
		return nil, err
	}
	return &RelationshipType{name: name, owner: owner, schema: s, properties: props, registry: reg}, nil
}

func (rt *RelationshipType) Name() string           { return rt.name }
func (rt *RelationshipType) Owner() string          { return rt.owner }
func (rt *RelationshipType) Type() string           { return rt.schema.Type }
func (rt *RelationshipType) Direction() Direction   { return rt.schema.Direction }
func (rt *RelationshipType) OnDelete() DeletePolicy { return rt.schema.OnDelete }
func (rt *RelationshipType) Unique() bool           { return rt.schema.Unique }
func (rt *RelationshipType) AllowSelfLoop() bool    { return rt.schema.AllowSelfLoop }

// Properties returns the declared edge properties, uuid first.
func (rt *RelationshipType) Properties() []Property {
	return rt.properties.declared()
}

// FarTypeName is the declared type of the node at the other end, or "".
func (rt *RelationshipType) FarTypeName() string {
	if rt.schema.Direction == To {
		return rt.schema.Start
	}
	return rt.schema.Target
}

// farType resolves the declared far end. It returns nil when the far end is
// unconstrained. Names are resolved at call time so overrides apply.
func (rt *RelationshipType) farType() (*NodeType, error) {
	name := rt.FarTypeName()
	switch name {
	case "":
		return nil, nil
	case Self:
		name = rt.owner
	}
	t, ok := rt.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s: type %q is not registered", ErrRelationship, rt.owner, rt.name, name)
	}
	return t, nil
}

// Registry holds every node type of a process. Types are registered once at
// startup; lookups are safe for concurrent use afterwards.
type Registry struct {
	mu         sync.Mutex
	order      []string
	schemas    map[string]NodeSchema
	overridden map[string]bool
	types      *util.SafeMap[*NodeType]
}

func NewRegistry() *Registry {
	return &Registry{
		schemas:    make(map[string]NodeSchema),
		overridden: make(map[string]bool),
		types:      util.NewSafeMap[*NodeType](),
	}
}

// Register compiles schema and adds it. A parent must be registered first.
func (r *Registry) Register(schema NodeSchema) (*NodeType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.schemas[schema.Name]; ok {
		return nil, fmt.Errorf("%w: type %q is already registered", ErrSchema, schema.Name)
	}
	t, err := r.compile(schema, r.types.Get)
	if err != nil {
		return nil, err
	}
	r.order = append(r.order, schema.Name)
	r.schemas[schema.Name] = schema
	r.types.Set(schema.Name, t)
	return t, nil
}

// MustRegister is Register for package-level declarations; it panics on error.
func (r *Registry) MustRegister(schema NodeSchema) *NodeType {
	t, err := r.Register(schema)
	if err != nil {
		panic(err)
	}
	return t
}

// Override replaces the registered type with the same name. Descendants are
// recompiled, and *NodeType values handed out earlier see the replacement.
func (r *Registry) Override(schema NodeSchema) (*NodeType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.schemas[schema.Name]; !ok {
		return nil, fmt.Errorf("%w: cannot override unregistered type %q", ErrSchema, schema.Name)
	}

	schemas := make(map[string]NodeSchema, len(r.schemas))
	for name, s := range r.schemas {
		schemas[name] = s
	}
	schemas[schema.Name] = schema

	fresh := make(map[string]*NodeType, len(schemas))
	lookup := func(name string) (*NodeType, bool) {
		t, ok := fresh[name]
		return t, ok
	}
	for _, name := range r.order {
		t, err := r.compile(schemas[name], lookup)
		if err != nil {
			return nil, err
		}
		fresh[name] = t
	}

	for _, name := range r.order {
		existing, _ := r.types.Get(name)
		*existing = *fresh[name]
	}
	r.schemas = schemas
	r.overridden[schema.Name] = true
	t, _ := r.types.Get(schema.Name)
	return t, nil
}

// Overridden reports whether name was replaced by Override.
func (r *Registry) Overridden(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overridden[name]
}

func (r *Registry) Lookup(name string) (*NodeType, bool) {
	return r.types.Get(name)
}

// Types returns every registered type in registration order.
func (r *Registry) Types() []*NodeType {
	r.mu.Lock()
	names := append([]string(nil), r.order...)
	r.mu.Unlock()

	out := make([]*NodeType, 0, len(names))
	for _, name := range names {
		if t, ok := r.types.Get(name); ok {
			out = append(out, t)
		}
	}
	return out
}

// ResolveLabels returns the most specific registered type whose name is
// among labels, i.e. the one with the longest label set.
func (r *Registry) ResolveLabels(labels []string) (*NodeType, bool) {
	set := make(map[string]bool, len(labels))
	for _, l := range labels {
		set[l] = true
	}

	var best *NodeType
	for _, name := range r.types.Keys() {
		if !set[name] {
			continue
		}
		t, _ := r.types.Get(name)
		if best == nil || len(t.labels) > len(best.labels) {
			best = t
		}
	}
	return best, best != nil
}

func (r *Registry) compile(s NodeSchema, lookup func(string) (*NodeType, bool)) (*NodeType, error) {
	if err := cypher.CheckIdentifier("type name", s.Name); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	for _, l := range s.Labels {
		if err := cypher.CheckIdentifier("label", l); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrSchema, s.Name, err)
		}
	}

	t := &NodeType{
		name:          s.Name,
		parent:        s.Extends,
		relationships: make(map[string]*RelationshipType),
		registry:      r,
	}

	labels := []string{s.Name}
	var inherited []Property
	if s.Extends != "" {
		parent, ok := lookup(s.Extends)
		if !ok {
			return nil, fmt.Errorf("%w: %s extends unregistered type %q", ErrSchema, s.Name, s.Extends)
		}
		labels = append(labels, parent.labels...)
		inherited = parent.properties.list
		for name, rt := range parent.relationships {
			child, err := newRelationshipType(r, s.Name, name, rt.schema)
			if err != nil {
				return nil, err
			}
			t.relationships[name] = child
		}
	}
	labels = append(labels, s.Labels...)
	t.labels = dedupe(labels)

	props, err := newPropertySet(s.Name, inherited, s.Properties)
	if err != nil {
		return nil, err
	}
	t.properties = props

	for name, rs := range s.Relationships {
		rt, err := newRelationshipType(r, s.Name, name, rs)
		if err != nil {
			return nil, err
		}
		t.relationships[name] = rt
	}
	return t, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
