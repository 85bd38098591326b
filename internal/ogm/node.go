package ogm

import (
	"context"
	"fmt"

	"github.com/armchr/graphogm/internal/cypher"
	"github.com/armchr/graphogm/internal/filter"
	"github.com/armchr/graphogm/internal/graphdb"

	"go.uber.org/zap"
)

// Node is a materialized node of a registered type.
type Node struct {
	ElementID string
	Labels    []string
	Props     map[string]any

	typ    *NodeType
	mapper *Mapper
}

func (n *Node) Type() *NodeType {
	return n.typ
}

func (n *Node) UUID() string {
	id, _ := n.Props[UUIDKey].(string)
	return id
}

// Get returns a property value and whether the node holds it.
func (n *Node) Get(name string) (any, bool) {
	v, ok := n.Props[name]
	return v, ok
}

// Create validates props against t, stores uploads, writes the node and
// returns it hydrated from the store's answer.
func (m *Mapper) Create(ctx context.Context, t *NodeType, props map[string]any) (*Node, error) {
	values, err := t.properties.resolve(t.name, props)
	if err != nil {
		return nil, err
	}
	if err := m.checkUnique(ctx, t.name, t.labels, t.uniqueProperties(), values, ""); err != nil {
		return nil, err
	}
	uploaded, err := m.storeUploads(ctx, t.name, values)
	if err != nil {
		return nil, err
	}

	params := cypher.NewParams("")
	text := fmt.Sprintf("CREATE (n%s %s)\nRETURN n", cypher.Labels(t.labels), params.Set("props", values))
	records, err := m.write(ctx, cypher.NewQuery(text, params))
	if err != nil {
		m.removeFiles(ctx, uploaded)
		return nil, fmt.Errorf("failed to create %s: %w", t.name, err)
	}
	if len(records) == 0 {
		m.removeFiles(ctx, uploaded)
		return nil, fmt.Errorf("%w: create %s returned no node", ErrNode, t.name)
	}
	raw, err := records[0].Node("n")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNode, err)
	}

	m.logger.Debug("Created node", zap.String("type", t.name), zap.Any("uuid", values[UUIDKey]))
	return m.hydrateAs(t, raw), nil
}

// Query returns the read query Find would run, without running it.
func (m *Mapper) Query(t *NodeType, opts GetOptions) (cypher.Query, error) {
	q, params, err := m.selectNodes(t, opts, "")
	if err != nil {
		return cypher.Query{}, err
	}
	return cypher.NewQuery(q.text(), params), nil
}

// CountQuery returns the query Count would run.
func (m *Mapper) CountQuery(t *NodeType, opts GetOptions) (cypher.Query, error) {
	opts.Only = nil
	q, params, err := m.selectNodes(t, opts, "")
	if err != nil {
		return cypher.Query{}, err
	}
	return cypher.NewQuery(q.counting("n").text(), params), nil
}

func (m *Mapper) selectNodes(t *NodeType, opts GetOptions, uuid string) (selectQuery, *cypher.Params, error) {
	if err := checkWindow(opts.Skip, opts.Limit); err != nil {
		return selectQuery{}, nil, err
	}
	params := cypher.NewParams("")
	q := selectQuery{
		match:    "(n" + cypher.Labels(t.labels) + ")",
		with:     "n",
		desc:     opts.Desc,
		skip:     opts.Skip,
		limit:    opts.Limit,
		distinct: opts.Distinct,
		ret:      "n",
	}
	if uuid != "" {
		q.match = fmt.Sprintf("(n%s {uuid: %s})", cypher.Labels(t.labels), params.Set("uuid", uuid))
	}

	where, err := compileFilter(opts.Filter, "n", params)
	if err != nil {
		return selectQuery{}, nil, err
	}
	if where != "" {
		q.where = []string{where}
	}
	if q.orderBy, err = orderKey("n", opts.OrderBy); err != nil {
		return selectQuery{}, nil, err
	}
	if len(opts.Only) > 0 {
		if q.ret, err = projection("n", opts.Only); err != nil {
			return selectQuery{}, nil, err
		}
	}
	return q, params, nil
}

// Find returns the nodes of t matching opts. Only is ignored; use Project.
func (m *Mapper) Find(ctx context.Context, t *NodeType, opts GetOptions) ([]*Node, error) {
	opts.Only = nil
	q, err := m.Query(t, opts)
	if err != nil {
		return nil, err
	}
	records, err := m.read(ctx, q)
	if err != nil {
		return nil, err
	}
	return m.nodes(t, records, "n")
}

// Project returns maps of the properties named in opts.Only.
func (m *Mapper) Project(ctx context.Context, t *NodeType, opts GetOptions) ([]map[string]any, error) {
	if len(opts.Only) == 0 {
		return nil, fmt.Errorf("%w: project needs at least one property", ErrNode)
	}
	q, err := m.Query(t, opts)
	if err != nil {
		return nil, err
	}
	records, err := m.read(ctx, q)
	if err != nil {
		return nil, err
	}
	return projections(records), nil
}

// FindOne returns the node of t with the given uuid or ErrNotFound.
func (m *Mapper) FindOne(ctx context.Context, t *NodeType, uuid string) (*Node, error) {
	if uuid == "" {
		return nil, fmt.Errorf("%w: %s with empty uuid", ErrNotFound, t.name)
	}
	q, params, err := m.selectNodes(t, GetOptions{}, uuid)
	if err != nil {
		return nil, err
	}
	records, err := m.read(ctx, cypher.NewQuery(q.text(), params))
	if err != nil {
		return nil, err
	}
	return m.single(t, records, fmt.Sprintf("uuid %q", uuid))
}

// FindBy returns the node of t whose unique property key equals value, or
// ErrNotFound.
func (m *Mapper) FindBy(ctx context.Context, t *NodeType, key string, value any) (*Node, error) {
	p, ok := t.Property(key)
	if !ok || !p.Unique {
		return nil, fmt.Errorf("%w: %s.%s is not a unique property", ErrNode, t.name, key)
	}
	if key == UUIDKey {
		id, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s must be a string, got %T", ErrNode, t.name, key, value)
		}
		return m.FindOne(ctx, t, id)
	}
	q, err := m.Query(t, GetOptions{Filter: filter.Q(key, value)})
	if err != nil {
		return nil, err
	}
	records, err := m.read(ctx, q)
	if err != nil {
		return nil, err
	}
	return m.single(t, records, fmt.Sprintf("%s %v", key, value))
}

func (m *Mapper) single(t *NodeType, records []graphdb.Record, what string) (*Node, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s with %s", ErrNotFound, t.name, what)
	}
	if len(records) > 1 {
		m.logger.Warn("Unique lookup matched several nodes",
			zap.String("type", t.name), zap.String("lookup", what), zap.Int("count", len(records)))
	}
	nodes, err := m.nodes(t, records[:1], "n")
	if err != nil {
		return nil, err
	}
	return nodes[0], nil
}

// FindRaw runs a hand-written read query whose rows return the node as "n"
// and hydrates the results as t.
func (m *Mapper) FindRaw(ctx context.Context, t *NodeType, query string, params map[string]any) ([]*Node, error) {
	records, err := m.db.ExecuteRead(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return m.nodes(t, records, "n")
}

// Count returns how many nodes Find would return.
func (m *Mapper) Count(ctx context.Context, t *NodeType, opts GetOptions) (int64, error) {
	q, err := m.CountQuery(t, opts)
	if err != nil {
		return 0, err
	}
	records, err := m.read(ctx, q)
	if err != nil {
		return 0, err
	}
	return countOf(records)
}

func (n *Node) bound() error {
	if n.mapper == nil || n.typ == nil {
		return fmt.Errorf("%w: node is not bound to a mapper", ErrNode)
	}
	return nil
}

// matchSelf renders the pattern matching this node by uuid.
func (n *Node) matchSelf(variable string, params *cypher.Params) string {
	return fmt.Sprintf("(%s%s {uuid: %s})", variable, cypher.Labels(n.typ.labels), params.Set("self", n.UUID()))
}

// Update writes one property. Values are normalized by type; externally
// stored properties take a storage.Upload, or nil to clear the file.
// Undeclared properties the node does not hold follow the
// create_property_if_not_found policy.
func (n *Node) Update(ctx context.Context, name string, value any) error {
	if err := n.bound(); err != nil {
		return err
	}
	m, t := n.mapper, n.typ
	if name == UUIDKey {
		return fmt.Errorf("%w: %s.%s cannot be updated", ErrProperty, t.name, name)
	}
	if err := cypher.CheckIdentifier("property", name); err != nil {
		return fmt.Errorf("%w: %v", ErrProperty, err)
	}

	p, declared := t.Property(name)
	current, present := n.Props[name]
	if !declared && !present && !m.policyAllowsMissing(t.name, name) {
		return nil
	}

	p.Name = name
	u, err := m.prepareUpdate(ctx, t.name, p, n.Props, value)
	if err != nil {
		return err
	}
	if p.Unique {
		if err := m.checkUnique(ctx, t.name, t.labels, []Property{p}, map[string]any{name: u.value}, n.UUID()); err != nil {
			m.removeFiles(ctx, u.uploaded)
			return err
		}
	}

	params := cypher.NewParams("")
	text := "MATCH " + n.matchSelf("n", params)
	if current != nil {
		text += "\nWHERE " + cypher.Property("n", name) + " IS NOT NULL"
	}
	text += fmt.Sprintf("\nSET %s = %s\nRETURN n", cypher.Property("n", name), params.Set("value", u.value))

	records, err := m.write(ctx, cypher.NewQuery(text, params))
	if err != nil {
		m.removeFiles(ctx, u.uploaded)
		return fmt.Errorf("failed to update %s.%s: %w", t.name, name, err)
	}
	if len(records) == 0 {
		m.removeFiles(ctx, u.uploaded)
		return fmt.Errorf("%w: %s with uuid %q", ErrNotFound, t.name, n.UUID())
	}
	m.apply(ctx, n.Props, name, u)
	return nil
}

// Delete removes the node. Stored files of its own properties and of its
// edges go first, then the node with all its edges, then every node reached
// through a CASCADE relationship.
func (n *Node) Delete(ctx context.Context) error {
	if err := n.bound(); err != nil {
		return err
	}
	return n.mapper.deleteNode(ctx, n, make(map[string]bool))
}

func (m *Mapper) deleteNode(ctx context.Context, n *Node, visited map[string]bool) error {
	visited[n.UUID()] = true
	t := n.typ

	files := storedFiles(t.properties.list, n.Props)
	var cascade []*Node
	for _, name := range t.RelationshipNames() {
		rt := t.relationships[name]
		withFiles := hasStoredProperties(rt.properties.list)
		if rt.OnDelete() != Cascade && !withFiles {
			continue
		}

		returned := ReturnRelationship
		if rt.OnDelete() == Cascade {
			returned = ReturnBoth
		}
		results, err := n.rel(rt).Get(ctx, RelGetOptions{Direction: rt.Direction(), Returned: returned})
		if err != nil {
			return fmt.Errorf("failed to collect %s.%s before delete: %w", t.name, name, err)
		}
		for _, res := range results {
			if withFiles {
				files = append(files, storedFiles(rt.properties.list, res.Relationship.Props)...)
			}
			if res.Node != nil {
				cascade = append(cascade, res.Node)
			}
		}
	}

	m.removeFiles(ctx, files)

	params := cypher.NewParams("")
	text := "MATCH " + n.matchSelf("n", params) + "\nDETACH DELETE n"
	if _, err := m.write(ctx, cypher.NewQuery(text, params)); err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", t.name, n.UUID(), err)
	}
	m.logger.Debug("Deleted node", zap.String("type", t.name), zap.String("uuid", n.UUID()), zap.Int("cascade", len(cascade)))

	for _, c := range cascade {
		if visited[c.UUID()] {
			continue
		}
		if err := m.deleteNode(ctx, c, visited); err != nil {
			return err
		}
	}
	return nil
}

// Rel returns the accessor of the relationship declared as name.
func (n *Node) Rel(name string) (*RelationshipSet, error) {
	if err := n.bound(); err != nil {
		return nil, err
	}
	rt, ok := n.typ.Relationship(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no relationship %q", ErrRelationship, n.typ.name, name)
	}
	return n.rel(rt), nil
}

func (n *Node) rel(rt *RelationshipType) *RelationshipSet {
	return &RelationshipSet{rt: rt, node: n, mapper: n.mapper}
}
