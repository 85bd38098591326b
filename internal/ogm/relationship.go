package ogm

import (
	"context"
	"fmt"
	"strings"

	"github.com/armchr/graphogm/internal/cypher"
	"github.com/armchr/graphogm/internal/filter"
	"github.com/armchr/graphogm/internal/graphdb"

	"go.uber.org/zap"
)

// Returned selects what a relationship read returns.
type Returned int

const (
	ReturnNode Returned = iota
	ReturnRelationship
	ReturnBoth
)

// ParseReturned accepts "node", "relationship" ("rel") and "both".
func ParseReturned(s string) (Returned, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "node", "":
		return ReturnNode, nil
	case "relationship", "rel":
		return ReturnRelationship, nil
	case "both":
		return ReturnBoth, nil
	default:
		return 0, fmt.Errorf("%w: unknown returned value %q", ErrRelationship, s)
	}
}

// RelGetOptions shapes a read through a relationship. Direction is the
// query-time direction and defaults to Both whatever the declared one is.
// Filter applies to the far node n, RelFilter to the edge r. With
// ReturnBoth, OrderBy and Only keys must be prefixed with "r." or "n.".
type RelGetOptions struct {
	Direction Direction
	Returned  Returned
	Filter    filter.Expr
	RelFilter filter.Expr
	OrderBy   string
	Desc      bool
	Skip      int
	Limit     int
	Distinct  bool
	Only      []string
}

// RelResult is one row of a relationship read. Fields not selected by
// Returned are nil.
type RelResult struct {
	Node         *Node
	Relationship *RelationshipInstance
}

// RelationshipSet is a relationship accessor bound to one node.
type RelationshipSet struct {
	rt     *RelationshipType
	node   *Node
	mapper *Mapper
}

func (s *RelationshipSet) Descriptor() *RelationshipType {
	return s.rt
}

// Add creates the edge between the bound node and other, two edges for a
// Both relationship. Edge properties are resolved like node properties.
func (s *RelationshipSet) Add(ctx context.Context, other *Node, props map[string]any) ([]*RelationshipInstance, error) {
	if other == nil || other.typ == nil {
		return nil, fmt.Errorf("%w: %s.%s: no node to add", ErrRelationship, s.rt.owner, s.rt.name)
	}
	far, err := s.rt.farType()
	if err != nil {
		return nil, err
	}
	if far != nil && !other.typ.Is(far.name) {
		return nil, fmt.Errorf("%w: %s.%s expects a %s, got a %s",
			ErrRelationship, s.rt.owner, s.rt.name, far.name, other.typ.name)
	}
	return s.add(ctx, other, props)
}

// AddByUUID is Add for a node known only by uuid. When the far end is not
// declared, its type is resolved from the stored labels.
func (s *RelationshipSet) AddByUUID(ctx context.Context, uuid string, props map[string]any) ([]*RelationshipInstance, error) {
	other, err := s.lookupFar(ctx, uuid)
	if err != nil {
		return nil, err
	}
	return s.Add(ctx, other, props)
}

func (s *RelationshipSet) lookupFar(ctx context.Context, uuid string) (*Node, error) {
	far, err := s.rt.farType()
	if err != nil {
		return nil, err
	}
	if far != nil {
		n, err := s.mapper.FindOne(ctx, far, uuid)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %w", ErrRelationship, s.rt.owner, s.rt.name, err)
		}
		return n, nil
	}

	params := cypher.NewParams("")
	text := fmt.Sprintf("MATCH (n {uuid: %s})\nRETURN n", params.Set("uuid", uuid))
	records, err := s.mapper.read(ctx, cypher.NewQuery(text, params))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s.%s: %w: node with uuid %q", ErrRelationship, s.rt.owner, s.rt.name, ErrNotFound, uuid)
	}
	raw, err := records[0].Node("n")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNode, err)
	}
	return s.mapper.resolve(nil, raw)
}

func (s *RelationshipSet) add(ctx context.Context, other *Node, props map[string]any) ([]*RelationshipInstance, error) {
	m, rt, self := s.mapper, s.rt, s.node
	where := rt.owner + "." + rt.name

	if other.UUID() == self.UUID() && !rt.AllowSelfLoop() {
		return nil, fmt.Errorf("%w: %s does not allow self loops", ErrRelationship, where)
	}

	values, err := rt.properties.resolve(where, props)
	if err != nil {
		return nil, err
	}
	if err := m.checkEdgeUnique(ctx, rt, values, ""); err != nil {
		return nil, err
	}
	if rt.Unique() {
		taken, err := s.hasEdge(ctx)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, fmt.Errorf("%w: %s is unique and %s %s already has one", ErrRelationship, where, self.typ.name, self.UUID())
		}
	}
	uploaded, err := m.storeUploads(ctx, where, values)
	if err != nil {
		return nil, err
	}

	params := cypher.NewParams("")
	match := fmt.Sprintf("MATCH %s, (n%s {uuid: %s})",
		self.matchSelf("self", params), cypher.Labels(other.typ.labels), params.Set("other", other.UUID()))
	first := params.Set("props", values)

	var create, ret string
	switch rt.Direction() {
	case From:
		create, ret = fmt.Sprintf("CREATE (self)-[r:%s %s]->(n)", rt.Type(), first), "RETURN r"
	case To:
		create, ret = fmt.Sprintf("CREATE (self)<-[r:%s %s]-(n)", rt.Type(), first), "RETURN r"
	case Both:
		reverse := make(map[string]any, len(values))
		for k, v := range values {
			reverse[k] = v
		}
		reverse[UUIDKey] = NewUUID()
		second := params.Set("reverse", reverse)
		create = fmt.Sprintf("CREATE (self)-[r:%s %s]->(n), (self)<-[r2:%s %s]-(n)", rt.Type(), first, rt.Type(), second)
		ret = "RETURN r, r2"
	}

	records, err := m.write(ctx, cypher.NewQuery(match+"\n"+create+"\n"+ret, params))
	if err != nil {
		m.removeFiles(ctx, uploaded)
		return nil, fmt.Errorf("failed to add %s: %w", where, err)
	}
	if len(records) == 0 {
		m.removeFiles(ctx, uploaded)
		return nil, fmt.Errorf("%w: %s: endpoint not found", ErrRelationship, where)
	}

	keys := []string{"r"}
	if rt.Direction() == Both {
		keys = append(keys, "r2")
	}
	out := make([]*RelationshipInstance, 0, len(keys))
	for _, key := range keys {
		raw, err := records[0].Relationship(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRelationship, err)
		}
		out = append(out, s.hydrate(raw))
	}
	m.logger.Debug("Added relationship",
		zap.String("relationship", where),
		zap.String("type", rt.Type()),
		zap.String("from", self.UUID()),
		zap.String("to", other.UUID()))
	return out, nil
}

// hasEdge reports whether the bound node already has an edge of this type
// in the declared direction.
func (s *RelationshipSet) hasEdge(ctx context.Context) (bool, error) {
	params := cypher.NewParams("")
	text := fmt.Sprintf("MATCH %s%s()\nRETURN count(r) AS count",
		s.node.matchSelf("self", params), arrow(s.rt.Direction(), "r", s.rt.Type()))
	return s.mapper.exists(ctx, cypher.NewQuery(text, params))
}

// arrow renders the edge part of a pattern for direction, seen from the
// left node.
func arrow(d Direction, variable, typ string) string {
	edge := "[" + variable + ":" + typ + "]"
	switch d {
	case From:
		return "-" + edge + "->"
	case To:
		return "<-" + edge + "-"
	default:
		return "-" + edge + "-"
	}
}

// Query returns the read query Get would run.
func (s *RelationshipSet) Query(opts RelGetOptions) (cypher.Query, error) {
	q, params, err := s.selectQuery(opts)
	if err != nil {
		return cypher.Query{}, err
	}
	return cypher.NewQuery(q.text(), params), nil
}

// CountQuery returns the query Count would run.
func (s *RelationshipSet) CountQuery(opts RelGetOptions) (cypher.Query, error) {
	opts.Only = nil
	q, params, err := s.selectQuery(opts)
	if err != nil {
		return cypher.Query{}, err
	}
	variable := "n"
	if opts.Returned != ReturnNode {
		variable = "r"
	}
	return cypher.NewQuery(q.counting(variable).text(), params), nil
}

func (s *RelationshipSet) selectQuery(opts RelGetOptions) (selectQuery, *cypher.Params, error) {
	if err := s.node.bound(); err != nil {
		return selectQuery{}, nil, err
	}
	if err := checkWindow(opts.Skip, opts.Limit); err != nil {
		return selectQuery{}, nil, err
	}
	far, err := s.rt.farType()
	if err != nil {
		return selectQuery{}, nil, err
	}

	direction := opts.Direction
	if direction == 0 {
		direction = Both
	}
	// Both relationships store a pair of edges; matching the outgoing one
	// yields every neighbour once.
	if direction == Both && s.rt.Direction() == Both {
		direction = From
	}

	params := cypher.NewParams("")
	farPattern := "(n)"
	if far != nil {
		farPattern = "(n" + cypher.Labels(far.labels) + ")"
	}
	q := selectQuery{
		match:    s.node.matchSelf("self", params) + arrow(direction, "r", s.rt.Type()) + farPattern,
		desc:     opts.Desc,
		skip:     opts.Skip,
		limit:    opts.Limit,
		distinct: opts.Distinct,
	}

	nodeWhere, err := compileFilter(opts.Filter, "n", params)
	if err != nil {
		return selectQuery{}, nil, err
	}
	relWhere, err := compileFilter(opts.RelFilter, "r", params)
	if err != nil {
		return selectQuery{}, nil, err
	}
	for _, w := range []string{nodeWhere, relWhere} {
		if w != "" {
			q.where = append(q.where, w)
		}
	}

	switch opts.Returned {
	case ReturnNode, ReturnRelationship:
		variable := "n"
		if opts.Returned == ReturnRelationship {
			variable = "r"
		}
		q.with, q.ret = variable, variable
		if q.orderBy, err = orderKey(variable, opts.OrderBy); err != nil {
			return selectQuery{}, nil, err
		}
		if len(opts.Only) > 0 {
			if q.ret, err = projection(variable, opts.Only); err != nil {
				return selectQuery{}, nil, err
			}
		}
	case ReturnBoth:
		q.with, q.ret = "r, n", "r, n"
		if opts.OrderBy != "" {
			if _, err := splitQualified(opts.OrderBy, "r", "n"); err != nil {
				return selectQuery{}, nil, err
			}
			q.orderBy = opts.OrderBy
		}
		if len(opts.Only) > 0 {
			if q.ret, err = qualifiedProjection(opts.Only, "r", "n"); err != nil {
				return selectQuery{}, nil, err
			}
		}
	default:
		return selectQuery{}, nil, fmt.Errorf("%w: unknown returned value %d", ErrRelationship, opts.Returned)
	}
	return q, params, nil
}

// Get runs the relationship read. Only is ignored; use Project.
func (s *RelationshipSet) Get(ctx context.Context, opts RelGetOptions) ([]RelResult, error) {
	opts.Only = nil
	q, err := s.Query(opts)
	if err != nil {
		return nil, err
	}
	records, err := s.mapper.read(ctx, q)
	if err != nil {
		return nil, err
	}

	far, err := s.rt.farType()
	if err != nil {
		return nil, err
	}
	out := make([]RelResult, 0, len(records))
	for _, record := range records {
		var res RelResult
		if opts.Returned != ReturnRelationship {
			raw, err := record.Node("n")
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrRelationship, err)
			}
			if res.Node, err = s.mapper.resolve(far, raw); err != nil {
				return nil, err
			}
		}
		if opts.Returned != ReturnNode {
			raw, err := record.Relationship("r")
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrRelationship, err)
			}
			res.Relationship = s.hydrate(raw)
		}
		out = append(out, res)
	}
	return out, nil
}

// Nodes returns the far nodes.
func (s *RelationshipSet) Nodes(ctx context.Context, opts RelGetOptions) ([]*Node, error) {
	opts.Returned = ReturnNode
	results, err := s.Get(ctx, opts)
	if err != nil {
		return nil, err
	}
	out := make([]*Node, len(results))
	for i, res := range results {
		out[i] = res.Node
	}
	return out, nil
}

// Relationships returns the edges.
func (s *RelationshipSet) Relationships(ctx context.Context, opts RelGetOptions) ([]*RelationshipInstance, error) {
	opts.Returned = ReturnRelationship
	results, err := s.Get(ctx, opts)
	if err != nil {
		return nil, err
	}
	out := make([]*RelationshipInstance, len(results))
	for i, res := range results {
		out[i] = res.Relationship
	}
	return out, nil
}

// Project returns maps of the properties named in opts.Only.
func (s *RelationshipSet) Project(ctx context.Context, opts RelGetOptions) ([]map[string]any, error) {
	if len(opts.Only) == 0 {
		return nil, fmt.Errorf("%w: project needs at least one property", ErrRelationship)
	}
	q, err := s.Query(opts)
	if err != nil {
		return nil, err
	}
	records, err := s.mapper.read(ctx, q)
	if err != nil {
		return nil, err
	}
	return projections(records), nil
}

// Count returns how many rows Get would return.
func (s *RelationshipSet) Count(ctx context.Context, opts RelGetOptions) (int64, error) {
	q, err := s.CountQuery(opts)
	if err != nil {
		return 0, err
	}
	records, err := s.mapper.read(ctx, q)
	if err != nil {
		return 0, err
	}
	return countOf(records)
}

// Remove deletes the edges of this type between the bound node and other,
// in the declared direction. It returns how many edges were removed.
func (s *RelationshipSet) Remove(ctx context.Context, other *Node) (int, error) {
	if other == nil {
		return 0, fmt.Errorf("%w: %s.%s: no node to remove", ErrRelationship, s.rt.owner, s.rt.name)
	}
	return s.RemoveByUUID(ctx, other.UUID())
}

// RemoveByUUID is Remove for a node known only by uuid.
func (s *RelationshipSet) RemoveByUUID(ctx context.Context, uuid string) (int, error) {
	if err := s.node.bound(); err != nil {
		return 0, err
	}
	params := cypher.NewParams("")
	text := fmt.Sprintf("MATCH %s%s(n {uuid: %s})\nWITH r, properties(r) AS props\nDELETE r\nRETURN props",
		s.node.matchSelf("self", params), arrow(s.rt.Direction(), "r", s.rt.Type()), params.Set("other", uuid))

	records, err := s.mapper.write(ctx, cypher.NewQuery(text, params))
	if err != nil {
		return 0, fmt.Errorf("failed to remove %s.%s: %w", s.rt.owner, s.rt.name, err)
	}

	var files []string
	for _, record := range records {
		if props, ok := record["props"].(map[string]any); ok {
			files = append(files, storedFiles(s.rt.properties.list, props)...)
		}
	}
	s.mapper.removeFiles(ctx, files)
	return len(records), nil
}

func (s *RelationshipSet) hydrate(raw graphdb.Relationship) *RelationshipInstance {
	r := s.rt.Hydrate(raw)
	r.mapper = s.mapper
	return r
}
