// Package ogm maps registered node and relationship types onto a graph
// store. Writes validate against the declared schema before a query is
// sent; reads hydrate store records without re-validating them.
package ogm

import (
	"context"
	"errors"
	"fmt"

	"github.com/armchr/graphogm/internal/cdn"
	"github.com/armchr/graphogm/internal/cypher"
	"github.com/armchr/graphogm/internal/graphdb"
	"github.com/armchr/graphogm/internal/storage"

	"go.uber.org/zap"
)

// Mapper executes node and relationship operations for the types of one
// registry. It is safe for concurrent use.
type Mapper struct {
	db            graphdb.GraphDatabase
	registry      *Registry
	logger        *zap.Logger
	files         *storage.Files
	purger        cdn.Purger
	createMissing bool
}

type Option func(*Mapper)

// WithFiles enables externally stored properties.
func WithFiles(files *storage.Files) Option {
	return func(m *Mapper) {
		m.files = files
	}
}

// WithPurger purges replaced and removed files from the CDN.
func WithPurger(p cdn.Purger) Option {
	return func(m *Mapper) {
		if p != nil {
			m.purger = p
		}
	}
}

// WithCreatePropertyIfNotFound lets Update write properties the node does
// not have yet. Without it such updates log a warning and do nothing.
func WithCreatePropertyIfNotFound(enabled bool) Option {
	return func(m *Mapper) {
		m.createMissing = enabled
	}
}

func NewMapper(db graphdb.GraphDatabase, registry *Registry, logger *zap.Logger, opts ...Option) *Mapper {
	m := &Mapper{
		db:       db,
		registry: registry,
		logger:   logger,
		purger:   cdn.Noop{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Mapper) Registry() *Registry {
	return m.registry
}

// Type looks up a registered type by name.
func (m *Mapper) Type(name string) (*NodeType, error) {
	t, ok := m.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown type %q", ErrNode, name)
	}
	return t, nil
}

func (m *Mapper) read(ctx context.Context, q cypher.Query) ([]graphdb.Record, error) {
	return m.db.ExecuteRead(ctx, q.Text, q.Params)
}

func (m *Mapper) write(ctx context.Context, q cypher.Query) ([]graphdb.Record, error) {
	records, err := m.db.ExecuteWrite(ctx, q.Text, q.Params)
	if err != nil {
		if errors.Is(err, graphdb.ErrConstraintViolation) {
			return nil, fmt.Errorf("%w: %w", ErrStoreConstraint, err)
		}
		return nil, err
	}
	return records, nil
}

// exists runs a count query and reports whether it counted anything.
func (m *Mapper) exists(ctx context.Context, q cypher.Query) (bool, error) {
	records, err := m.read(ctx, q)
	if err != nil {
		return false, err
	}
	n, err := countOf(records)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// checkUnique fails with ErrUniqueConstraint when a node carrying labels
// already holds one of the unique values. exclude, when set, is the uuid of
// the node being updated.
func (m *Mapper) checkUnique(ctx context.Context, owner string, labels []string, props []Property, values map[string]any, exclude string) error {
	for _, p := range props {
		value, ok := values[p.Name]
		if !ok || value == nil {
			continue
		}
		if _, pending := value.(storage.Upload); pending {
			continue
		}
		params := cypher.NewParams("")
		text := fmt.Sprintf("MATCH (n%s)\nWHERE %s = %s", cypher.Labels(labels), cypher.Property("n", p.Name), params.Add(value))
		if exclude != "" {
			text += " AND n.uuid <> " + params.Set("exclude", exclude)
		}
		text += "\nRETURN count(n) AS count"

		found, err := m.exists(ctx, cypher.NewQuery(text, params))
		if err != nil {
			return err
		}
		if found {
			return fmt.Errorf("%w: %s.%s = %v already exists", ErrUniqueConstraint, owner, p.Name, value)
		}
	}
	return nil
}

// checkEdgeUnique is checkUnique for the properties of rt edges.
func (m *Mapper) checkEdgeUnique(ctx context.Context, rt *RelationshipType, values map[string]any, exclude string) error {
	for _, p := range rt.properties.list {
		value, ok := values[p.Name]
		if !p.Unique || !ok || value == nil {
			continue
		}
		params := cypher.NewParams("")
		text := fmt.Sprintf("MATCH ()-[r:%s]->()\nWHERE %s = %s", rt.Type(), cypher.Property("r", p.Name), params.Add(value))
		if exclude != "" {
			text += " AND r.uuid <> " + params.Set("exclude", exclude)
		}
		text += "\nRETURN count(r) AS count"

		found, err := m.exists(ctx, cypher.NewQuery(text, params))
		if err != nil {
			return err
		}
		if found {
			return fmt.Errorf("%w: %s.%s.%s = %v already exists", ErrUniqueConstraint, rt.owner, rt.name, p.Name, value)
		}
	}
	return nil
}

// policyAllowsMissing applies the create_property_if_not_found policy to an
// undeclared property the instance does not hold yet.
func (m *Mapper) policyAllowsMissing(owner, name string) bool {
	if m.createMissing {
		return true
	}
	m.logger.Warn("Property not found on instance, update skipped",
		zap.String("type", owner),
		zap.String("property", name))
	return false
}
