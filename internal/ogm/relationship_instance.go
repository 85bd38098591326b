package ogm

import (
	"context"
	"fmt"

	"github.com/armchr/graphogm/internal/cypher"
)

// RelationshipInstance is a materialized edge.
type RelationshipInstance struct {
	ElementID      string
	Type           string
	StartElementID string
	EndElementID   string
	Props          map[string]any

	rt     *RelationshipType
	mapper *Mapper
}

func (r *RelationshipInstance) Descriptor() *RelationshipType {
	return r.rt
}

func (r *RelationshipInstance) UUID() string {
	id, _ := r.Props[UUIDKey].(string)
	return id
}

func (r *RelationshipInstance) Get(name string) (any, bool) {
	v, ok := r.Props[name]
	return v, ok
}

func (r *RelationshipInstance) bound() error {
	if r.mapper == nil || r.rt == nil {
		return fmt.Errorf("%w: relationship is not bound to a mapper", ErrRelationship)
	}
	return nil
}

func (r *RelationshipInstance) matchSelf(params *cypher.Params) string {
	return fmt.Sprintf("()-[r:%s {uuid: %s}]->()", r.rt.Type(), params.Set("uuid", r.UUID()))
}

// Update writes one edge property under the same rules as Node.Update.
func (r *RelationshipInstance) Update(ctx context.Context, name string, value any) error {
	if err := r.bound(); err != nil {
		return err
	}
	m, rt := r.mapper, r.rt
	where := rt.owner + "." + rt.name
	if name == UUIDKey {
		return fmt.Errorf("%w: %s.%s cannot be updated", ErrProperty, where, name)
	}
	if err := cypher.CheckIdentifier("property", name); err != nil {
		return fmt.Errorf("%w: %v", ErrProperty, err)
	}

	p, declared := rt.properties.get(name)
	current, present := r.Props[name]
	if !declared && !present && !m.policyAllowsMissing(where, name) {
		return nil
	}

	p.Name = name
	u, err := m.prepareUpdate(ctx, where, p, r.Props, value)
	if err != nil {
		return err
	}
	if p.Unique {
		if err := m.checkEdgeUnique(ctx, rt, map[string]any{name: u.value}, r.UUID()); err != nil {
			m.removeFiles(ctx, u.uploaded)
			return err
		}
	}

	params := cypher.NewParams("")
	text := "MATCH " + r.matchSelf(params)
	if current != nil {
		text += "\nWHERE " + cypher.Property("r", name) + " IS NOT NULL"
	}
	text += fmt.Sprintf("\nSET %s = %s\nRETURN r", cypher.Property("r", name), params.Set("value", u.value))

	records, err := m.write(ctx, cypher.NewQuery(text, params))
	if err != nil {
		m.removeFiles(ctx, u.uploaded)
		return fmt.Errorf("failed to update %s.%s: %w", where, name, err)
	}
	if len(records) == 0 {
		m.removeFiles(ctx, u.uploaded)
		return fmt.Errorf("%w: %s edge with uuid %q", ErrNotFound, rt.Type(), r.UUID())
	}
	m.apply(ctx, r.Props, name, u)
	return nil
}

// Delete removes the edge and its stored files. The nodes stay.
func (r *RelationshipInstance) Delete(ctx context.Context) error {
	if err := r.bound(); err != nil {
		return err
	}
	params := cypher.NewParams("")
	text := "MATCH " + r.matchSelf(params) + "\nDELETE r"
	if _, err := r.mapper.write(ctx, cypher.NewQuery(text, params)); err != nil {
		return fmt.Errorf("failed to delete %s edge %s: %w", r.rt.Type(), r.UUID(), err)
	}
	r.mapper.removeFiles(ctx, storedFiles(r.rt.properties.list, r.Props))
	return nil
}
