package ogm

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/armchr/graphogm/internal/graphdb"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// Hydrate builds a Node of type t from a stored node. The properties are
// taken as they are; nothing is validated or defaulted.
func (t *NodeType) Hydrate(raw graphdb.Node) *Node {
	props := raw.Props
	if props == nil {
		props = make(map[string]any)
	}
	return &Node{
		ElementID: raw.ElementID,
		Labels:    raw.Labels,
		Props:     props,
		typ:       t,
	}
}

// Hydrate builds a RelationshipInstance of rt from a stored edge.
func (rt *RelationshipType) Hydrate(raw graphdb.Relationship) *RelationshipInstance {
	props := raw.Props
	if props == nil {
		props = make(map[string]any)
	}
	return &RelationshipInstance{
		ElementID:      raw.ElementID,
		Type:           raw.Type,
		StartElementID: raw.StartElementID,
		EndElementID:   raw.EndElementID,
		Props:          props,
		rt:             rt,
	}
}

// Hydrate binds a stored node to m as t, or as the most specific descendant
// of t its labels name.
func (m *Mapper) Hydrate(t *NodeType, raw graphdb.Node) *Node {
	return m.hydrateAs(t, raw)
}

// hydrateAs hydrates raw as the most specific registered type that is t or
// descends from it.
func (m *Mapper) hydrateAs(t *NodeType, raw graphdb.Node) *Node {
	typ := t
	if resolved, ok := m.registry.ResolveLabels(raw.Labels); ok && resolved.Is(t.name) {
		typ = resolved
	}
	n := typ.Hydrate(raw)
	n.mapper = m
	return n
}

// resolve hydrates raw as declared when a type is declared, otherwise as the
// most specific registered type among its labels.
func (m *Mapper) resolve(declared *NodeType, raw graphdb.Node) (*Node, error) {
	if declared != nil {
		n := declared.Hydrate(raw)
		n.mapper = m
		return n, nil
	}
	t, ok := m.registry.ResolveLabels(raw.Labels)
	if !ok {
		return nil, fmt.Errorf("%w: no registered type matches labels %v", ErrRelationship, raw.Labels)
	}
	n := t.Hydrate(raw)
	n.mapper = m
	return n, nil
}

func (m *Mapper) nodes(t *NodeType, records []graphdb.Record, key string) ([]*Node, error) {
	out := make([]*Node, 0, len(records))
	for _, r := range records {
		raw, err := r.Node(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNode, err)
		}
		out = append(out, m.hydrateAs(t, raw))
	}
	return out, nil
}

// Serialize converts stored property values into JSON friendly ones:
// temporal values become their ISO 8601 text.
func Serialize(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = serializeValue(v)
	}
	return out
}

func serializeValue(value any) any {
	switch v := value.(type) {
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case dbtype.Date:
		return v.Time().Format("2006-01-02")
	case dbtype.LocalTime:
		return v.Time().Format("15:04:05.999999999")
	case dbtype.Time:
		return v.Time().Format("15:04:05.999999999Z07:00")
	case dbtype.LocalDateTime:
		return v.Time().Format("2006-01-02T15:04:05.999999999")
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = serializeValue(item)
		}
		return out
	case fmt.Stringer:
		return v.String()
	default:
		return value
	}
}

type nodeJSON struct {
	Type       string         `json:"type"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(nodeJSON{Type: n.typ.name, Labels: n.Labels, Properties: Serialize(n.Props)})
}

type relationshipJSON struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

func (r *RelationshipInstance) MarshalJSON() ([]byte, error) {
	return json.Marshal(relationshipJSON{Type: r.Type, Properties: Serialize(r.Props)})
}
