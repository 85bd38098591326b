package graphdb

import (
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Record is one result row keyed by the RETURN aliases.
type Record map[string]any

// Node is a graph node as returned by a query.
type Node struct {
	ElementID string
	Labels    []string
	Props     map[string]any
}

// HasLabel reports whether label is among the node's labels.
func (n Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Relationship is a graph edge as returned by a query.
type Relationship struct {
	ElementID      string
	Type           string
	StartElementID string
	EndElementID   string
	Props          map[string]any
}

// Node returns the value under key as a Node.
func (r Record) Node(key string) (Node, error) {
	value, ok := r[key]
	if !ok {
		return Node{}, fmt.Errorf("record has no key %q", key)
	}
	node, ok := value.(Node)
	if !ok {
		return Node{}, fmt.Errorf("record key %q holds %T, not a node", key, value)
	}
	return node, nil
}

// Relationship returns the value under key as a Relationship.
func (r Record) Relationship(key string) (Relationship, error) {
	value, ok := r[key]
	if !ok {
		return Relationship{}, fmt.Errorf("record has no key %q", key)
	}
	rel, ok := value.(Relationship)
	if !ok {
		return Relationship{}, fmt.Errorf("record key %q holds %T, not a relationship", key, value)
	}
	return rel, nil
}

// Int returns the value under key as an int64.
func (r Record) Int(key string) (int64, error) {
	value, ok := r[key]
	if !ok {
		return 0, fmt.Errorf("record has no key %q", key)
	}
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("record key %q holds %T, not an integer", key, value)
	}
}

func convertRecord(record *neo4j.Record) Record {
	out := make(Record, len(record.Keys))
	for i, key := range record.Keys {
		out[key] = convertValue(record.Values[i])
	}
	return out
}

// convertValue maps driver graph types onto this package's types. Lists and
// maps are converted element by element; everything else passes through.
func convertValue(value any) any {
	switch v := value.(type) {
	case neo4j.Node:
		return Node{ElementID: v.ElementId, Labels: v.Labels, Props: v.Props}
	case neo4j.Relationship:
		return Relationship{
			ElementID:      v.ElementId,
			Type:           v.Type,
			StartElementID: v.StartElementId,
			EndElementID:   v.EndElementId,
			Props:          v.Props,
		}
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = convertValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = convertValue(item)
		}
		return out
	default:
		return value
	}
}
