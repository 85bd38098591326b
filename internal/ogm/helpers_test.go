package ogm

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/armchr/graphogm/internal/graphdb"
	"github.com/armchr/graphogm/internal/graphdb/graphdbtest"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestMapper(t *testing.T, reg *Registry, opts ...Option) (*Mapper, *graphdbtest.FakeDB) {
	t.Helper()
	db := graphdbtest.New()
	return NewMapper(db, reg, zaptest.NewLogger(t), opts...), db
}

func permissionSchema() NodeSchema {
	return NodeSchema{
		Name: "Permission",
		Properties: []Property{
			{Name: "codename", Required: true, Unique: true},
			{Name: "description", Required: true},
		},
	}
}

// socialRegistry declares users in groups, friendships both ways and
// sessions that die with their user.
func socialRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	_, err := reg.Register(NodeSchema{
		Name: "User",
		Properties: []Property{
			{Name: "email", Required: true, Unique: true},
			{Name: "name"},
			{Name: "avatar", ExternallyStored: true},
		},
		Relationships: map[string]RelationshipSchema{
			"groups":  {Type: "IS_IN", Direction: From, Target: "Group"},
			"friends": {Type: "FRIEND", Direction: Both, Target: Self},
			"session": {Type: "IS_SESSION_OF", Direction: To, Start: "Session", OnDelete: Cascade, Unique: true},
			"follows": {Type: "FOLLOWS", Direction: From, Properties: []Property{{Name: "since"}}},
		},
	})
	require.NoError(t, err)
	_, err = reg.Register(NodeSchema{
		Name:       "Group",
		Properties: []Property{{Name: "name", Required: true, Unique: true}},
		Relationships: map[string]RelationshipSchema{
			"users": {Type: "IS_IN", Direction: To, Start: "User"},
		},
	})
	require.NoError(t, err)
	_, err = reg.Register(NodeSchema{
		Name:       "Session",
		Properties: []Property{{Name: "session_key", Required: true, Unique: true}},
		Relationships: map[string]RelationshipSchema{
			"user": {Type: "IS_SESSION_OF", Direction: From, Target: "User", Unique: true},
		},
	})
	require.NoError(t, err)
	return reg
}

func lookupType(t *testing.T, reg *Registry, name string) *NodeType {
	t.Helper()
	typ, ok := reg.Lookup(name)
	require.True(t, ok, name)
	return typ
}

// hydrated returns a bound node as if it had been read from the store.
func hydrated(m *Mapper, t *NodeType, props map[string]any) *Node {
	n := t.Hydrate(graphdb.Node{ElementID: "4:test:" + props[UUIDKey].(string), Labels: t.Labels(), Props: props})
	n.mapper = m
	return n
}

// echoCreate answers node CREATE queries with the node that was written.
func echoCreate(labels []string) func(graphdbtest.Call) graphdbtest.Response {
	return func(c graphdbtest.Call) graphdbtest.Response {
		props := c.Params["props"].(map[string]any)
		return graphdbtest.Response{Records: []graphdb.Record{graphdbtest.NodeRecord("n", labels, props)}}
	}
}

// echoEdges answers edge CREATE queries with the edges that were written.
func echoEdges(typ string) func(graphdbtest.Call) graphdbtest.Response {
	return func(c graphdbtest.Call) graphdbtest.Response {
		record := graphdb.Record{"r": edge(typ, c.Params["props"].(map[string]any))}
		if reverse, ok := c.Params["reverse"].(map[string]any); ok {
			record["r2"] = edge(typ, reverse)
		}
		return graphdbtest.Response{Records: []graphdb.Record{record}}
	}
}

func edge(typ string, props map[string]any) graphdb.Relationship {
	id, _ := props[UUIDKey].(string)
	return graphdb.Relationship{ElementID: "5:test:" + id, Type: typ, Props: props}
}

func countRecord(n int64) []graphdb.Record {
	return []graphdb.Record{{"count": n}}
}

// memoryStore keeps created nodes so unique checks and lookups can be
// answered like the store would.
type memoryStore struct {
	mu    sync.Mutex
	nodes []map[string]any
}

func (s *memoryStore) install(db *graphdbtest.FakeDB, label string, labels []string) {
	db.On("CREATE (n:"+label, func(c graphdbtest.Call) graphdbtest.Response {
		s.mu.Lock()
		s.nodes = append(s.nodes, c.Params["props"].(map[string]any))
		s.mu.Unlock()
		return echoCreate(labels)(c)
	})
	db.On("MATCH (n:"+label+")\nWHERE n.", func(c graphdbtest.Call) graphdbtest.Response {
		key := strings.TrimPrefix(c.Query, "MATCH (n:"+label+")\nWHERE n.")
		key = key[:strings.Index(key, " ")]
		matches := s.match(key, c.Params["p0"])
		if strings.Contains(c.Query, "RETURN count(n) AS count") {
			return graphdbtest.Response{Records: countRecord(int64(len(matches)))}
		}
		var records []graphdb.Record
		for _, props := range matches {
			records = append(records, graphdbtest.NodeRecord("n", labels, props))
		}
		return graphdbtest.Response{Records: records}
	})
}

func (s *memoryStore) match(key string, value any) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []map[string]any
	for _, props := range s.nodes {
		if props[key] == value {
			out = append(out, props)
		}
	}
	return out
}

func (s *memoryStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes)
}

type recordingPurger struct {
	mu    sync.Mutex
	paths []string
}

func (p *recordingPurger) Purge(ctx context.Context, paths []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = append(p.paths, paths...)
	return nil
}
