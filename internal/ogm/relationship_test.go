package ogm

import (
	"context"
	"errors"
	"testing"

	"github.com/armchr/graphogm/internal/filter"
	"github.com/armchr/graphogm/internal/graphdb"
	"github.com/armchr/graphogm/internal/graphdb/graphdbtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func relSet(t *testing.T, n *Node, name string) *RelationshipSet {
	t.Helper()
	s, err := n.Rel(name)
	require.NoError(t, err)
	return s
}

func TestAdd_DeclaredDirection(t *testing.T) {
	reg := socialRegistry(t)
	m, db := newTestMapper(t, reg)
	db.On("CREATE", echoEdges("IS_IN"))
	ctx := context.Background()

	user := hydrated(m, lookupType(t, reg, "User"), map[string]any{"uuid": "u1", "email": "a@x"})
	group := hydrated(m, lookupType(t, reg, "Group"), map[string]any{"uuid": "g1", "name": "staff"})

	edges, err := relSet(t, user, "groups").Add(ctx, group, nil)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Len(t, edges[0].UUID(), 32)
	assert.Equal(t, "IS_IN", edges[0].Type)

	last := db.Last()
	assert.True(t, last.Write)
	assert.Equal(t, "MATCH (self:User {uuid: $self}), (n:Group {uuid: $other})\nCREATE (self)-[r:IS_IN $props]->(n)\nRETURN r", last.Query)
	assert.Equal(t, "u1", last.Params["self"])
	assert.Equal(t, "g1", last.Params["other"])

	_, err = relSet(t, group, "users").Add(ctx, user, nil)
	require.NoError(t, err)
	assert.Equal(t, "MATCH (self:Group {uuid: $self}), (n:User {uuid: $other})\nCREATE (self)<-[r:IS_IN $props]-(n)\nRETURN r", db.Last().Query,
		"a to relationship always ends at the declaring node")
}

func TestAdd_BidirectionalPair(t *testing.T) {
	reg := socialRegistry(t)
	m, db := newTestMapper(t, reg)
	db.On("CREATE", echoEdges("FRIEND"))
	userT := lookupType(t, reg, "User")

	alice := hydrated(m, userT, map[string]any{"uuid": "u1", "email": "a@x"})
	bob := hydrated(m, userT, map[string]any{"uuid": "u2", "email": "b@x"})

	edges, err := relSet(t, alice, "friends").Add(context.Background(), bob, nil)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, "FRIEND", edges[0].Type)
	assert.Equal(t, "FRIEND", edges[1].Type)
	assert.NotEqual(t, edges[0].UUID(), edges[1].UUID())

	writes := db.Writes()
	require.Len(t, writes, 1, "both edges are written by one query")
	assert.Equal(t,
		"MATCH (self:User {uuid: $self}), (n:User {uuid: $other})\n"+
			"CREATE (self)-[r:FRIEND $props]->(n), (self)<-[r2:FRIEND $reverse]-(n)\nRETURN r, r2",
		writes[0].Query)
}

func TestAdd_Rejections(t *testing.T) {
	reg := socialRegistry(t)
	ctx := context.Background()

	t.Run("wrong endpoint type", func(t *testing.T) {
		m, db := newTestMapper(t, reg)
		user := hydrated(m, lookupType(t, reg, "User"), map[string]any{"uuid": "u1"})
		other := hydrated(m, lookupType(t, reg, "User"), map[string]any{"uuid": "u2"})
		_, err := relSet(t, user, "groups").Add(ctx, other, nil)
		assert.True(t, errors.Is(err, ErrRelationship))
		assert.Empty(t, db.Calls())
	})

	t.Run("self loop", func(t *testing.T) {
		m, db := newTestMapper(t, reg)
		user := hydrated(m, lookupType(t, reg, "User"), map[string]any{"uuid": "u1"})
		_, err := relSet(t, user, "friends").Add(ctx, user, nil)
		assert.True(t, errors.Is(err, ErrRelationship))
		assert.Empty(t, db.Calls())
	})

	t.Run("unique relationship taken", func(t *testing.T) {
		m, db := newTestMapper(t, reg)
		db.On("MATCH (self:Session", func(graphdbtest.Call) graphdbtest.Response {
			return graphdbtest.Response{Records: countRecord(1)}
		})
		session := hydrated(m, lookupType(t, reg, "Session"), map[string]any{"uuid": "s1"})
		user := hydrated(m, lookupType(t, reg, "User"), map[string]any{"uuid": "u1"})

		_, err := relSet(t, session, "user").Add(ctx, user, nil)
		assert.True(t, errors.Is(err, ErrRelationship))
		assert.Equal(t, "MATCH (self:Session {uuid: $self})-[r:IS_SESSION_OF]->()\nRETURN count(r) AS count", db.Last().Query)
		assert.Empty(t, db.Writes())
	})

	t.Run("undeclared edge property", func(t *testing.T) {
		m, _ := newTestMapper(t, reg)
		user := hydrated(m, lookupType(t, reg, "User"), map[string]any{"uuid": "u1"})
		group := hydrated(m, lookupType(t, reg, "Group"), map[string]any{"uuid": "g1"})
		_, err := relSet(t, user, "groups").Add(ctx, group, map[string]any{"role": "admin"})
		assert.True(t, errors.Is(err, ErrProperty))
	})

	t.Run("endpoint vanished", func(t *testing.T) {
		m, _ := newTestMapper(t, reg)
		user := hydrated(m, lookupType(t, reg, "User"), map[string]any{"uuid": "u1"})
		group := hydrated(m, lookupType(t, reg, "Group"), map[string]any{"uuid": "g1"})
		_, err := relSet(t, user, "groups").Add(ctx, group, nil)
		assert.True(t, errors.Is(err, ErrRelationship))
	})

	t.Run("unknown accessor", func(t *testing.T) {
		m, _ := newTestMapper(t, reg)
		user := hydrated(m, lookupType(t, reg, "User"), map[string]any{"uuid": "u1"})
		_, err := user.Rel("enemies")
		assert.True(t, errors.Is(err, ErrRelationship))
	})
}

func TestAddByUUID(t *testing.T) {
	reg := socialRegistry(t)
	m, db := newTestMapper(t, reg)
	db.On("CREATE", echoEdges("FOLLOWS"))
	user := hydrated(m, lookupType(t, reg, "User"), map[string]any{"uuid": "u1"})
	ctx := context.Background()

	db.Push(graphdbtest.NodeRecord("n", []string{"Group"}, map[string]any{"uuid": "g1", "name": "staff"}))
	edges, err := relSet(t, user, "follows").AddByUUID(ctx, "g1", map[string]any{"since": 2020})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, int64(2020), edges[0].Props["since"])
	assert.Equal(t, "MATCH (n {uuid: $uuid})\nRETURN n", db.Calls()[0].Query)
	assert.Contains(t, db.Last().Query, "(n:Group {uuid: $other})", "the far type comes from the stored labels")

	db.Reset()
	db.Push(graphdbtest.NodeRecord("n", []string{"Group"}, map[string]any{"uuid": "g1"}))
	_, err = relSet(t, user, "groups").AddByUUID(ctx, "g1", nil)
	require.NoError(t, err)
	assert.Equal(t, "MATCH (n:Group {uuid: $uuid})\nWITH n\nRETURN n", db.Calls()[0].Query, "declared far types are looked up directly")

	_, err = relSet(t, user, "groups").AddByUUID(ctx, "missing", nil)
	assert.True(t, errors.Is(err, ErrRelationship))
	assert.True(t, errors.Is(err, ErrNotFound))

	db.Push(graphdbtest.NodeRecord("n", []string{"Legacy"}, map[string]any{"uuid": "x1"}))
	_, err = relSet(t, user, "follows").AddByUUID(ctx, "x1", nil)
	assert.True(t, errors.Is(err, ErrRelationship))
}

func TestRelQuery_Directionality(t *testing.T) {
	reg := socialRegistry(t)
	m, _ := newTestMapper(t, reg)
	user := hydrated(m, lookupType(t, reg, "User"), map[string]any{"uuid": "u1"})
	groups := relSet(t, user, "groups")

	tests := []struct {
		direction Direction
		pattern   string
	}{
		{0, "(self:User {uuid: $self})-[r:IS_IN]-(n:Group)"},
		{Both, "(self:User {uuid: $self})-[r:IS_IN]-(n:Group)"},
		{From, "(self:User {uuid: $self})-[r:IS_IN]->(n:Group)"},
		{To, "(self:User {uuid: $self})<-[r:IS_IN]-(n:Group)"},
	}
	for _, tt := range tests {
		t.Run(tt.direction.String(), func(t *testing.T) {
			q, err := groups.Query(RelGetOptions{Direction: tt.direction})
			require.NoError(t, err)
			assert.Equal(t, "MATCH "+tt.pattern+"\nWITH n\nRETURN n", q.Text)
		})
	}

	q, err := relSet(t, user, "friends").Query(RelGetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "MATCH (self:User {uuid: $self})-[r:FRIEND]->(n:User)\nWITH n\nRETURN n", q.Text,
		"pairs of both-way edges are matched through the outgoing one")

	q, err = relSet(t, user, "follows").Query(RelGetOptions{Direction: From})
	require.NoError(t, err)
	assert.Equal(t, "MATCH (self:User {uuid: $self})-[r:FOLLOWS]->(n)\nWITH n\nRETURN n", q.Text)
}

func TestRelQuery_Shapes(t *testing.T) {
	reg := socialRegistry(t)
	m, _ := newTestMapper(t, reg)
	user := hydrated(m, lookupType(t, reg, "User"), map[string]any{"uuid": "u1"})
	follows := relSet(t, user, "follows")

	q, err := follows.Query(RelGetOptions{
		Direction: From,
		Returned:  ReturnBoth,
		Filter:    filter.Q("name", "staff"),
		RelFilter: filter.Q("since__gt", 2020),
		OrderBy:   "r.since",
		Desc:      true,
		Skip:      5,
		Limit:     10,
		Only:      []string{"r.since", "n.name"},
	})
	require.NoError(t, err)
	assert.Equal(t,
		"MATCH (self:User {uuid: $self})-[r:FOLLOWS]->(n)\n"+
			"WHERE (n.name = $p0) AND (r.since > $p1)\n"+
			"WITH r, n\nORDER BY r.since DESC\nSKIP 5\nLIMIT 10\n"+
			"RETURN r.since AS `r.since`, n.name AS `n.name`",
		q.Text)
	assert.Equal(t, map[string]any{"self": "u1", "p0": "staff", "p1": int64(2020)}, q.Params)

	q, err = follows.Query(RelGetOptions{Direction: From, Returned: ReturnRelationship, OrderBy: "since", Distinct: true})
	require.NoError(t, err)
	assert.Equal(t, "MATCH (self:User {uuid: $self})-[r:FOLLOWS]->(n)\nWITH r\nORDER BY r.since\nRETURN DISTINCT r", q.Text)

	for name, opts := range map[string]RelGetOptions{
		"unqualified order with both": {Returned: ReturnBoth, OrderBy: "since"},
		"foreign variable":            {Returned: ReturnBoth, OrderBy: "x.since"},
		"unqualified only with both":  {Returned: ReturnBoth, Only: []string{"since"}},
		"negative limit":              {Limit: -1},
	} {
		_, err := follows.Query(opts)
		assert.True(t, errors.Is(err, ErrNode), name)
	}
}

func TestRelCountQuery(t *testing.T) {
	reg := socialRegistry(t)
	m, db := newTestMapper(t, reg)
	user := hydrated(m, lookupType(t, reg, "User"), map[string]any{"uuid": "u1"})
	groups := relSet(t, user, "groups")

	q, err := groups.CountQuery(RelGetOptions{Direction: From})
	require.NoError(t, err)
	assert.Equal(t, "MATCH (self:User {uuid: $self})-[r:IS_IN]->(n:Group)\nWITH n\nRETURN count(n) AS count", q.Text)

	q, err = groups.CountQuery(RelGetOptions{Returned: ReturnRelationship, Distinct: true})
	require.NoError(t, err)
	assert.Equal(t, "MATCH (self:User {uuid: $self})-[r:IS_IN]-(n:Group)\nWITH r\nRETURN count(DISTINCT r) AS count", q.Text)

	db.Push(countRecord(3)...)
	n, err := groups.Count(context.Background(), RelGetOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestRelGet_Hydration(t *testing.T) {
	reg := socialRegistry(t)
	m, db := newTestMapper(t, reg)
	user := hydrated(m, lookupType(t, reg, "User"), map[string]any{"uuid": "u1"})
	ctx := context.Background()

	db.Push(
		graphdb.Record{
			"r": edge("FOLLOWS", map[string]any{"uuid": "r1", "since": int64(2020)}),
			"n": graphdb.Node{ElementID: "4:test:g1", Labels: []string{"Group"}, Props: map[string]any{"uuid": "g1"}},
		},
	)
	results, err := relSet(t, user, "follows").Get(ctx, RelGetOptions{Returned: ReturnBoth})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Group", results[0].Node.Type().Name(), "unconstrained far ends resolve through labels")
	assert.Equal(t, "r1", results[0].Relationship.UUID())
	assert.Equal(t, "follows", results[0].Relationship.Descriptor().Name())

	db.Push(graphdbtest.NodeRecord("n", []string{"Legacy"}, map[string]any{"uuid": "x1"}))
	_, err = relSet(t, user, "follows").Nodes(ctx, RelGetOptions{})
	assert.True(t, errors.Is(err, ErrRelationship))

	db.Push(graphdbtest.NodeRecord("n", []string{"Legacy"}, map[string]any{"uuid": "g2"}))
	nodes, err := relSet(t, user, "groups").Nodes(ctx, RelGetOptions{})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "Group", nodes[0].Type().Name(), "a declared far type is used without a label scan")

	db.Push(graphdb.Record{"r": edge("IS_IN", map[string]any{"uuid": "r9"})})
	rels, err := relSet(t, user, "groups").Relationships(ctx, RelGetOptions{})
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "r9", rels[0].UUID())
	assert.Equal(t, "MATCH (self:User {uuid: $self})-[r:IS_IN]-(n:Group)\nWITH r\nRETURN r", db.Last().Query)

	db.Push(graphdb.Record{"since": int64(2020)})
	rows, err := relSet(t, user, "follows").Project(ctx, RelGetOptions{Only: []string{"since"}, Returned: ReturnRelationship})
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"since": int64(2020)}}, rows)
	assert.Equal(t, "MATCH (self:User {uuid: $self})-[r:FOLLOWS]-(n)\nWITH r\nRETURN r.since AS since", db.Last().Query)
}

func TestRemove(t *testing.T) {
	reg := socialRegistry(t)
	m, db := newTestMapper(t, reg)
	user := hydrated(m, lookupType(t, reg, "User"), map[string]any{"uuid": "u1"})
	group := hydrated(m, lookupType(t, reg, "Group"), map[string]any{"uuid": "g1"})

	db.Push(graphdb.Record{"props": map[string]any{"uuid": "r1"}})
	removed, err := relSet(t, user, "groups").Remove(context.Background(), group)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	last := db.Last()
	assert.True(t, last.Write)
	assert.Equal(t,
		"MATCH (self:User {uuid: $self})-[r:IS_IN]->(n {uuid: $other})\nWITH r, properties(r) AS props\nDELETE r\nRETURN props",
		last.Query)
	assert.Equal(t, "g1", last.Params["other"])

	removed, err = relSet(t, user, "friends").RemoveByUUID(context.Background(), "u2")
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Contains(t, db.Last().Query, "-[r:FRIEND]-(n {uuid: $other})", "both edges of a pair are removed")
}

func TestRelationshipInstance_UpdateDelete(t *testing.T) {
	reg := socialRegistry(t)
	m, db := newTestMapper(t, reg)
	db.On("CREATE", echoEdges("FOLLOWS"))
	db.On("SET", func(c graphdbtest.Call) graphdbtest.Response {
		return graphdbtest.Response{Records: []graphdb.Record{{"r": edge("FOLLOWS", map[string]any{"uuid": "r1"})}}}
	})
	ctx := context.Background()
	user := hydrated(m, lookupType(t, reg, "User"), map[string]any{"uuid": "u1"})
	group := hydrated(m, lookupType(t, reg, "Group"), map[string]any{"uuid": "g1"})

	edges, err := relSet(t, user, "follows").Add(ctx, group, map[string]any{"since": 2020})
	require.NoError(t, err)
	r := edges[0]

	require.NoError(t, r.Update(ctx, "since", 2021))
	assert.Equal(t,
		"MATCH ()-[r:FOLLOWS {uuid: $uuid}]->()\nWHERE r.since IS NOT NULL\nSET r.since = $value\nRETURN r",
		db.Last().Query)
	assert.Equal(t, int64(2021), r.Props["since"])

	require.NoError(t, r.Update(ctx, "since", nil))
	_, held := r.Props["since"]
	assert.False(t, held)
	require.NoError(t, r.Update(ctx, "since", 2022))
	assert.Equal(t, "MATCH ()-[r:FOLLOWS {uuid: $uuid}]->()\nSET r.since = $value\nRETURN r", db.Last().Query)
	assert.Equal(t, int64(2022), r.Props["since"])
	assert.True(t, errors.Is(r.Update(ctx, "uuid", "x"), ErrProperty))

	require.NoError(t, r.Delete(ctx))
	assert.Equal(t, "MATCH ()-[r:FOLLOWS {uuid: $uuid}]->()\nDELETE r", db.Last().Query)
	assert.Equal(t, r.UUID(), db.Last().Params["uuid"])
}

func TestDelete_CascadeAndProtect(t *testing.T) {
	reg := socialRegistry(t)
	ctx := context.Background()

	t.Run("cascade", func(t *testing.T) {
		m, db := newTestMapper(t, reg)
		db.On("<-[r:IS_SESSION_OF]-(n:Session)", func(graphdbtest.Call) graphdbtest.Response {
			return graphdbtest.Response{Records: []graphdb.Record{{
				"r": edge("IS_SESSION_OF", map[string]any{"uuid": "r1"}),
				"n": graphdb.Node{Labels: []string{"Session"}, Props: map[string]any{"uuid": "s1", "session_key": "k"}},
			}}}
		})
		user := hydrated(m, lookupType(t, reg, "User"), map[string]any{"uuid": "u1", "email": "a@x"})

		require.NoError(t, user.Delete(ctx))

		writes := db.Writes()
		require.Len(t, writes, 2)
		assert.Equal(t, "MATCH (n:User {uuid: $self})\nDETACH DELETE n", writes[0].Query)
		assert.Equal(t, "u1", writes[0].Params["self"])
		assert.Equal(t, "MATCH (n:Session {uuid: $self})\nDETACH DELETE n", writes[1].Query)
		assert.Equal(t, "s1", writes[1].Params["self"])
	})

	t.Run("protect", func(t *testing.T) {
		m, db := newTestMapper(t, reg)
		group := hydrated(m, lookupType(t, reg, "Group"), map[string]any{"uuid": "g1", "name": "staff"})

		require.NoError(t, group.Delete(ctx))

		calls := db.Calls()
		require.Len(t, calls, 1, "related users are neither read nor deleted")
		assert.Equal(t, "MATCH (n:Group {uuid: $self})\nDETACH DELETE n", calls[0].Query)
	})

	t.Run("cycles stop", func(t *testing.T) {
		reg := NewRegistry()
		item := reg.MustRegister(NodeSchema{Name: "Item", Relationships: map[string]RelationshipSchema{
			"parts": {Type: "HAS", Direction: From, Target: Self, OnDelete: Cascade},
		}})
		m, db := newTestMapper(t, reg)
		next := map[string]string{"i1": "i2", "i2": "i1"}
		db.On("-[r:HAS]->(n:Item)", func(c graphdbtest.Call) graphdbtest.Response {
			other := next[c.Params["self"].(string)]
			return graphdbtest.Response{Records: []graphdb.Record{{
				"r": edge("HAS", map[string]any{"uuid": "r-" + other}),
				"n": graphdb.Node{Labels: []string{"Item"}, Props: map[string]any{"uuid": other}},
			}}}
		})

		require.NoError(t, hydrated(m, item, map[string]any{"uuid": "i1"}).Delete(ctx))
		assert.Len(t, db.Writes(), 2)
	})
}
