package ogm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_LabelsAndInheritance(t *testing.T) {
	reg := NewRegistry()
	user := reg.MustRegister(NodeSchema{
		Name:       "User",
		Properties: []Property{{Name: "email", Required: true, Unique: true}},
		Relationships: map[string]RelationshipSchema{
			"friends": {Type: "FRIEND", Direction: Both, Target: Self},
		},
	})
	admin := reg.MustRegister(NodeSchema{
		Name:       "Admin",
		Extends:    "User",
		Labels:     []string{"Staff"},
		Properties: []Property{{Name: "level", Default: 1}},
	})

	assert.Equal(t, []string{"User"}, user.Labels())
	assert.Equal(t, []string{"Admin", "User", "Staff"}, admin.Labels())
	assert.True(t, admin.Is("User"))
	assert.False(t, user.Is("Admin"))

	var names []string
	for _, p := range admin.Properties() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"uuid", "email", "level"}, names)

	rt, ok := admin.Relationship("friends")
	require.True(t, ok)
	assert.Equal(t, "Admin", rt.Owner())
	assert.Equal(t, []string{"friends"}, admin.RelationshipNames())

	uuidProp, ok := admin.Property(UUIDKey)
	require.True(t, ok)
	assert.True(t, uuidProp.Unique)
	assert.Len(t, uuidProp.DefaultFunc().(string), 32)
}

func TestRegister_Errors(t *testing.T) {
	tests := []struct {
		name   string
		schema NodeSchema
	}{
		{"required with default", NodeSchema{Name: "A", Properties: []Property{{Name: "x", Required: true, Default: "d"}}}},
		{"required with factory", NodeSchema{Name: "A", Properties: []Property{{Name: "x", Required: true, DefaultFunc: func() any { return 1 }}}}},
		{"uuid declared", NodeSchema{Name: "A", Properties: []Property{{Name: "uuid"}}}},
		{"bad property name", NodeSchema{Name: "A", Properties: []Property{{Name: "a-b"}}}},
		{"bad type name", NodeSchema{Name: "A B"}},
		{"bad label", NodeSchema{Name: "A", Labels: []string{"x y"}}},
		{"unknown parent", NodeSchema{Name: "A", Extends: "Missing"}},
		{"missing direction", NodeSchema{Name: "A", Relationships: map[string]RelationshipSchema{"r": {Type: "R"}}}},
		{"bad edge type", NodeSchema{Name: "A", Relationships: map[string]RelationshipSchema{"r": {Type: "HAS-A", Direction: From}}}},
		{"from with start", NodeSchema{Name: "A", Relationships: map[string]RelationshipSchema{"r": {Type: "R", Direction: From, Start: "B"}}}},
		{"both with start", NodeSchema{Name: "A", Relationships: map[string]RelationshipSchema{"r": {Type: "R", Direction: Both, Start: "B"}}}},
		{"to with target", NodeSchema{Name: "A", Relationships: map[string]RelationshipSchema{"r": {Type: "R", Direction: To, Target: "B"}}}},
		{"edge property required with default", NodeSchema{Name: "A", Relationships: map[string]RelationshipSchema{
			"r": {Type: "R", Direction: From, Properties: []Property{{Name: "p", Required: true, Default: 1}}},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry().Register(tt.schema)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSchema), err.Error())
		})
	}
}

func TestRegister_SelfConstraintsAllowed(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Register(NodeSchema{Name: "A", Relationships: map[string]RelationshipSchema{
		"out": {Type: "R", Direction: From, Start: Self},
		"in":  {Type: "R", Direction: To, Target: Self, Start: "A"},
	}})
	require.NoError(t, err)
}

func TestRegister_Duplicate(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(NodeSchema{Name: "A"})
	_, err := reg.Register(NodeSchema{Name: "A"})
	assert.True(t, errors.Is(err, ErrSchema))
	assert.Panics(t, func() { reg.MustRegister(NodeSchema{Name: "A"}) })
}

func TestOverride(t *testing.T) {
	reg := NewRegistry()
	user := reg.MustRegister(NodeSchema{Name: "User", Properties: []Property{{Name: "email"}}})
	admin := reg.MustRegister(NodeSchema{Name: "Admin", Extends: "User"})

	_, err := reg.Override(NodeSchema{Name: "Missing"})
	assert.True(t, errors.Is(err, ErrSchema))

	replaced, err := reg.Override(NodeSchema{Name: "User", Properties: []Property{{Name: "email"}, {Name: "phone"}}})
	require.NoError(t, err)
	assert.Same(t, user, replaced)
	assert.True(t, reg.Overridden("User"))
	assert.False(t, reg.Overridden("Admin"))

	_, ok := user.Property("phone")
	assert.True(t, ok, "handles given out earlier see the override")
	_, ok = admin.Property("phone")
	assert.True(t, ok, "descendants are recompiled")

	_, err = reg.Override(NodeSchema{Name: "User", Properties: []Property{{Name: "x", Required: true, Default: 1}}})
	assert.True(t, errors.Is(err, ErrSchema))
	_, ok = user.Property("phone")
	assert.True(t, ok, "a failed override leaves the registry untouched")
}

func TestResolveLabels(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(NodeSchema{Name: "User"})
	reg.MustRegister(NodeSchema{Name: "Admin", Extends: "User"})
	reg.MustRegister(NodeSchema{Name: "Group"})

	got, ok := reg.ResolveLabels([]string{"User", "Admin"})
	require.True(t, ok)
	assert.Equal(t, "Admin", got.Name())

	got, ok = reg.ResolveLabels([]string{"Group", "Legacy"})
	require.True(t, ok)
	assert.Equal(t, "Group", got.Name())

	_, ok = reg.ResolveLabels([]string{"Legacy"})
	assert.False(t, ok)

	var names []string
	for _, typ := range reg.Types() {
		names = append(names, typ.Name())
	}
	assert.Equal(t, []string{"User", "Admin", "Group"}, names)
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]Direction{"from": From, "TO": To, "both": Both, "bi": Both, "": Both} {
		got, err := ParseDirection(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDirection("sideways")
	assert.True(t, errors.Is(err, ErrRelationship))
}
