package filter

import (
	"errors"
	"testing"
	"time"

	"github.com/armchr/graphogm/internal/cypher"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, e Expr) (string, map[string]any) {
	t.Helper()
	params := cypher.NewParams("f")
	text, err := e.Compile("n", params)
	require.NoError(t, err)
	return text, params.Map()
}

func TestQ_Lookups(t *testing.T) {
	day := dbtype.Date(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))

	tests := []struct {
		name      string
		key       string
		value     any
		want      string
		wantParam any
	}{
		{"bare field is exact", "codename", "view", "n.codename = $f0", "view"},
		{"exact", "codename__exact", "view", "n.codename = $f0", "view"},
		{"exact int", "age__exact", 30, "n.age = $f0", int64(30)},
		{"exact bool", "is_active__exact", true, "n.is_active = $f0", true},
		{"exact nil", "email__exact", nil, "n.email IS NULL", nil},
		{"iexact", "name__iexact", "Bob", "n.name =~ $f0", "(?i)Bob"},
		{"iexact non-string falls back", "age__iexact", 3, "n.age = $f0", int64(3)},
		{"contains", "name__contains", "ob", "n.name CONTAINS $f0", "ob"},
		{"icontains", "description__icontains", "can", "n.description =~ $f0", "(?is).*can.*"},
		{"startswith", "name__startswith", "B", "n.name STARTS WITH $f0", "B"},
		{"istartswith", "name__istartswith", "b", "n.name =~ $f0", "(?is)b.*"},
		{"endswith", "name__endswith", "b", "n.name ENDS WITH $f0", "b"},
		{"iendswith", "name__iendswith", "b", "n.name =~ $f0", "(?is).*b"},
		{"regex", "name__regex", "^B.*", "n.name =~ $f0", "^B.*"},
		{"iregex", "name__iregex", "^b.*", "n.name =~ $f0", "(?i)^b.*"},
		{"regex lookahead", "name__regex", "^(?=.*x).*$", "n.name =~ $f0", "^(?=.*x).*$"},
		{"regex backreference", "name__regex", `(a)\1`, "n.name =~ $f0", `(a)\1`},
		{"icontains escapes metacharacters", "name__icontains", "a.b", "n.name =~ $f0", `(?is).*a\.b.*`},
		{"lt", "age__lt", 30, "n.age < $f0", int64(30)},
		{"lte float", "score__lte", 2.5, "n.score <= $f0", 2.5},
		{"gt date", "born__gt", day, "n.born > $f0", day},
		{"gte", "age__gte", 18, "n.age >= $f0", int64(18)},
		{"year", "born__year", 1990, "date(n.born).year = $f0", int64(1990)},
		{"year_exact", "born__year_exact", 1990, "date(n.born).year = $f0", int64(1990)},
		{"month_lt", "born__month_lt", 6, "date(n.born).month < $f0", int64(6)},
		{"day_gte", "born__day_gte", 15, "date(n.born).day >= $f0", int64(15)},
		{"hour_gt", "starts__hour_gt", 8, "time(n.starts).hour > $f0", int64(8)},
		{"minute_lte", "starts__minute_lte", 30, "time(n.starts).minute <= $f0", int64(30)},
		{"second", "starts__second", 0, "time(n.starts).second = $f0", int64(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, params := compile(t, Q(tt.key, tt.value))
			assert.Equal(t, tt.want, text)
			if tt.wantParam != nil {
				assert.Equal(t, tt.wantParam, params["f0"])
			} else {
				assert.Empty(t, params)
			}
		})
	}
}

func TestQ_Errors(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
	}{
		{"unknown lookup", "name__like", "x"},
		{"unknown component", "born__week", 3},
		{"unknown component comparison", "born__year_ne", 3},
		{"traversal", "friends__name__exact", "x"},
		{"bad field", "na me__exact", "x"},
		{"contains needs string", "name__contains", 3},
		{"ordering needs number or temporal", "name__lt", "b"},
		{"component needs integer", "born__year", "1990"},
		{"component rejects float", "born__year_gt", 1990.5},
		{"empty regex", "name__regex", ""},
		{"unsupported value", "name__exact", map[string]any{"a": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Q(tt.key, tt.value).Compile("n", cypher.NewParams(""))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrFilter))
			assert.Error(t, Q(tt.key, tt.value).Validate())
		})
	}
}

func TestAnd_TwoPredicates(t *testing.T) {
	e := Q("codename__exact", "view").And(Q("description__icontains", "can"))

	text, params := compile(t, e)
	assert.Equal(t, "n.codename = $f0 AND n.description =~ $f1", text)
	assert.Equal(t, map[string]any{"f0": "view", "f1": "(?is).*can.*"}, params)
}

func TestGrouping_IsExplicit(t *testing.T) {
	a, b, c := Q("a", 1), Q("b", 2), Q("c", 3)

	left, _ := compile(t, a.And(b).Or(c))
	right, _ := compile(t, a.And(b.Or(c)))

	assert.Equal(t, "(n.a = $f0 AND n.b = $f1) OR n.c = $f2", left)
	assert.Equal(t, "n.a = $f0 AND (n.b = $f1 OR n.c = $f2)", right)
	assert.NotEqual(t, left, right)
}

func TestAnd_Variadic(t *testing.T) {
	text, _ := compile(t, And(Q("a", 1), Q("b", 2), Q("c", 3)))
	assert.Equal(t, "n.a = $f0 AND n.b = $f1 AND n.c = $f2", text)
}

func TestNot(t *testing.T) {
	text, _ := compile(t, Not(Q("a", 1).Or(Q("b", 2))))
	assert.Equal(t, "NOT (n.a = $f0 OR n.b = $f1)", text)

	text, _ = compile(t, Q("c", 3).And(Q("a", 1).Not()))
	assert.Equal(t, "n.c = $f0 AND NOT (n.a = $f1)", text)
}

func TestZeroExpr(t *testing.T) {
	var zero Expr
	assert.True(t, zero.IsZero())
	assert.True(t, Not(zero).IsZero())
	assert.Equal(t, "", zero.String())

	text, params := compile(t, zero)
	assert.Equal(t, "", text)
	assert.Empty(t, params)

	text, _ = compile(t, zero.And(Q("a", 1)))
	assert.Equal(t, "n.a = $f0", text)
}

func TestMatch_SortsKeys(t *testing.T) {
	text, params := compile(t, Match(Lookups{"name__startswith": "B", "age__gte": 18}))
	assert.Equal(t, "n.age >= $f0 AND n.name STARTS WITH $f1", text)
	assert.Equal(t, int64(18), params["f0"])
}

func TestCompile_Variable(t *testing.T) {
	params := cypher.NewParams("")
	text, err := Q("since__gt", 2020).Compile("r", params)
	require.NoError(t, err)
	assert.Equal(t, "r.since > $p0", text)

	_, err = Q("a", 1).Compile("r)", params)
	assert.True(t, errors.Is(err, ErrFilter))
}

func TestString_InlinesLiterals(t *testing.T) {
	day := dbtype.Date(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	e := Q("codename", "it's").And(Q("born__lt", day)).Or(Q("age__gt", 3))

	assert.Equal(t, `(n.codename = 'it\'s' AND n.born < date('2024-01-31')) OR n.age > 3`, e.String())
	assert.Contains(t, Q("x__bogus", 1).String(), "invalid filter")
}
