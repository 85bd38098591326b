package ogm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/armchr/graphogm/internal/cypher"
	"github.com/armchr/graphogm/internal/filter"
	"github.com/armchr/graphogm/internal/graphdb"
)

// GetOptions shapes a read of nodes. The zero value returns every node of
// the type in store order.
type GetOptions struct {
	Filter filter.Expr
	// OrderBy names a property of the returned variable. Desc has no effect
	// without it.
	OrderBy string
	Desc    bool
	// Skip and Limit are ignored when zero and rejected when negative.
	Skip     int
	Limit    int
	Distinct bool
	// Only switches the result to projection maps of the named properties.
	Only []string
}

// ParseWindow validates textual pagination arguments such as query string
// values. Empty strings mean "not given".
func ParseWindow(limit, skip, desc string) (limitN, skipN int, descending bool, err error) {
	if limitN, err = parseCount("limit", limit); err != nil {
		return 0, 0, false, err
	}
	if skipN, err = parseCount("skip", skip); err != nil {
		return 0, 0, false, err
	}
	if desc != "" {
		if descending, err = strconv.ParseBool(desc); err != nil {
			return 0, 0, false, fmt.Errorf("%w: desc must be a boolean, got %q", ErrNode, desc)
		}
	}
	return limitN, skipN, descending, nil
}

func parseCount(name, value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", ErrNode, name, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", ErrNode, name)
	}
	return n, nil
}

// selectQuery renders the fixed clause order
// MATCH, WHERE, WITH, ORDER BY [DESC], SKIP, LIMIT, RETURN [DISTINCT].
type selectQuery struct {
	match    string
	where    []string
	with     string
	orderBy  string
	desc     bool
	skip     int
	limit    int
	distinct bool
	ret      string
}

func (q selectQuery) text() string {
	clauses := []string{"MATCH " + q.match}
	switch len(q.where) {
	case 0:
	case 1:
		clauses = append(clauses, "WHERE "+q.where[0])
	default:
		parts := make([]string, len(q.where))
		for i, w := range q.where {
			parts[i] = "(" + w + ")"
		}
		clauses = append(clauses, "WHERE "+strings.Join(parts, " AND "))
	}
	clauses = append(clauses, "WITH "+q.with)
	if q.orderBy != "" {
		order := "ORDER BY " + q.orderBy
		if q.desc {
			order += " DESC"
		}
		clauses = append(clauses, order)
	}
	if q.skip > 0 {
		clauses = append(clauses, "SKIP "+strconv.Itoa(q.skip))
	}
	if q.limit > 0 {
		clauses = append(clauses, "LIMIT "+strconv.Itoa(q.limit))
	}
	ret := "RETURN "
	if q.distinct {
		ret += "DISTINCT "
	}
	clauses = append(clauses, ret+q.ret)
	return strings.Join(clauses, "\n")
}

// counting replaces the RETURN clause with a count aggregate over variable.
func (q selectQuery) counting(variable string) selectQuery {
	expr := "count(" + variable + ")"
	if q.distinct {
		expr = "count(DISTINCT " + variable + ")"
	}
	q.distinct = false
	q.ret = expr + " AS count"
	return q
}

func checkWindow(skip, limit int) error {
	if skip < 0 {
		return fmt.Errorf("%w: skip must not be negative", ErrNode)
	}
	if limit < 0 {
		return fmt.Errorf("%w: limit must not be negative", ErrNode)
	}
	return nil
}

// projection renders "n.a AS a, n.b AS b".
func projection(variable string, only []string) (string, error) {
	parts := make([]string, len(only))
	for i, name := range only {
		if err := cypher.CheckIdentifier("property", name); err != nil {
			return "", fmt.Errorf("%w: only: %v", ErrNode, err)
		}
		parts[i] = cypher.Property(variable, name) + " AS " + name
	}
	return strings.Join(parts, ", "), nil
}

// qualifiedProjection renders "r.a AS `r.a`, n.b AS `n.b`" for keys that
// already carry their variable.
func qualifiedProjection(only []string, variables ...string) (string, error) {
	parts := make([]string, len(only))
	for i, key := range only {
		if _, err := splitQualified(key, variables...); err != nil {
			return "", err
		}
		parts[i] = key + " AS `" + key + "`"
	}
	return strings.Join(parts, ", "), nil
}

// orderKey returns the ORDER BY expression for name against variable.
func orderKey(variable, name string) (string, error) {
	if name == "" {
		return "", nil
	}
	if err := cypher.CheckIdentifier("property", name); err != nil {
		return "", fmt.Errorf("%w: order by: %v", ErrNode, err)
	}
	return cypher.Property(variable, name), nil
}

// splitQualified checks that key is "<variable>.<property>" for one of
// variables.
func splitQualified(key string, variables ...string) (string, error) {
	variable, name, ok := strings.Cut(key, ".")
	if !ok {
		return "", fmt.Errorf("%w: %q must be prefixed with one of %v", ErrNode, key, variables)
	}
	found := false
	for _, v := range variables {
		if v == variable {
			found = true
		}
	}
	if !found {
		return "", fmt.Errorf("%w: %q must be prefixed with one of %v", ErrNode, key, variables)
	}
	if err := cypher.CheckIdentifier("property", name); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNode, err)
	}
	return name, nil
}

func compileFilter(e filter.Expr, variable string, params *cypher.Params) (string, error) {
	text, err := e.Compile(variable, params)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNode, err)
	}
	return text, nil
}

// countOf reads the "count" column of the first record. No records means 0.
func countOf(records []graphdb.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	n, err := records[0].Int("count")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNode, err)
	}
	return n, nil
}

// projections converts projection records into plain maps.
func projections(records []graphdb.Record) []map[string]any {
	out := make([]map[string]any, len(records))
	for i, r := range records {
		row := make(map[string]any, len(r))
		for k, v := range r {
			row[k] = v
		}
		out[i] = row
	}
	return out
}
