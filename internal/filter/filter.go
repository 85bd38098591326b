// Package filter is a small predicate algebra over node and relationship
// properties. Lookups of the form "field__lookup" are combined with And, Or
// and Not into an expression tree, which compiles into a parameterized
// Cypher fragment. Nested compounds are always parenthesized, so
// (A AND B) OR C and A AND (B OR C) compile differently.
package filter

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/armchr/graphogm/internal/cypher"
)

// ErrFilter is returned for malformed lookups and for values a lookup
// cannot compare against.
var ErrFilter = errors.New("filter error")

// Lookups maps "field__lookup" keys to values.
type Lookups map[string]any

// Expr is a filter expression. The zero Expr matches everything and
// compiles to an empty fragment.
type Expr struct {
	node node
}

type node interface {
	render(variable string, bind func(any) string) (string, error)
}

type predicate struct {
	key   string
	value any
}

type compound struct {
	op    string // "AND" or "OR"
	parts []node
}

type negation struct {
	inner node
}

// Q builds a single-lookup expression: Q("codename__exact", "view").
// A bare field name means exact. Errors surface when the expression is
// compiled.
func Q(key string, value any) Expr {
	return Expr{node: predicate{key: key, value: value}}
}

// Match ANDs several lookups together in key order.
func Match(lookups Lookups) Expr {
	keys := make([]string, 0, len(lookups))
	for k := range lookups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	exprs := make([]Expr, 0, len(keys))
	for _, k := range keys {
		exprs = append(exprs, Q(k, lookups[k]))
	}
	return And(exprs...)
}

// And combines expressions with AND. Zero expressions are skipped.
func And(exprs ...Expr) Expr {
	return combine("AND", exprs)
}

// Or combines expressions with OR. Zero expressions are skipped.
func Or(exprs ...Expr) Expr {
	return combine("OR", exprs)
}

// Not negates e. Negating the zero Expr yields the zero Expr.
func Not(e Expr) Expr {
	if e.IsZero() {
		return e
	}
	return Expr{node: negation{inner: e.node}}
}

func combine(op string, exprs []Expr) Expr {
	var parts []node
	for _, e := range exprs {
		if !e.IsZero() {
			parts = append(parts, e.node)
		}
	}
	switch len(parts) {
	case 0:
		return Expr{}
	case 1:
		return Expr{node: parts[0]}
	default:
		return Expr{node: compound{op: op, parts: parts}}
	}
}

// And returns e AND other.
func (e Expr) And(other Expr) Expr {
	return And(e, other)
}

// Or returns e OR other.
func (e Expr) Or(other Expr) Expr {
	return Or(e, other)
}

// Not returns NOT e.
func (e Expr) Not() Expr {
	return Not(e)
}

// IsZero reports whether e is the empty expression.
func (e Expr) IsZero() bool {
	return e.node == nil
}

// Compile renders e against variable, binding every value into params.
func (e Expr) Compile(variable string, params *cypher.Params) (string, error) {
	if e.IsZero() {
		return "", nil
	}
	if err := cypher.CheckIdentifier("variable", variable); err != nil {
		return "", fmt.Errorf("%w: %v", ErrFilter, err)
	}
	return e.node.render(variable, func(v any) string {
		return params.Add(v)
	})
}

// Validate reports the first error Compile would return.
func (e Expr) Validate() error {
	_, err := e.Compile("n", cypher.NewParams(""))
	return err
}

// String renders e against "n" with inline type-tagged literals, for logs.
func (e Expr) String() string {
	if e.IsZero() {
		return ""
	}
	text, err := e.node.render("n", cypher.Literal)
	if err != nil {
		return "<invalid filter: " + err.Error() + ">"
	}
	return text
}

func (p predicate) render(variable string, bind func(any) string) (string, error) {
	l, err := parseLookup(p.key)
	if err != nil {
		return "", err
	}
	value, err := cypher.Normalize(p.value)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrFilter, p.key, err)
	}
	return l.render(variable, value, bind)
}

func (c compound) render(variable string, bind func(any) string) (string, error) {
	texts := make([]string, len(c.parts))
	for i, part := range c.parts {
		text, err := part.render(variable, bind)
		if err != nil {
			return "", err
		}
		if _, nested := part.(compound); nested {
			text = "(" + text + ")"
		}
		texts[i] = text
	}
	return strings.Join(texts, " "+c.op+" "), nil
}

func (n negation) render(variable string, bind func(any) string) (string, error) {
	text, err := n.inner.render(variable, bind)
	if err != nil {
		return "", err
	}
	return "NOT (" + text + ")", nil
}
