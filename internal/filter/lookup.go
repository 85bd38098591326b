package filter

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/armchr/graphogm/internal/cypher"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// Lookup names accepted after the "__" separator.
const (
	Exact       = "exact"
	IExact      = "iexact"
	Contains    = "contains"
	IContains   = "icontains"
	StartsWith  = "startswith"
	IStartsWith = "istartswith"
	EndsWith    = "endswith"
	IEndsWith   = "iendswith"
	Regex       = "regex"
	IRegex      = "iregex"
	LT          = "lt"
	LTE         = "lte"
	GT          = "gt"
	GTE         = "gte"
)

var comparisons = map[string]string{
	Exact: "=",
	LT:    "<",
	LTE:   "<=",
	GT:    ">",
	GTE:   ">=",
}

// Temporal components and the function that coerces a property before the
// component is read. Coercion lets string-typed dates participate too.
var components = map[string]string{
	"year":   "date",
	"month":  "date",
	"day":    "date",
	"hour":   "time",
	"minute": "time",
	"second": "time",
}

// lookup is a parsed "field__lookup" key.
type lookup struct {
	field     string
	op        string // one of the lookup constants
	component string // year, month... when op compares a temporal component
}

func parseLookup(key string) (lookup, error) {
	field, op, found := strings.Cut(key, "__")
	if !found {
		op = Exact
	}
	if err := cypher.CheckIdentifier("field", field); err != nil {
		return lookup{}, fmt.Errorf("%w: %v", ErrFilter, err)
	}
	if strings.Contains(op, "__") {
		return lookup{}, fmt.Errorf("%w: %q: lookups across relationships are not supported", ErrFilter, key)
	}

	switch op {
	case Exact, IExact, Contains, IContains, StartsWith, IStartsWith,
		EndsWith, IEndsWith, Regex, IRegex, LT, LTE, GT, GTE:
		return lookup{field: field, op: op}, nil
	}

	component, cmp, _ := strings.Cut(op, "_")
	if _, ok := components[component]; ok {
		if cmp == "" {
			cmp = Exact
		}
		if _, ok := comparisons[cmp]; ok {
			return lookup{field: field, op: cmp, component: component}, nil
		}
	}
	return lookup{}, fmt.Errorf("%w: unknown lookup %q in %q", ErrFilter, op, key)
}

// render produces the predicate text for one lookup. bind turns a value into
// a placeholder (or an inline literal when rendering for diagnostics).
func (l lookup) render(variable string, value any, bind func(any) string) (string, error) {
	target := cypher.Property(variable, l.field)

	if l.component != "" {
		if !isInteger(value) {
			return "", fmt.Errorf("%w: %s__%s_%s needs an integer, got %T", ErrFilter, l.field, l.component, l.op, value)
		}
		expr := fmt.Sprintf("%s(%s).%s", components[l.component], target, l.component)
		return fmt.Sprintf("%s %s %s", expr, comparisons[l.op], bind(value)), nil
	}

	switch l.op {
	case Exact:
		if value == nil {
			return target + " IS NULL", nil
		}
		return target + " = " + bind(value), nil

	case IExact:
		s, ok := value.(string)
		if !ok {
			// Case folding only applies to text.
			return lookup{field: l.field, op: Exact}.render(variable, value, bind)
		}
		return target + " =~ " + bind("(?i)"+regexp.QuoteMeta(s)), nil

	case Contains, StartsWith, EndsWith:
		s, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("%w: %s__%s needs a string, got %T", ErrFilter, l.field, l.op, value)
		}
		keyword := map[string]string{Contains: "CONTAINS", StartsWith: "STARTS WITH", EndsWith: "ENDS WITH"}[l.op]
		return target + " " + keyword + " " + bind(s), nil

	case IContains, IStartsWith, IEndsWith:
		s, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("%w: %s__%s needs a string, got %T", ErrFilter, l.field, l.op, value)
		}
		pattern := regexp.QuoteMeta(s)
		switch l.op {
		case IContains:
			pattern = ".*" + pattern + ".*"
		case IStartsWith:
			pattern = pattern + ".*"
		case IEndsWith:
			pattern = ".*" + pattern
		}
		return target + " =~ " + bind("(?is)"+pattern), nil

	case Regex, IRegex:
		s, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("%w: %s__%s needs a string pattern, got %T", ErrFilter, l.field, l.op, value)
		}
		// The store compiles the pattern with its own (Java) dialect.
		if s == "" {
			return "", fmt.Errorf("%w: %s__%s needs a non-empty pattern", ErrFilter, l.field, l.op)
		}
		if l.op == IRegex {
			s = "(?i)" + s
		}
		return target + " =~ " + bind(s), nil

	case LT, LTE, GT, GTE:
		if !isOrdered(value) {
			return "", fmt.Errorf("%w: %s__%s needs a number or a temporal value, got %T", ErrFilter, l.field, l.op, value)
		}
		return fmt.Sprintf("%s %s %s", target, comparisons[l.op], bind(value)), nil
	}
	return "", fmt.Errorf("%w: unknown lookup %q", ErrFilter, l.op)
}

func isInteger(value any) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

func isOrdered(value any) bool {
	if isInteger(value) {
		return true
	}
	switch value.(type) {
	case float32, float64, time.Time,
		dbtype.Date, dbtype.LocalTime, dbtype.Time, dbtype.LocalDateTime, dbtype.Duration:
		return true
	}
	return false
}
