package cypher

import (
	"regexp"
)

var placeholderPattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)

// Query is a generated statement together with its bound parameters.
type Query struct {
	Text   string
	Params map[string]any
}

// NewQuery pairs text with the parameters collected in params.
func NewQuery(text string, params *Params) Query {
	q := Query{Text: text}
	if params != nil {
		q.Params = params.Map()
	}
	return q
}

func (q Query) String() string {
	return q.Text
}

// Inline renders the query with every known placeholder replaced by its
// type-tagged literal. The result is for logs and debugging only; queries
// are always sent with bound parameters.
func (q Query) Inline() string {
	if len(q.Params) == 0 {
		return q.Text
	}
	return placeholderPattern.ReplaceAllStringFunc(q.Text, func(match string) string {
		value, ok := q.Params[match[1:]]
		if !ok {
			return match
		}
		return Literal(value)
	})
}
