package cypher

import "fmt"

// Params collects bound parameters while a query is assembled. Generated
// names are prefix followed by a counter, so two builders with different
// prefixes can share one map.
type Params struct {
	prefix string
	next   int
	values map[string]any
}

// NewParams creates an empty parameter set. An empty prefix defaults to "p".
func NewParams(prefix string) *Params {
	if prefix == "" {
		prefix = "p"
	}
	return &Params{prefix: prefix, values: make(map[string]any)}
}

// Add binds value under a fresh name and returns its placeholder ("$p0").
func (p *Params) Add(value any) string {
	name := fmt.Sprintf("%s%d", p.prefix, p.next)
	p.next++
	p.values[name] = value
	return "$" + name
}

// Set binds value under an explicit name and returns its placeholder.
func (p *Params) Set(name string, value any) string {
	p.values[name] = value
	return "$" + name
}

// Map returns the bound values. The map is shared, not copied.
func (p *Params) Map() map[string]any {
	return p.values
}

// Len returns the number of bound values.
func (p *Params) Len() int {
	return len(p.values)
}
