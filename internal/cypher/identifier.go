// Package cypher holds the small pieces every generated query is made of:
// identifier checks, bound parameters, and literal rendering for logs.
package cypher

import (
	"fmt"
	"regexp"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name can be spliced into query text as a
// label, relationship type, variable or property key.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// CheckIdentifier returns an error naming what kind of identifier was invalid.
func CheckIdentifier(kind, name string) error {
	if !ValidIdentifier(name) {
		return fmt.Errorf("invalid %s %q: must match %s", kind, name, identifierPattern.String())
	}
	return nil
}

// Labels renders a label set as ":A:B". An empty set renders as "".
func Labels(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	return ":" + strings.Join(labels, ":")
}

// Property renders variable.key.
func Property(variable, key string) string {
	return variable + "." + key
}
