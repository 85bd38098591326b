// Package schema mirrors the REQUIRED and UNIQUE declarations of a registry
// as store-level constraints, so concurrent writers that both pass the
// mapper's pre-checks cannot commit duplicates.
package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/armchr/graphogm/internal/graphdb"
	"github.com/armchr/graphogm/internal/ogm"

	"go.uber.org/zap"
)

// Kind is the kind of constraint a Statement creates.
type Kind string

const (
	Unique   Kind = "unique"
	Required Kind = "required"
)

// Statement is one constraint to create. Optional statements depend on the
// store edition (existence and relationship constraints); their failures
// are logged and skipped.
type Statement struct {
	Name     string
	Kind     Kind
	Query    string
	Optional bool
}

// Result reports what Apply did.
type Result struct {
	Applied []string
	Skipped []string
}

// Statements lists the constraints for every type in reg. A type only gets
// constraints for properties it declares or redeclares; inherited ones are
// enforced through the ancestor's label, which every descendant carries.
func Statements(reg *ogm.Registry) []Statement {
	var out []Statement
	for _, t := range reg.Types() {
		var parent *ogm.NodeType
		if t.Parent() != "" {
			parent, _ = reg.Lookup(t.Parent())
		}
		for _, p := range t.Properties() {
			if parent != nil {
				if inherited, ok := parent.Property(p.Name); ok && inherited.Unique == p.Unique && inherited.Required == p.Required {
					continue
				}
			}
			if p.Unique {
				out = append(out, nodeStatement(t.Name(), p.Name, Unique))
			}
			if p.Required {
				out = append(out, nodeStatement(t.Name(), p.Name, Required))
			}
		}
	}
	return append(out, edgeStatements(reg)...)
}

func nodeStatement(label, property string, kind Kind) Statement {
	name := constraintName(label, property, kind)
	s := Statement{Name: name, Kind: kind, Optional: kind == Required}
	s.Query = fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE n.%s %s",
		name, label, property, requirement(kind))
	return s
}

// edgeStatements covers the properties of every edge type once, however
// many descriptors share it.
func edgeStatements(reg *ogm.Registry) []Statement {
	seen := make(map[string]bool)
	var out []Statement
	for _, t := range reg.Types() {
		for _, name := range t.RelationshipNames() {
			rt, _ := t.Relationship(name)
			for _, p := range rt.Properties() {
				for _, kind := range kindsOf(p) {
					cname := constraintName(rt.Type(), p.Name, kind)
					if seen[cname] {
						continue
					}
					seen[cname] = true
					out = append(out, Statement{
						Name:     cname,
						Kind:     kind,
						Optional: true,
						Query: fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS FOR ()-[r:%s]-() REQUIRE r.%s %s",
							cname, rt.Type(), p.Name, requirement(kind)),
					})
				}
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func kindsOf(p ogm.Property) []Kind {
	var kinds []Kind
	if p.Unique {
		kinds = append(kinds, Unique)
	}
	if p.Required {
		kinds = append(kinds, Required)
	}
	return kinds
}

func requirement(kind Kind) string {
	if kind == Unique {
		return "IS UNIQUE"
	}
	return "IS NOT NULL"
}

func constraintName(owner, property string, kind Kind) string {
	return strings.ToLower(owner + "_" + property + "_" + string(kind))
}

// Apply creates the constraints for reg. It stops at the first failing
// mandatory statement; optional failures are logged and reported as
// skipped.
func Apply(ctx context.Context, db graphdb.GraphDatabase, reg *ogm.Registry, logger *zap.Logger) (Result, error) {
	var res Result
	for _, s := range Statements(reg) {
		if _, err := db.ExecuteWrite(ctx, s.Query, nil); err != nil {
			if s.Optional {
				logger.Warn("Skipping constraint not supported by the store",
					zap.String("constraint", s.Name), zap.Error(err))
				res.Skipped = append(res.Skipped, s.Name)
				continue
			}
			return res, fmt.Errorf("failed to create constraint %s: %w", s.Name, err)
		}
		logger.Debug("Applied constraint", zap.String("constraint", s.Name))
		res.Applied = append(res.Applied, s.Name)
	}
	logger.Info("Schema constraints applied",
		zap.Int("applied", len(res.Applied)), zap.Int("skipped", len(res.Skipped)))
	return res, nil
}
