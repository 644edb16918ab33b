// Package schema parses and checks the Permify schema that organization
// memberships are mirrored into.
package schema

import (
	_ "embed"
	"fmt"
)

//go:embed schema.perm
var defaultSource string

// Source returns the embedded schema text.
func Source() string {
	return defaultSource
}

// Default parses the embedded schema.
func Default() (*Schema, error) {
	return Parse(defaultSource)
}

type Entity struct {
	Name        string
	Relations   []Relation
	Permissions []Permission
	Line        int
}

// Relation links an entity to a subject entity type, e.g. "relation owner @user".
type Relation struct {
	Name   string
	Target string
	Line   int
}

type Permission struct {
	Name       string
	Expression Expression
	Line       int
}

// Expression is a permission body built from relation references joined by
// "and" / "or".
type Expression interface {
	String() string
	// refs reports every relation reference in the expression.
	refs() []*RelationRef
}

type And struct {
	Left  Expression
	Right Expression
}

func (a *And) String() string {
	return "(" + a.Left.String() + " and " + a.Right.String() + ")"
}

func (a *And) refs() []*RelationRef {
	return append(a.Left.refs(), a.Right.refs()...)
}

type Or struct {
	Left  Expression
	Right Expression
}

func (o *Or) String() string {
	return "(" + o.Left.String() + " or " + o.Right.String() + ")"
}

func (o *Or) refs() []*RelationRef {
	return append(o.Left.refs(), o.Right.refs()...)
}

// RelationRef names a relation or permission; Via is set for a walk through
// another relation, e.g. "parent.admin".
type RelationRef struct {
	Via  string
	Name string
	Line int
}

func (r *RelationRef) String() string {
	if r.Via == "" {
		return r.Name
	}
	return r.Via + "." + r.Name
}

func (r *RelationRef) refs() []*RelationRef {
	return []*RelationRef{r}
}

// Schema is a parsed set of entity definitions.
type Schema struct {
	Entities map[string]*Entity
	order    []string
}

func newSchema() *Schema {
	return &Schema{Entities: make(map[string]*Entity)}
}

func (s *Schema) addEntity(e *Entity) error {
	if _, ok := s.Entities[e.Name]; ok {
		return fmt.Errorf("entity %q declared twice (line %d)", e.Name, e.Line)
	}
	s.Entities[e.Name] = e
	s.order = append(s.order, e.Name)
	return nil
}

// EntityNames returns entity names in declaration order.
func (s *Schema) EntityNames() []string {
	return append([]string(nil), s.order...)
}

func (e *Entity) Relation(name string) (Relation, bool) {
	for _, r := range e.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return Relation{}, false
}

func (e *Entity) Permission(name string) (Permission, bool) {
	for _, p := range e.Permissions {
		if p.Name == name {
			return p, true
		}
	}
	return Permission{}, false
}

// has reports whether name is a relation or permission on e.
func (e *Entity) has(name string) bool {
	if _, ok := e.Relation(name); ok {
		return true
	}
	_, ok := e.Permission(name)
	return ok
}
