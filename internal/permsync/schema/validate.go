package schema

import (
	"errors"
	"fmt"
)

// Validate checks that relation targets are declared entities and that every
// permission only references relations or permissions that exist.
func (s *Schema) Validate() error {
	var errs []error

	for _, name := range s.order {
		entity := s.Entities[name]
		seen := make(map[string]int)

		for _, r := range entity.Relations {
			if line, dup := seen[r.Name]; dup {
				errs = append(errs, fmt.Errorf("%s: %q redeclared on line %d (first on line %d)", name, r.Name, r.Line, line))
			}
			seen[r.Name] = r.Line
			if _, ok := s.Entities[r.Target]; !ok {
				errs = append(errs, fmt.Errorf("%s.%s: unknown entity %q (line %d)", name, r.Name, r.Target, r.Line))
			}
		}

		for _, perm := range entity.Permissions {
			if line, dup := seen[perm.Name]; dup {
				errs = append(errs, fmt.Errorf("%s: %q redeclared on line %d (first on line %d)", name, perm.Name, perm.Line, line))
			}
			seen[perm.Name] = perm.Line

			for _, ref := range perm.Expression.refs() {
				if err := s.resolve(entity, ref); err != nil {
					errs = append(errs, fmt.Errorf("%s.%s: %w (line %d)", name, perm.Name, err, ref.Line))
				}
			}
		}
	}

	return errors.Join(errs...)
}

func (s *Schema) resolve(entity *Entity, ref *RelationRef) error {
	if ref.Via == "" {
		if !entity.has(ref.Name) {
			return fmt.Errorf("unknown relation or permission %q", ref.Name)
		}
		return nil
	}

	via, ok := entity.Relation(ref.Via)
	if !ok {
		return fmt.Errorf("unknown relation %q", ref.Via)
	}
	target := s.Entities[via.Target]
	if target == nil || !target.has(ref.Name) {
		return fmt.Errorf("%q has no relation or permission %q", via.Target, ref.Name)
	}
	return nil
}

// RequireRelations checks that entity declares each named relation pointing
// at subject. Mirrored tuples are written under these relation names.
func (s *Schema) RequireRelations(entity, subject string, names ...string) error {
	e, ok := s.Entities[entity]
	if !ok {
		return fmt.Errorf("schema has no entity %q", entity)
	}

	var errs []error
	for _, name := range names {
		r, ok := e.Relation(name)
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("%s has no relation %q", entity, name))
		case r.Target != subject:
			errs = append(errs, fmt.Errorf("%s.%s targets %q, want %q", entity, name, r.Target, subject))
		}
	}
	return errors.Join(errs...)
}
