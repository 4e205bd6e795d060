// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package walker

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianSpatial/pkg/validation"
	"github.com/AleutianAI/AleutianSpatial/services/spatial/ability"
)

// validate checks walker field rules. Rules are validator tag strings
// evaluated against the field value, e.g. "required,gte=0,lte=130".
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Handler is an ability body: it runs with the walker positioned on one
// element and drives the traversal through the Context.
type Handler func(*Context) error

// Registry dispatches handlers by element type and phase, resolving
// supertype and wildcard registrations in linearization order.
type Registry = ability.Registry[Handler]

// NewRegistry creates an ability registry bound to a type hierarchy,
// typically the store's frozen *graph.Schema. A nil hierarchy dispatches
// on exact type names and the wildcard only.
func NewRegistry(h ability.Hierarchy) *Registry {
	return ability.New[Handler](h)
}

// Field declares one walker field.
type Field struct {
	// Name is the field identifier.
	Name string

	// Default applies when the spawn omits the field. Ignored for
	// required fields.
	Default any

	// Required rejects spawns that omit the field.
	Required bool

	// Rule is an optional go-playground/validator tag string applied to
	// the spawned value, e.g. "gte=0,lte=130" or "oneof=bfs dfs".
	Rule string
}

// Spec declares a walker type: its name, its fields, and optionally its
// own ability registry.
//
// Description:
//
//	A Spec is a template; Coordinator.Spawn instantiates it into an
//	isolated walker with validated field values. Specs are immutable
//	after construction and safe to share across concurrent spawns.
type Spec struct {
	// Name is the walker type name.
	Name string

	// Fields declares the walker's fields in order.
	Fields []Field

	// Abilities overrides the engine's default registry for walkers of
	// this spec. Nil falls back to the engine registry.
	Abilities *Registry
}

// NewSpec creates a walker spec, validating the name and field
// declarations.
//
// Inputs:
//
//	name - walker type name. Must be a valid identifier.
//	fields - field declarations. Names must be unique identifiers.
//
// Outputs:
//
//	*Spec - the spec.
//	error - ConfigError on an invalid name or field declaration.
func NewSpec(name string, fields ...Field) (*Spec, error) {
	s := &Spec{Name: name, Fields: fields}
	if err := s.check(); err != nil {
		return nil, err
	}
	return s, nil
}

// check validates the spec's name and field declarations. Called by
// NewSpec and again at spawn so literal-constructed specs are covered.
func (s *Spec) check() error {
	if err := validation.ValidateDeclaredName(s.Name); err != nil {
		return NewConfigError(s.Name, "", err.Error())
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if err := validation.ValidateIdentifier(f.Name); err != nil {
			return NewConfigError(s.Name, f.Name, err.Error())
		}
		if seen[f.Name] {
			return NewConfigError(s.Name, f.Name, "duplicate field")
		}
		seen[f.Name] = true
	}
	return nil
}

// buildFields merges spawn-provided values with declared defaults and
// validates the result.
//
// Description:
//
//	Every provided name must be declared. Required fields must be
//	provided; optional absent fields take their declared default.
//	Fields with a Rule are checked with validator.Var against the
//	final value.
//
// Inputs:
//
//	given - spawn-provided field values. May be nil.
//
// Outputs:
//
//	map[string]any - the walker's initial field values.
//	error - ConfigError describing the first violation.
func (s *Spec) buildFields(given map[string]any) (map[string]any, error) {
	declared := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		declared[f.Name] = true
	}
	for name := range given {
		if !declared[name] {
			return nil, NewConfigError(s.Name, name, "unknown field")
		}
	}

	out := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		v, ok := given[f.Name]
		if !ok {
			if f.Required {
				return nil, NewConfigError(s.Name, f.Name, "required field missing")
			}
			v = cloneFieldValue(f.Default)
		}
		if f.Rule != "" && v != nil {
			if err := validate.Var(v, f.Rule); err != nil {
				return nil, NewConfigError(s.Name, f.Name,
					fmt.Sprintf("value %v violates rule %q: %v", v, f.Rule, err))
			}
		}
		out[f.Name] = v
	}
	return out, nil
}

// cloneFieldValue copies map and slice defaults so one walker's
// mutations never leak into another's.
func cloneFieldValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, e := range tv {
			out[k] = cloneFieldValue(e)
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = cloneFieldValue(e)
		}
		return out
	default:
		return v
	}
}
