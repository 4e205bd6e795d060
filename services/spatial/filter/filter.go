// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package filter

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/AleutianAI/AleutianSpatial/services/spatial/graph"
)

// Filter is a compiled traversal filter expression. A Filter is immutable
// and safe for concurrent use by multiple goroutines.
type Filter struct {
	src  string
	expr hcl.Expression
}

// Candidate is one neighbor under consideration: the node on the far side
// and the edge that reaches it.
type Candidate struct {
	Node graph.Node
	Edge graph.Edge
}

// =============================================================================
// Compilation
// =============================================================================

// Compile parses an HCL filter expression. The empty expression compiles
// to a filter that matches everything.
//
// Description:
//
//	Parses src as a native-syntax HCL expression. Compilation only checks
//	syntax; variable references are resolved per candidate at match time,
//	so `attrs.population > 10` compiles even though no candidate is in
//	scope yet.
//
// Inputs:
//
//	src - filter expression source, e.g. `type == "city"`.
//
// Outputs:
//
//	*Filter - the compiled filter.
//	error - EvalError wrapping the HCL diagnostics on a syntax error.
func Compile(src string) (*Filter, error) {
	if src == "" {
		return &Filter{src: src}, nil
	}
	expr, diags := hclsyntax.ParseExpression([]byte(src), "filter.hcl", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, NewEvalError(src, "parse error", diags)
	}
	return &Filter{src: src, expr: expr}, nil
}

// Source returns the expression source the filter was compiled from.
func (f *Filter) Source() string {
	return f.src
}

// =============================================================================
// Matching
// =============================================================================

// Match evaluates the filter against one candidate.
//
// Description:
//
//	Builds an evaluation scope from the candidate (node type/id/attrs plus
//	the connecting edge as an object) and evaluates the compiled
//	expression in it. The expression must produce a boolean.
//
// Inputs:
//
//	cand - the neighbor node and connecting edge.
//
// Outputs:
//
//	bool - whether the candidate passed.
//	error - EvalError if evaluation failed or the result was not boolean.
func (f *Filter) Match(cand Candidate) (bool, error) {
	if f.expr == nil {
		return true, nil
	}

	evalCtx := &hcl.EvalContext{
		Variables: candidateVariables(cand),
	}
	val, diags := f.expr.Value(evalCtx)
	if diags.HasErrors() {
		return false, NewEvalError(f.src, "evaluation error", diags)
	}
	if val.IsNull() {
		return false, NewEvalError(f.src, "expression produced null, want bool", nil)
	}
	if !val.Type().Equals(cty.Bool) {
		return false, NewEvalError(f.src,
			fmt.Sprintf("expression produced %s, want bool", val.Type().FriendlyName()), nil)
	}
	return val.True(), nil
}

func candidateVariables(cand Candidate) map[string]cty.Value {
	return map[string]cty.Value{
		"type":  cty.StringVal(cand.Node.Type),
		"id":    cty.StringVal(cand.Node.ID),
		"attrs": attrsToCty(cand.Node.Attrs),
		"edge": cty.ObjectVal(map[string]cty.Value{
			"type":     cty.StringVal(cand.Edge.Type),
			"id":       cty.StringVal(cand.Edge.ID),
			"attrs":    attrsToCty(cand.Edge.Attrs),
			"directed": cty.BoolVal(cand.Edge.Directed),
		}),
	}
}

// =============================================================================
// Attribute conversion
// =============================================================================

// attrsToCty converts an attribute map into a cty object value. Keys are
// emitted in sorted order so repeated conversions produce identical types.
func attrsToCty(attrs map[string]any) cty.Value {
	if len(attrs) == 0 {
		return cty.EmptyObjectVal
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	vals := make(map[string]cty.Value, len(attrs))
	for _, k := range keys {
		vals[k] = valueToCty(attrs[k])
	}
	return cty.ObjectVal(vals)
}

// valueToCty maps a dynamically typed attribute value onto the cty type
// system. Unsupported types degrade to their string rendering rather than
// failing the whole evaluation.
func valueToCty(v any) cty.Value {
	switch tv := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType)
	case bool:
		return cty.BoolVal(tv)
	case string:
		return cty.StringVal(tv)
	case int:
		return cty.NumberIntVal(int64(tv))
	case int8:
		return cty.NumberIntVal(int64(tv))
	case int16:
		return cty.NumberIntVal(int64(tv))
	case int32:
		return cty.NumberIntVal(int64(tv))
	case int64:
		return cty.NumberIntVal(tv)
	case uint:
		return cty.NumberUIntVal(uint64(tv))
	case uint8:
		return cty.NumberUIntVal(uint64(tv))
	case uint16:
		return cty.NumberUIntVal(uint64(tv))
	case uint32:
		return cty.NumberUIntVal(uint64(tv))
	case uint64:
		return cty.NumberUIntVal(tv)
	case float32:
		return cty.NumberFloatVal(float64(tv))
	case float64:
		return cty.NumberFloatVal(tv)
	case *big.Float:
		return cty.NumberVal(tv)
	case []any:
		if len(tv) == 0 {
			return cty.EmptyTupleVal
		}
		elems := make([]cty.Value, len(tv))
		for i, e := range tv {
			elems[i] = valueToCty(e)
		}
		return cty.TupleVal(elems)
	case map[string]any:
		return attrsToCty(tv)
	default:
		return cty.StringVal(fmt.Sprintf("%v", tv))
	}
}
