// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package filter resolves visit targets: it evaluates traversal filter
// expressions against a node's neighbors and returns the matching element
// references in adjacency order.
//
// Filter expressions use HCL expression syntax evaluated per candidate,
// with the candidate node bound as `type`, `id`, and `attrs`, and the
// connecting edge as `edge` (an object with type, id, attrs, directed):
//
//	type == "city" && attrs.population > 100000
//	edge.type == "road" && edge.attrs.toll == false
//
// A candidate that evaluates to false is silently dropped. An expression
// that fails to parse, references an unknown variable, or produces a
// non-boolean aborts the whole visit with an EvalError; the traversal
// engine surfaces it as the ability's error.
package filter

import (
	"errors"
	"fmt"

	"github.com/hashicorp/hcl/v2"
)

// ErrEval indicates a filter expression could not be compiled or
// evaluated. Matched with errors.Is; details ride in EvalError.
var ErrEval = errors.New("filter: expression evaluation failed")

// EvalError reports a filter compilation or evaluation failure with the
// offending expression source.
//
// Unwraps to ErrEval so callers can match with errors.Is.
type EvalError struct {
	// Expr is the filter expression source.
	Expr string

	// Detail describes the failure.
	Detail string

	// Diags carries HCL diagnostics when the failure came from the HCL
	// parser or evaluator. May be nil.
	Diags hcl.Diagnostics
}

// NewEvalError creates an EvalError.
func NewEvalError(expr, detail string, diags hcl.Diagnostics) *EvalError {
	return &EvalError{Expr: expr, Detail: detail, Diags: diags}
}

// Error implements the error interface.
func (e *EvalError) Error() string {
	if len(e.Diags) > 0 {
		return fmt.Sprintf("filter: %q: %s: %s", e.Expr, e.Detail, e.Diags.Error())
	}
	return fmt.Sprintf("filter: %q: %s", e.Expr, e.Detail)
}

// Unwrap returns ErrEval for errors.Is matching.
func (e *EvalError) Unwrap() error {
	return ErrEval
}
