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
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianSpatial/services/spatial/ability"
	"github.com/AleutianAI/AleutianSpatial/services/spatial/graph"
)

// Control sentinels returned from ability handlers. Neither surfaces to
// Spawn callers; the engine consumes them.
var (
	// ErrDisengaged ends the walk immediately. Returned by
	// Context.Disengage; a handler returning it bare has the same effect.
	ErrDisengaged = errors.New("walker: disengaged")

	// ErrSkip ends handler processing for the current element and phase
	// only. Returned by Context.Skip.
	ErrSkip = errors.New("walker: skip element")
)

var (
	// ErrExpiredContext is returned when an ability context is used after
	// its owning handler invocation finished, typically from a background
	// task that outlived a join.
	ErrExpiredContext = errors.New("walker: ability context expired")

	// ErrStepLimit is returned when a walk exceeds the engine's configured
	// maximum number of element visits.
	ErrStepLimit = errors.New("walker: step limit exceeded")

	// ErrBadIndex is reserved for visit-queue index validation. Current
	// insertion semantics clamp out-of-range indices instead.
	ErrBadIndex = errors.New("walker: bad queue index")
)

// ConfigError reports a spawn rejected before any traversal ran: an
// unknown, missing, or rule-violating walker field, or a malformed spec.
type ConfigError struct {
	// Walker is the spec name.
	Walker string

	// Field is the offending field name, or "" for spec-level problems.
	Field string

	// Detail describes the violation.
	Detail string
}

// NewConfigError creates a ConfigError.
func NewConfigError(walkerName, field, detail string) *ConfigError {
	return &ConfigError{Walker: walkerName, Field: field, Detail: detail}
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("walker %q: %s", e.Walker, e.Detail)
	}
	return fmt.Sprintf("walker %q: field %q: %s", e.Walker, e.Field, e.Detail)
}

// AbilityError wraps an error returned by an ability handler (or one of
// its background tasks) with the walker and element it fired on.
//
// Unwraps to the handler's error so callers can match their own
// sentinels with errors.Is.
type AbilityError struct {
	// WalkerID identifies the walker instance.
	WalkerID string

	// Walker is the spec name.
	Walker string

	// Elem is the element the ability was running on.
	Elem graph.Ref

	// Phase is the ability phase that failed.
	Phase ability.Phase

	// Err is the handler's error.
	Err error
}

// Error implements the error interface.
func (e *AbilityError) Error() string {
	return fmt.Sprintf("walker %q (%s): %s ability on %s %q (%s): %v",
		e.Walker, e.WalkerID, e.Phase, e.Elem.Kind, e.Elem.ID, e.Elem.Type, e.Err)
}

// Unwrap returns the handler's error.
func (e *AbilityError) Unwrap() error {
	return e.Err
}
