// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided names that are used in
// storage keys, filter expression scopes, and backend queries. Using these
// validators prevents key-scheme injection (storage keys are colon-delimited)
// and keeps declared names addressable from filter expressions.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierPattern matches valid schema identifiers.
// Allows: letters, digits, underscores; must not start with a digit.
// Max length: 64 characters.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// reservedNames may not be declared by callers. "root" is the built-in
// root node type; "*" is the wildcard ability key.
var reservedNames = map[string]bool{
	"root": true,
	"*":    true,
}

// ValidateIdentifier validates a type, attribute, or walker field name.
//
// Valid identifiers:
//   - 1-64 characters
//   - Letters A-Z a-z, digits 0-9, underscores
//   - First character must not be a digit
//
// Identifiers end up in colon-delimited storage keys and as variable names
// in filter evaluation scopes, so anything outside this set is rejected.
//
// Example:
//
//	if err := validation.ValidateIdentifier(typeName); err != nil {
//	    return nil, fmt.Errorf("invalid type name: %w", err)
//	}
//	// Safe to embed in a storage key
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier: %q (must be 1-64 letters, digits, or underscores, not starting with a digit)", name)
	}

	return nil
}

// ValidateDeclaredName validates an identifier a caller wants to declare,
// additionally rejecting reserved names.
func ValidateDeclaredName(name string) error {
	if err := ValidateIdentifier(name); err != nil {
		return err
	}
	if reservedNames[name] {
		return fmt.Errorf("identifier %q is reserved", name)
	}
	return nil
}

// ValidateIdentifiers validates multiple identifiers.
// Returns an error listing all invalid names if any fail validation.
func ValidateIdentifiers(names []string) error {
	var invalid []string
	for _, n := range names {
		if err := ValidateIdentifier(n); err != nil {
			invalid = append(invalid, n)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid identifiers: %v", invalid)
	}
	return nil
}

// SanitizeIdentifier trims surrounding whitespace and validates the result.
// Returns the trimmed identifier if valid, or an error if invalid.
//
// Use this for names arriving from config files or API payloads:
//
//	name, err := validation.SanitizeIdentifier(userInput)
//	if err != nil {
//	    return err
//	}
//	// name is trimmed and validated
func SanitizeIdentifier(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if err := ValidateIdentifier(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}
