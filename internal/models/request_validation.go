package models

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierPattern is the identifier-safe set for database, table, and
// column names. Anything outside it is rejected before statement assembly.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// InvalidRequestError reports a request rejected by validation. No store
// call is ever made for an invalid request.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return "invalid request: " + e.Reason
}

// ValidIdentifier reports whether s is safe to interpolate into a statement
// as a database, table, or column name.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// Validate checks the full request shape: database, match key, and every
// table must be identifier-safe, and tables and prefixes must be non-empty
// with no duplicates.
func (r *DeleteRequest) Validate() error {
	if err := r.validateTarget(); err != nil {
		return err
	}
	if strings.TrimSpace(r.MatchKey) == "" {
		return &InvalidRequestError{Reason: "match key is required"}
	}
	if !ValidIdentifier(r.MatchKey) {
		return &InvalidRequestError{Reason: fmt.Sprintf("match key %q is not a valid identifier", r.MatchKey)}
	}
	if len(r.Prefixes) == 0 {
		return &InvalidRequestError{Reason: "at least one prefix is required"}
	}
	seen := make(map[string]bool, len(r.Prefixes))
	for _, prefix := range r.Prefixes {
		if prefix == "" {
			return &InvalidRequestError{Reason: "empty prefix given"}
		}
		if seen[prefix] {
			return &InvalidRequestError{Reason: fmt.Sprintf("prefix %q given more than once", prefix)}
		}
		seen[prefix] = true
	}
	return nil
}

// ValidateCheckout checks only what a status-only run needs: the match key
// and prefixes play no part in a checkout.
func (r *DeleteRequest) ValidateCheckout() error {
	return r.validateTarget()
}

func (r *DeleteRequest) validateTarget() error {
	if strings.TrimSpace(r.Database) == "" {
		return &InvalidRequestError{Reason: "database is required"}
	}
	if !ValidIdentifier(r.Database) {
		return &InvalidRequestError{Reason: fmt.Sprintf("database %q is not a valid identifier", r.Database)}
	}
	if len(r.Tables) == 0 {
		return &InvalidRequestError{Reason: "at least one table is required"}
	}
	seen := make(map[string]bool, len(r.Tables))
	for _, table := range r.Tables {
		if !ValidIdentifier(table) {
			return &InvalidRequestError{Reason: fmt.Sprintf("table %q is not a valid identifier", table)}
		}
		if seen[table] {
			return &InvalidRequestError{Reason: fmt.Sprintf("table %q given more than once", table)}
		}
		seen[table] = true
	}
	return nil
}
