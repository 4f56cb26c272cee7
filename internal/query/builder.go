// Package query compiles delete mutations and mutation-status lookups for
// the ClickHouse SQL dialect. Builders validate identifiers and escape
// literals; they never talk to the store.
package query

import (
	"fmt"
	"strings"

	"github.com/platformbuilds/chpurge/internal/models"
)

// Columns selected by BuildStatusLookup, usable as keys into the rows the
// store client returns.
const (
	ColMutationID = "mutation_id"
	ColCreateTime = "create_time"
	ColIsDone     = "is_done"
	ColPartsToDo  = "parts_to_do"
	ColFailReason = "latest_fail_reason"

	// ColMatches is the aliased count column of BuildPreviewCount.
	ColMatches = "matches"
)

// likeEscaper prepares a prefix for a single-quoted LIKE pattern. The store
// decodes the quoted literal first and applies LIKE semantics to the result,
// so percent, underscore and quote take a single backslash, while a literal
// backslash needs four: literal decoding halves them, and the surviving pair
// is the LIKE escape for one backslash.
var likeEscaper = strings.NewReplacer(`\`, `\\\\`, `'`, `\'`, `%`, `\%`, `_`, `\_`)

// BuildDelete compiles the delete mutation for one table. The predicate
// matches rows whose key column starts with any of the prefixes, one LIKE
// clause per prefix combined with OR.
func BuildDelete(database, table, key string, prefixes []string) (*models.MutationStatement, error) {
	if err := checkPredicateInputs(database, table, key, prefixes); err != nil {
		return nil, err
	}
	sql := fmt.Sprintf("ALTER TABLE %s.%s DELETE WHERE %s",
		database, table, prefixPredicate(key, prefixes))
	return &models.MutationStatement{
		Database:  database,
		Table:     table,
		SQL:       sql,
		Predicate: describePrefixes(key, prefixes),
	}, nil
}

// BuildStatusLookup returns a statement listing the mutations the store
// currently records for a table, oldest first, so the most recently
// submitted mutation is the last row.
func BuildStatusLookup(database, table string) (string, error) {
	if err := checkIdentifier("database", database); err != nil {
		return "", err
	}
	if err := checkIdentifier("table", table); err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"SELECT mutation_id, create_time, is_done, parts_to_do, latest_fail_reason"+
			" FROM system.mutations WHERE database = '%s' AND table = '%s'"+
			" ORDER BY create_time ASC",
		database, table), nil
}

// BuildPreview returns a statement sampling distinct key values the delete
// predicate would match, capped at limit rows. Ordered by key so the sample
// is stable across runs.
func BuildPreview(database, table, key string, prefixes []string, limit int) (string, error) {
	if err := checkPredicateInputs(database, table, key, prefixes); err != nil {
		return "", err
	}
	if limit <= 0 {
		return "", &models.InvalidRequestError{Reason: "preview limit must be positive"}
	}
	return fmt.Sprintf("SELECT DISTINCT %s FROM %s.%s WHERE %s ORDER BY %s LIMIT %d",
		key, database, table, prefixPredicate(key, prefixes), key, limit), nil
}

// BuildPreviewCount returns a statement counting the distinct key values the
// delete predicate would match.
func BuildPreviewCount(database, table, key string, prefixes []string) (string, error) {
	if err := checkPredicateInputs(database, table, key, prefixes); err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT count(DISTINCT %s) AS matches FROM %s.%s WHERE %s",
		key, database, table, prefixPredicate(key, prefixes)), nil
}

func checkPredicateInputs(database, table, key string, prefixes []string) error {
	if err := checkIdentifier("database", database); err != nil {
		return err
	}
	if err := checkIdentifier("table", table); err != nil {
		return err
	}
	if err := checkIdentifier("match key", key); err != nil {
		return err
	}
	if len(prefixes) == 0 {
		return &models.InvalidRequestError{Reason: "at least one prefix is required"}
	}
	return nil
}

func checkIdentifier(kind, s string) error {
	if !models.ValidIdentifier(s) {
		return &models.InvalidRequestError{Reason: fmt.Sprintf("%s %q is not a valid identifier", kind, s)}
	}
	return nil
}

func prefixPredicate(key string, prefixes []string) string {
	clauses := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		clauses = append(clauses, fmt.Sprintf("%s LIKE '%s%%'", key, likeEscaper.Replace(p)))
	}
	return strings.Join(clauses, " OR ")
}

func describePrefixes(key string, prefixes []string) string {
	quoted := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		quoted = append(quoted, fmt.Sprintf("%q", p))
	}
	return fmt.Sprintf("%s starting with %s", key, strings.Join(quoted, " or "))
}
