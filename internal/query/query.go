// Package query compiles keyword expressions into the search grammar the
// arXiv API accepts.
package query

import (
	"fmt"
	"strings"
)

// Group is a set of phrases that must all match (AND) in a paper's abstract.
type Group []string

// Expression combines groups with OR: a paper matches if any single group
// matches in full.
type Expression []Group

// Validate rejects empty expressions, empty groups and blank phrases.
func (e Expression) Validate() error {
	if len(e) == 0 {
		return fmt.Errorf("query: expression needs at least one keyword group")
	}
	for i, g := range e {
		if len(g) == 0 {
			return fmt.Errorf("query: keyword group %d is empty", i+1)
		}
		for _, phrase := range g {
			if strings.TrimSpace(phrase) == "" {
				return fmt.Errorf("query: keyword group %d contains a blank phrase", i+1)
			}
		}
	}
	return nil
}

// Encode serializes the expression into one search_query string per category:
//
//	((abs:"graph neural" AND abs:"sparse") OR (abs:"transformer")) AND cat:cs.LG
//
// Phrases are lower-cased and whitespace-collapsed; quoting makes multi-word
// phrases exact matches. Percent-encoding is left to the HTTP layer.
func (e Expression) Encode(categories []string) []CategoryQuery {
	branches := make([]string, 0, len(e))
	for _, g := range e {
		terms := make([]string, 0, len(g))
		for _, phrase := range g {
			terms = append(terms, fmt.Sprintf("abs:%q", normalizePhrase(phrase)))
		}
		branches = append(branches, "("+strings.Join(terms, " AND ")+")")
	}
	keywordClause := "(" + strings.Join(branches, " OR ") + ")"

	queries := make([]CategoryQuery, 0, len(categories))
	for _, cat := range categories {
		queries = append(queries, CategoryQuery{
			Category: cat,
			Query:    fmt.Sprintf("%s AND cat:%s", keywordClause, cat),
		})
	}
	return queries
}

// String renders the expression for human-readable output, e.g.
// "(graph AND neural), (transformer)".
func (e Expression) String() string {
	branches := make([]string, 0, len(e))
	for _, g := range e {
		branches = append(branches, "("+strings.Join(g, " AND ")+")")
	}
	return strings.Join(branches, ", ")
}

// CategoryQuery pairs a compiled query string with the category it targets.
// The API is queried once per category because OR-of-categories combined with
// compound boolean groups is unreliable on the remote side.
type CategoryQuery struct {
	Category string
	Query    string
}

func normalizePhrase(phrase string) string {
	return strings.ToLower(strings.Join(strings.Fields(phrase), " "))
}
