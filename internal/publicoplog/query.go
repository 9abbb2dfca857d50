// Package publicoplog projects raw oplog entries into a self-describing,
// searchable form for API consumers (worker inspection, debugging UIs):
// every entry knows its own type name, and a Lucene-style Query tree can be
// evaluated against it without the caller needing to know the entry's shape
// up front. Grounded on public_oplog.rs's PublicOplogEntry/Query/matches.
package publicoplog

import (
	"regexp"
	"strings"
)

// QueryKind discriminates the Query union.
type QueryKind int

const (
	QueryTerm QueryKind = iota
	QueryPhrase
	QueryRegex
	QueryAnd
	QueryOr
	QueryNot
	QueryField
)

// Query is a single node of a search expression tree, built up the way a
// Lucene query string would be parsed: leaves match entry text, And/Or/Not
// combine leaves, and Field scopes a subquery to a named part of the entry:
// a dot-separated path, either a Log entry's "context" or "message" or a
// path into a decoded request/response value. Other entry fields carry no
// path and are matched only by unscoped leaves.
type Query struct {
	Kind QueryKind

	// QueryTerm / QueryPhrase / QueryRegex
	Text string

	// QueryAnd / QueryOr
	Queries []Query

	// QueryNot
	Inner *Query

	// QueryField
	Field      string
	FieldQuery *Query
}

func Term(text string) Query   { return Query{Kind: QueryTerm, Text: text} }
func Phrase(text string) Query { return Query{Kind: QueryPhrase, Text: text} }
func Regex(pattern string) Query { return Query{Kind: QueryRegex, Text: pattern} }
func And(qs ...Query) Query    { return Query{Kind: QueryAnd, Queries: qs} }
func Or(qs ...Query) Query     { return Query{Kind: QueryOr, Queries: qs} }
func Not(q Query) Query        { return Query{Kind: QueryNot, Inner: &q} }
func Field(field string, q Query) Query {
	return Query{Kind: QueryField, Field: field, FieldQuery: &q}
}

// leafMatches evaluates a QueryTerm/QueryPhrase/QueryRegex node against a
// candidate string. Term and Phrase both do a case-insensitive substring
// match; they are distinguished in the query builder only so a caller's
// intent (single token vs exact phrase) is preserved for future tokenizing
// backends, matching LeafQuery::matches's behaviour of treating both as
// literal substrings today.
func leafMatches(q Query, s string) bool {
	switch q.Kind {
	case QueryTerm, QueryPhrase:
		return strings.Contains(strings.ToLower(s), strings.ToLower(q.Text))
	case QueryRegex:
		re, err := regexp.Compile(q.Text)
		if err != nil {
			return false
		}
		return re.MatchString(s)
	default:
		return false
	}
}

// stringMatch implements PublicOplogEntry::string_match: a leaf query with
// a field path only matches strings reached via exactly that path (or any
// path, if the query carried no field scope), and only if the string itself
// satisfies the leaf query's term/phrase/regex test.
func stringMatch(s string, path, queryPath []string, leaf Query) bool {
	if len(queryPath) != 0 && !pathsEqualCaseInsensitive(path, queryPath) {
		return false
	}
	return leafMatches(leaf, s)
}

func pathsEqualCaseInsensitive(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}
