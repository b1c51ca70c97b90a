package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_PatternAndEqPredicate(t *testing.T) {
	pq := Parse(`((identifier) @id (#eq? @id "test"))`)

	require.Len(t, pq.Patterns, 1)
	assert.Contains(t, pq.Patterns[0].Captures, "id")

	require.Len(t, pq.Predicates, 1)
	p := pq.Predicates[0]
	assert.Equal(t, PredEq, p.Kind)
	assert.Equal(t, "id", p.Capture)
	assert.Equal(t, "test", p.Value)
	assert.False(t, p.Negated)
}

func TestParse_NegatedAndAnyVariants(t *testing.T) {
	cases := []struct {
		name       string
		clause     string
		wantKind   PredicateKind
		wantNeg    bool
		wantQuant  bool
	}{
		{"not-eq", `(#not-eq? @id "x")`, PredEq, true, false},
		{"not-match", `(#not-match? @id "^x")`, PredMatch, true, false},
		{"any-eq", `(#any-eq? @id "x")`, PredEq, false, true},
		{"any-match", `(#any-match? @id "^x")`, PredMatch, false, true},
		{"not-is", `(#not-is? @id "keyword")`, PredIsNot, true, false},
		{"is-not", `(#is-not? @id "keyword")`, PredIsNot, true, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			pq := Parse(`((identifier) @id)` + c.clause)
			require.Len(t, pq.Predicates, 1)
			p := pq.Predicates[0]
			assert.Equal(t, c.wantKind, p.Kind)
			assert.Equal(t, c.wantNeg, p.Negated)
			assert.Equal(t, c.wantQuant, p.Quantifier)
		})
	}
}

func TestParse_AnyOfPredicate(t *testing.T) {
	pq := Parse(`((identifier) @id (#any-of? @id "a" "b" "c"))`)
	require.Len(t, pq.Predicates, 1)
	p := pq.Predicates[0]
	assert.Equal(t, PredAnyOf, p.Kind)
	assert.Equal(t, []string{"a", "b", "c"}, p.Values)
}

func TestParse_AnyOfJSONArrayLiteral(t *testing.T) {
	cases := []struct {
		name   string
		clause string
	}{
		{"json array", `(#any-of? @id ["a","b","c"])`},
		{"json array with spaces", `(#any-of? @id ["a", "b", "c"])`},
		{"single-quoted elements", `(#any-of? @id ['a','b','c'])`},
		{"bare space-separated", `(#any-of? @id [a b c])`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			pq := Parse(`((identifier) @id)` + c.clause)
			require.Len(t, pq.Predicates, 1)
			assert.Equal(t, []string{"a", "b", "c"}, pq.Predicates[0].Values)
		})
	}
}

func TestParse_SetStripSelectAdjacentDirectives(t *testing.T) {
	pq := Parse(`((identifier) @id) (#set! @id "role" "target") (#strip! @id "\\s+") (#select-adjacent! @a @b)`)
	require.Len(t, pq.Directives, 3)

	set := pq.Directives[0]
	assert.Equal(t, DirSet, set.Kind)
	assert.Equal(t, "id", set.Capture)
	assert.Equal(t, []string{"role", "target"}, set.Parameters)

	strip := pq.Directives[1]
	assert.Equal(t, DirStrip, strip.Kind)
	assert.Equal(t, "id", strip.Capture)
	require.Len(t, strip.Parameters, 1)

	adj := pq.Directives[2]
	assert.Equal(t, DirSelectAdjacent, adj.Kind)
	assert.Empty(t, adj.Capture)
	assert.Equal(t, []string{"a", "b"}, adj.Parameters)
}

func TestParse_UnrecognizedClauseIsDropped(t *testing.T) {
	pq := Parse(`((identifier) @id) (#bogus? @id "x")`)
	assert.Empty(t, pq.Predicates)
	assert.Empty(t, pq.Directives)
}

func TestParse_FeaturesComplexityClassification(t *testing.T) {
	simple := Parse(`((identifier) @id)`)
	assert.Equal(t, Simple, simple.Features.Complexity)
	assert.False(t, simple.Features.HasPredicates)

	moderate := Parse(`((identifier) @id (#eq? @id "a") (#eq? @id "b") (#eq? @id "c"))`)
	assert.Equal(t, Moderate, moderate.Features.Complexity)
	assert.True(t, moderate.Features.HasPredicates)

	complexQ := Parse(`((function_declaration (identifier) @id (#eq? @id "a"))+ . [(call_expression) (member_expression)] @x (#set! @x "k" "v"))`)
	assert.Equal(t, Complex, complexQ.Features.Complexity)
}

func TestParse_FeatureFlagsDetectWildcardsAndQuantifiers(t *testing.T) {
	pq := Parse(`((call_expression (_) @arg)+ @call)`)
	assert.True(t, pq.Features.HasWildcards)
	assert.True(t, pq.Features.HasQuantifiers)
	assert.False(t, pq.Features.HasAlternations)
}

func TestParse_CommentLineIgnored(t *testing.T) {
	pq := Parse("; a comment with (parens)\n((identifier) @id)")
	require.Len(t, pq.Patterns, 1)
}
