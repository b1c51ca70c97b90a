package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func matchFor(capture, nodeType, text string) Match {
	return Match{Capture: capture, NodeType: nodeType, OriginalText: text, Metadata: map[string]string{}}
}

func TestApplyPredicates_EqKeepsExactMatchOnly(t *testing.T) {
	matches := []Match{
		matchFor("id", "identifier", "test"),
		matchFor("id", "identifier", "other"),
	}
	preds := []Predicate{{Kind: PredEq, Capture: "id", Value: "test"}}

	out, err := ApplyPredicates(matches, preds, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "test", out[0].OriginalText)
}

func TestApplyPredicates_NotEqNegatesResult(t *testing.T) {
	matches := []Match{
		matchFor("id", "identifier", "test"),
		matchFor("id", "identifier", "other"),
	}
	preds := []Predicate{{Kind: PredEq, Capture: "id", Value: "test", Negated: true}}

	out, err := ApplyPredicates(matches, preds, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "other", out[0].OriginalText)
}

func TestApplyPredicates_MatchUsesRegex(t *testing.T) {
	matches := []Match{matchFor("id", "identifier", "test123")}
	preds := []Predicate{{Kind: PredMatch, Capture: "id", Value: "^test[0-9]+$"}}

	out, err := ApplyPredicates(matches, preds, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestApplyPredicates_InvalidRegexReturnsError(t *testing.T) {
	matches := []Match{matchFor("id", "identifier", "test")}
	preds := []Predicate{{Kind: PredMatch, Capture: "id", Value: "[invalid"}}

	_, err := ApplyPredicates(matches, preds, nil)
	assert.Error(t, err)
}

func TestApplyPredicates_AnyOf(t *testing.T) {
	matches := []Match{
		matchFor("id", "identifier", "a"),
		matchFor("id", "identifier", "b"),
		matchFor("id", "identifier", "d"),
	}
	preds := []Predicate{{Kind: PredAnyOf, Capture: "id", Values: []string{"a", "b", "c"}}}

	out, err := ApplyPredicates(matches, preds, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestApplyPredicates_IsIdentifierAndFunctionCategories(t *testing.T) {
	matches := []Match{
		matchFor("n", "identifier", "foo"),
		matchFor("n", "function_definition", "bar"),
		matchFor("n", "string_literal", "\"x\""),
	}

	idOut, err := ApplyPredicates(matches, []Predicate{{Kind: PredIs, Capture: "n", Value: "identifier"}}, nil)
	require.NoError(t, err)
	require.Len(t, idOut, 1)
	assert.Equal(t, "identifier", idOut[0].NodeType)

	fnOut, err := ApplyPredicates(matches, []Predicate{{Kind: PredIs, Capture: "n", Value: "function"}}, nil)
	require.NoError(t, err)
	require.Len(t, fnOut, 1)
	assert.Equal(t, "function_definition", fnOut[0].NodeType)
}

func TestApplyPredicates_IsKeywordChecksText(t *testing.T) {
	matches := []Match{
		matchFor("n", "identifier", "return"),
		matchFor("n", "identifier", "foo"),
	}
	out, err := ApplyPredicates(matches, []Predicate{{Kind: PredIs, Capture: "n", Value: "keyword"}}, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "return", out[0].OriginalText)
}

func TestApplyPredicates_IsNotInvertsIs(t *testing.T) {
	matches := []Match{
		matchFor("n", "identifier", "foo"),
		matchFor("n", "function_definition", "bar"),
	}
	out, err := ApplyPredicates(matches, []Predicate{{Kind: PredIsNot, Capture: "n", Value: "function"}}, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "identifier", out[0].NodeType)
}

func TestApplyPredicates_RetainsMatchWithNoApplicablePredicate(t *testing.T) {
	matches := []Match{matchFor("other", "identifier", "foo")}
	preds := []Predicate{{Kind: PredEq, Capture: "id", Value: "test"}}

	out, err := ApplyPredicates(matches, preds, nil)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestApplyPredicates_AnyEqBehavesLikeEq(t *testing.T) {
	matches := []Match{
		matchFor("id", "identifier", "test"),
		matchFor("id", "identifier", "other"),
	}
	preds := []Predicate{{Kind: PredEq, Capture: "id", Value: "test", Quantifier: true}}

	out, err := ApplyPredicates(matches, preds, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "test", out[0].OriginalText)
}
