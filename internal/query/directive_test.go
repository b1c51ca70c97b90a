package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDirectives_SetAnnotatesMetadata(t *testing.T) {
	matches := []Match{matchFor("id", "identifier", "foo")}
	dirs := []Directive{{Kind: DirSet, Capture: "id", Parameters: []string{"role", "target"}}}

	out, err := ApplyDirectives(matches, dirs, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "target", out[0].Metadata["role"])
	require.Len(t, out[0].DirectiveOutcomes, 1)
	assert.True(t, out[0].DirectiveOutcomes[0].Applied)
}

func TestApplyDirectives_StripRemovesMatchingText(t *testing.T) {
	m := matchFor("id", "identifier", "hello world")
	dirs := []Directive{{Kind: DirStrip, Capture: "id", Parameters: []string{"world"}}}

	out, err := ApplyDirectives([]Match{m}, dirs, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "hello ", out[0].ProcessedText)
	assert.Equal(t, "hello world", out[0].OriginalText)
}

func TestApplyDirectives_StripLeavesOtherCapturesUntouched(t *testing.T) {
	m := matchFor("other", "identifier", "hello world")
	dirs := []Directive{{Kind: DirStrip, Capture: "id", Parameters: []string{"world"}}}

	out, err := ApplyDirectives([]Match{m}, dirs, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Empty(t, out[0].ProcessedText)
}

func TestApplyDirectives_StripInvalidRegexReturnsError(t *testing.T) {
	m := matchFor("id", "identifier", "hello")
	dirs := []Directive{{Kind: DirStrip, Capture: "id", Parameters: []string{"[invalid"}}}

	_, err := ApplyDirectives([]Match{m}, dirs, nil)
	assert.Error(t, err)
}

func TestApplyDirectives_SelectAdjacentUnionsBothCaptures(t *testing.T) {
	matches := []Match{
		matchFor("a", "identifier", "foo"),
		matchFor("b", "call", "foo()"),
		matchFor("c", "comment", "unrelated"),
	}
	dirs := []Directive{{Kind: DirSelectAdjacent, Parameters: []string{"a", "b"}}}

	out, err := ApplyDirectives(matches, dirs, nil)
	require.NoError(t, err)
	require.Len(t, out, 2, "only the two named capture groups survive")

	var aOut, bOut Match
	for _, m := range out {
		switch m.Capture {
		case "a":
			aOut = m
		case "b":
			bOut = m
		case "c":
			t.Fatalf("capture %q should have been dropped", m.Capture)
		}
	}
	assert.Contains(t, aOut.AdjacentNodes, "call")
	assert.Contains(t, bOut.AdjacentNodes, "identifier")
}

func TestApplyDirectives_SelectAdjacentEmptyUnionDropsEverything(t *testing.T) {
	matches := []Match{matchFor("c", "comment", "unrelated")}
	dirs := []Directive{{Kind: DirSelectAdjacent, Parameters: []string{"a", "b"}}}

	out, err := ApplyDirectives(matches, dirs, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestApplyDirectives_SequentialOrderIsolatesFailure(t *testing.T) {
	m := matchFor("id", "identifier", "hello world")
	dirs := []Directive{
		{Kind: DirSet, Capture: "id", Parameters: []string{"k", "v"}},
		{Kind: DirStrip, Capture: "id", Parameters: []string{"world"}},
	}

	out, err := ApplyDirectives([]Match{m}, dirs, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "v", out[0].Metadata["k"])
	assert.Equal(t, "hello ", out[0].ProcessedText)
}
