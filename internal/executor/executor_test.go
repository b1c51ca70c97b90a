package executor

import (
	"context"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxhq/queryforge/internal/query"
)

func parseJS(t *testing.T, code string) *sitter.Tree {
	t.Helper()
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, []byte(code))
	require.NoError(t, err)
	return tree
}

func fullCfg() query.Config {
	return query.Config{
		PredicatesEnabled:     true,
		DirectivesEnabled:     true,
		MaxPredicatesPerQuery: 32,
		MaxDirectivesPerQuery: 16,
		AllowedPredicates: map[query.PredicateKind]bool{
			query.PredEq: true, query.PredMatch: true, query.PredAnyOf: true,
			query.PredIs: true, query.PredIsNot: true,
		},
		AllowedDirectives: map[query.DirectiveKind]bool{
			query.DirSet: true, query.DirStrip: true, query.DirSelectAdjacent: true,
		},
		OptimizationEnabled: true,
	}
}

func TestExecute_EqualityPredicateFiltersToOneMatch(t *testing.T) {
	code := "let test = 1; let other = 2;"
	tree := parseJS(t, code)
	defer tree.Close()

	result, err := Execute(context.Background(), tree, []byte(code), javascript.GetLanguage(),
		`((identifier) @id (#eq? @id "test"))`, fullCfg())
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, "test", result.Matches[0].OriginalText)
	assert.GreaterOrEqual(t, result.Metrics.NativeMillis, 0.0)
}

func TestExecute_FusionScenario(t *testing.T) {
	code := "let a = 1; let b = 2; let c = 3; let d = 4;"
	tree := parseJS(t, code)
	defer tree.Close()

	result, err := Execute(context.Background(), tree, []byte(code), javascript.GetLanguage(),
		`((identifier) @id (#eq? @id "a") (#eq? @id "b") (#eq? @id "c"))`, fullCfg())
	require.NoError(t, err)

	require.Len(t, result.Matches, 3)
	texts := []string{result.Matches[0].OriginalText, result.Matches[1].OriginalText, result.Matches[2].OriginalText}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, texts)
}

func TestExecute_InvalidRegexShortCircuitsWithDedicatedError(t *testing.T) {
	code := "let test = 1;"
	tree := parseJS(t, code)
	defer tree.Close()

	result, err := Execute(context.Background(), tree, []byte(code), javascript.GetLanguage(),
		`((identifier) @id (#match? @id "[invalid"))`, fullCfg())
	require.Error(t, err)
	assert.ErrorIs(t, err, query.ErrInvalidRegex)
	assert.Empty(t, result.Matches)
}

func TestExecute_StripDirectiveRewritesProcessedText(t *testing.T) {
	code := `let greeting = "hello world";`
	tree := parseJS(t, code)
	defer tree.Close()

	result, err := Execute(context.Background(), tree, []byte(code), javascript.GetLanguage(),
		`((string) @s) (#strip! @s "world")`, fullCfg())
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)
	assert.Contains(t, result.Matches[0].OriginalText, "world")
	assert.NotContains(t, result.Matches[0].ProcessedText, "world")
}

func TestExecute_EmptyPredicatesStillReportsMetrics(t *testing.T) {
	code := "let test = 1;"
	tree := parseJS(t, code)
	defer tree.Close()

	result, err := Execute(context.Background(), tree, []byte(code), javascript.GetLanguage(),
		`((identifier) @id)`, fullCfg())
	require.NoError(t, err)
	assert.NotEmpty(t, result.Matches)
	assert.True(t, result.Validation.IsValid)
}

func TestExecute_DeterministicAcrossRuns(t *testing.T) {
	code := "let a = 1; let b = 2;"
	tree := parseJS(t, code)
	defer tree.Close()

	first, err := Execute(context.Background(), tree, []byte(code), javascript.GetLanguage(), `((identifier) @id)`, fullCfg())
	require.NoError(t, err)
	second, err := Execute(context.Background(), tree, []byte(code), javascript.GetLanguage(), `((identifier) @id)`, fullCfg())
	require.NoError(t, err)

	require.Equal(t, len(first.Matches), len(second.Matches))
	for i := range first.Matches {
		assert.Equal(t, first.Matches[i].OriginalText, second.Matches[i].OriginalText)
		assert.Equal(t, first.Matches[i].StartByte, second.Matches[i].StartByte)
	}
}

func TestExecute_SetDirectiveAnnotatesMetadata(t *testing.T) {
	code := "let test = 1;"
	tree := parseJS(t, code)
	defer tree.Close()

	result, err := Execute(context.Background(), tree, []byte(code), javascript.GetLanguage(),
		`((identifier) @id (#set! @id "category" "variable"))`, fullCfg())
	require.NoError(t, err)
	require.NotEmpty(t, result.Matches)
	assert.Equal(t, "variable", result.Matches[0].Metadata["category"])
}

func TestExecute_OptimizedMatchesEqualUnoptimized(t *testing.T) {
	code := "let a = 1; let b = 2; let c = 3; let d = 4;"
	tree := parseJS(t, code)
	defer tree.Close()

	querySource := `((identifier) @id (#eq? @id "a") (#eq? @id "b") (#eq? @id "c"))`

	on := fullCfg()
	off := fullCfg()
	off.OptimizationEnabled = false

	optimized, err := Execute(context.Background(), tree, []byte(code), javascript.GetLanguage(), querySource, on)
	require.NoError(t, err)
	plain, err := Execute(context.Background(), tree, []byte(code), javascript.GetLanguage(), querySource, off)
	require.NoError(t, err)

	var a, b []string
	for _, m := range optimized.Matches {
		a = append(a, m.OriginalText)
	}
	for _, m := range plain.Matches {
		b = append(b, m.OriginalText)
	}
	assert.ElementsMatch(t, a, b)
}

func TestExecute_ReportsOptimizedQueryShape(t *testing.T) {
	code := "let a = 1; let b = 2; let c = 3;"
	tree := parseJS(t, code)
	defer tree.Close()

	result, err := Execute(context.Background(), tree, []byte(code), javascript.GetLanguage(),
		`((identifier) @id (#eq? @id "a") (#eq? @id "b") (#eq? @id "c"))`, fullCfg())
	require.NoError(t, err)
	require.NotNil(t, result.Optimized)
	require.Len(t, result.Optimized.Predicates, 1)
	assert.Equal(t, query.PredAnyOf, result.Optimized.Predicates[0].Kind)
	require.Len(t, result.Parsed.Predicates, 3)
}

