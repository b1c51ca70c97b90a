// Package executor orchestrates a single query against a single syntax
// tree: parse the query text, validate and optimize it, compile and run it
// natively against the tree, then filter and transform the resulting
// matches through the predicate and directive processors.
//
// This is the direct descendant of a dependency-injected "universal
// evaluator" pattern — the same compile-then-iterate tree-sitter query loop
// works identically for every language, so nothing here is language
// specific. What changed is what sits on either side of that loop: instead
// of translating a provider-specific DSL into tree-sitter query text, the
// query text IS already tree-sitter S-expression syntax, augmented with a
// closed set of predicates and directives this package evaluates itself.
package executor

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/oxhq/queryforge/internal/query"
)

// Metrics records per-phase timing for one Execute call, returned alongside
// matches so the service coordinator can attach performance data to its
// response without re-instrumenting the pipeline itself.
type Metrics struct {
	ParseMillis     float64
	ValidateMillis  float64
	OptimizeMillis  float64
	NativeMillis    float64
	PredicateMillis float64
	DirectiveMillis float64
	TotalMillis     float64
}

// Result is the outcome of one Execute call. Optimized is the rewritten
// query that actually ran (equal to Parsed when optimization is disabled);
// responses report its predicate/directive lists and features, since those
// are what the match set reflects.
type Result struct {
	Matches    []query.Match
	Parsed     *query.ParsedQuery
	Optimized  *query.ParsedQuery
	Validation query.ValidationResult
	Metrics    Metrics
}

// Execute runs querySource against source (already-parsed into tree,
// compiled against lang) and returns the final, post-processed match
// stream. The 9-step contract is: parse -> regex precompile -> validate -> (fail fast on
// invalid) -> optimize -> native compile -> native execute -> predicates ->
// directives -> metrics. Validation happens strictly before native
// compilation (resolving the "validate vs. compile order" design question
// in favor of precise diagnostics over a query that happens to compile but
// makes no semantic sense).
func Execute(ctx context.Context, tree *sitter.Tree, source []byte, lang *sitter.Language, querySource string, cfg query.Config) (*Result, error) {
	t0 := time.Now()

	tParse := time.Now()
	parsed := query.Parse(querySource)
	metrics := Metrics{ParseMillis: msSince(tParse)}

	// Regexes compile before anything else so a bad pattern surfaces as
	// the dedicated diagnostic rather than one entry among the
	// validator's findings.
	regexCache := make(map[string]*regexp.Regexp)
	if err := query.PrecompileRegexes(parsed, regexCache); err != nil {
		return &Result{Parsed: parsed, Metrics: metrics}, err
	}

	tValidate := time.Now()
	validation := query.Validate(parsed, cfg)
	metrics.ValidateMillis = msSince(tValidate)
	if !validation.IsValid {
		return &Result{Parsed: parsed, Validation: validation, Metrics: metrics}, fmt.Errorf("query validation failed: %d error(s)", len(validation.Errors))
	}

	tOptimize := time.Now()
	optimized := query.Optimize(parsed, cfg)
	metrics.OptimizeMillis = msSince(tOptimize)

	tNative := time.Now()
	rawMatches, err := runNative(ctx, tree, source, lang, optimized, parsed)
	metrics.NativeMillis = msSince(tNative)
	if err != nil {
		return &Result{Parsed: parsed, Optimized: optimized, Validation: validation, Metrics: metrics}, err
	}

	tPred := time.Now()
	filtered, err := query.ApplyPredicates(rawMatches, optimized.Predicates, regexCache)
	metrics.PredicateMillis = msSince(tPred)
	if err != nil {
		return &Result{Parsed: parsed, Optimized: optimized, Validation: validation, Metrics: metrics}, fmt.Errorf("predicate evaluation failed: %w", err)
	}

	tDir := time.Now()
	final, err := query.ApplyDirectives(filtered, optimized.Directives, regexCache)
	metrics.DirectiveMillis = msSince(tDir)
	if err != nil {
		return &Result{Parsed: parsed, Optimized: optimized, Validation: validation, Metrics: metrics}, fmt.Errorf("directive evaluation failed: %w", err)
	}

	metrics.TotalMillis = msSince(t0)
	return &Result{Matches: final, Parsed: parsed, Optimized: optimized, Validation: validation, Metrics: metrics}, nil
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

// runNative compiles the optimized query's source, with the predicate and
// directive clauses found by the parse (clauses) removed since this package
// evaluates those itself, into a single tree-sitter query (tree-sitter
// queries support multiple top-level patterns natively) and iterates every
// match the same way regardless of language: compile once, walk with a
// cursor, read captures off each match.
func runNative(ctx context.Context, tree *sitter.Tree, source []byte, lang *sitter.Language, pq *query.ParsedQuery, clauses *query.ParsedQuery) ([]query.Match, error) {
	if tree == nil {
		return nil, fmt.Errorf("executor: tree is nil")
	}
	if len(pq.Patterns) == 0 {
		return nil, fmt.Errorf("executor: no patterns to execute")
	}

	nativeSource := pq.Source
	for _, p := range clauses.Predicates {
		if p.Source != "" {
			nativeSource = strings.Replace(nativeSource, p.Source, "", 1)
		}
	}
	for _, d := range clauses.Directives {
		if d.Source != "" {
			nativeSource = strings.Replace(nativeSource, d.Source, "", 1)
		}
	}

	tsQuery, err := sitter.NewQuery([]byte(nativeSource), lang)
	if err != nil {
		return nil, fmt.Errorf("executor: native query compile failed: %w", err)
	}
	defer tsQuery.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	qc.Exec(tsQuery, tree.RootNode())

	var matches []query.Match
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		for _, cap := range m.Captures {
			node := cap.Node
			if node == nil {
				continue
			}
			name := tsQuery.CaptureNameForId(cap.Index)
			matches = append(matches, query.Match{
				Capture:      name,
				NodeType:     node.Type(),
				StartByte:    int(node.StartByte()),
				EndByte:      int(node.EndByte()),
				StartLine:    int(node.StartPoint().Row) + 1,
				StartColumn:  int(node.StartPoint().Column) + 1,
				EndLine:      int(node.EndPoint().Row) + 1,
				EndColumn:    int(node.EndPoint().Column) + 1,
				OriginalText: string(source[node.StartByte():node.EndByte()]),
				Metadata:     map[string]string{},
			})
		}
	}
	return matches, nil
}
