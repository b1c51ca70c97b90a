package query

import (
	"regexp"
	"strings"
)

// metaChars escapes regex metacharacters other than the two wildcard
// tokens a caller is allowed to write in a match? value, the same
// character table the teacher's provider layer used for DSL-pattern-to-regex
// translation (ConvertWildcardToRegex), generalized here to operate on a
// predicate's value rather than a whole DSL pattern string.
var metaChars = strings.NewReplacer(
	".", `\.`, "+", `\+`, "^", `\^`, "$", `\$`,
	"(", `\(`, ")", `\)`, "[", `\[`, "]", `\]`,
	"{", `\{`, "}", `\}`, "|", `\|`,
)

// wildcardToRegex converts a glob-style pattern (`*` and `?` wildcards) to
// an anchored regex, for match? values written with shell-style globs
// instead of full regex syntax.
func wildcardToRegex(pattern string) string {
	escaped := metaChars.Replace(pattern)
	escaped = strings.ReplaceAll(escaped, "*", ".*")
	escaped = strings.ReplaceAll(escaped, "?", ".")
	return "^" + escaped + "$"
}

// looksLikeGlob reports whether a match? value was written as a wildcard
// pattern (contains * or ? but no regex-only metacharacters) rather than a
// genuine regular expression.
func looksLikeGlob(value string) bool {
	if !strings.ContainsAny(value, "*?") {
		return false
	}
	return !strings.ContainsAny(value, `.+^$()[]{}|\`)
}

// Optimize returns a new ParsedQuery with semantics-preserving rewrites
// applied: it never changes which matches a query accepts, only how cheaply
// the native engine and the predicate/directive processors can decide that.
// The one exception is the wildcard substitution, which narrows `(_)` to
// `(identifier)` and so runs only when cfg.WildcardRewriteEnabled says the
// caller wants it. The visible order of predicates and directives is part
// of the contract, so rewrites replace clauses in place rather than
// appending.
func Optimize(pq *ParsedQuery, cfg Config) *ParsedQuery {
	out := &ParsedQuery{
		Source:   pq.Source,
		Patterns: pq.Patterns,
	}
	if !cfg.OptimizationEnabled {
		out.Predicates = pq.Predicates
		out.Directives = pq.Directives
		out.Features = pq.Features
		return out
	}

	out.Predicates = fuseEqualityIntoAnyOf(peepholeRegexes(substituteGlobs(pq.Predicates)))
	out.Directives = mergeStripsByCapture(pq.Directives)
	if cfg.WildcardRewriteEnabled {
		substituteWildcards(out)
	}
	out.Features = computeFeatures(out)
	return out
}

// substituteGlobs rewrites match? predicates whose value is a shell-style
// glob into an equivalent anchored regex, so the predicate processor never
// has to special-case glob syntax at evaluation time.
func substituteGlobs(preds []Predicate) []Predicate {
	out := make([]Predicate, len(preds))
	copy(out, preds)
	for i, p := range out {
		if p.Kind == PredMatch && looksLikeGlob(p.Value) {
			p.Value = wildcardToRegex(p.Value)
			out[i] = p
		}
	}
	return out
}

var (
	// plainGroupRe matches a capturing group with no alternation, nesting
	// or escapes inside — safe to fold into a non-capturing group, since
	// predicate evaluation only ever asks "does it match", never "what
	// did group N capture".
	plainGroupRe = regexp.MustCompile(`\(([^?|()\\][^|()\\]*)\)`)
	// classEscapedDotRe matches a needlessly escaped dot inside a
	// character class, where `.` is already literal.
	classEscapedDotRe = regexp.MustCompile(`(\[[^\]\\]*)\\\.([^\]]*\])`)
)

// simplifyRegex applies safe peephole rewrites to a match-family regex:
// fold plain capture groups into non-capturing ones, collapse the common
// digit and word classes into their shorthand, and drop the escape from a
// dot inside a character class.
func simplifyRegex(pattern string) string {
	if _, err := regexp.Compile(pattern); err != nil {
		return pattern
	}
	s := plainGroupRe.ReplaceAllString(pattern, `(?:$1)`)
	s = strings.ReplaceAll(s, "[0-9]", `\d`)
	s = strings.ReplaceAll(s, "[a-zA-Z0-9_]", `\w`)
	s = strings.ReplaceAll(s, "[A-Za-z0-9_]", `\w`)
	s = classEscapedDotRe.ReplaceAllString(s, "$1.$2")
	if _, err := regexp.Compile(s); err != nil {
		return pattern
	}
	return s
}

// peepholeRegexes runs simplifyRegex over every match-family predicate
// value.
func peepholeRegexes(preds []Predicate) []Predicate {
	out := make([]Predicate, len(preds))
	copy(out, preds)
	for i, p := range out {
		if p.Kind == PredMatch {
			p.Value = simplifyRegex(p.Value)
			out[i] = p
		}
	}
	return out
}

// fuseEqualityIntoAnyOf collapses three or more non-negated eq? predicates
// on the same capture, joined implicitly by OR semantics in this service's
// predicate family, into a single any-of? holding the values in
// first-appearance order. The fused predicate takes the position of the
// group's first member, so predicate order stays stable.
func fuseEqualityIntoAnyOf(preds []Predicate) []Predicate {
	byCapture := map[string][]int{}
	for i, p := range preds {
		if p.Kind == PredEq && !p.Negated {
			byCapture[p.Capture] = append(byCapture[p.Capture], i)
		}
	}

	fusedAt := map[int]Predicate{}
	drop := map[int]bool{}
	for capture, idxs := range byCapture {
		if len(idxs) < 3 {
			continue
		}
		values := make([]string, 0, len(idxs))
		for _, idx := range idxs {
			values = append(values, preds[idx].Value)
			drop[idx] = true
		}
		first := idxs[0]
		fusedAt[first] = Predicate{
			Kind:     PredAnyOf,
			Capture:  capture,
			Values:   values,
			Position: preds[first].Position,
		}
	}

	out := make([]Predicate, 0, len(preds))
	for i, p := range preds {
		if fused, ok := fusedAt[i]; ok {
			out = append(out, fused)
			continue
		}
		if drop[i] {
			continue
		}
		out = append(out, p)
	}
	return out
}

// mergeStripsByCapture joins every strip! directive group that shares a
// capture into one directive whose pattern is the group's alternation, in
// original order, placed where the group's first member was.
func mergeStripsByCapture(dirs []Directive) []Directive {
	byCapture := map[string][]int{}
	for i, d := range dirs {
		if d.Kind == DirStrip && len(d.Parameters) > 0 {
			byCapture[d.Capture] = append(byCapture[d.Capture], i)
		}
	}

	mergedAt := map[int]Directive{}
	drop := map[int]bool{}
	for capture, idxs := range byCapture {
		if len(idxs) < 2 {
			continue
		}
		var patterns []string
		for _, idx := range idxs {
			patterns = append(patterns, dirs[idx].Parameters...)
			drop[idx] = true
		}
		parts := make([]string, 0, len(patterns))
		for _, p := range patterns {
			if _, err := regexp.Compile(p); err == nil {
				parts = append(parts, "(?:"+p+")")
			} else {
				parts = append(parts, regexp.QuoteMeta(p))
			}
		}
		first := idxs[0]
		mergedAt[first] = Directive{
			Kind:       DirStrip,
			Capture:    capture,
			Parameters: []string{strings.Join(parts, "|")},
			Position:   dirs[first].Position,
			Source:     dirs[first].Source,
		}
	}

	out := make([]Directive, 0, len(dirs))
	for i, d := range dirs {
		if merged, ok := mergedAt[i]; ok {
			out = append(out, merged)
			continue
		}
		if drop[i] {
			continue
		}
		out = append(out, d)
	}
	return out
}

// wildcardCaptureRe matches a `(_)` wildcard node immediately bound to a
// capture — the only place the substitution is unambiguous, since a
// wildcard that isn't itself captured may be load-bearing for the
// pattern's shape.
var wildcardCaptureRe = regexp.MustCompile(`\(\s*_\s*\)(\s*@)`)

// substituteWildcards textually rewrites captured `(_)` nodes to
// `(identifier)` in the query source and its patterns.
func substituteWildcards(pq *ParsedQuery) {
	rewrite := func(s string) string {
		return wildcardCaptureRe.ReplaceAllString(s, "(identifier)$1")
	}
	pq.Source = rewrite(pq.Source)
	patterns := make([]Pattern, len(pq.Patterns))
	copy(patterns, pq.Patterns)
	for i, p := range patterns {
		p.Source = rewrite(p.Source)
		patterns[i] = p
	}
	pq.Patterns = patterns
}
