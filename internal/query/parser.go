package query

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// captureRe finds every @capture-name token in a pattern.
var captureRe = regexp.MustCompile(`@([A-Za-z_][A-Za-z0-9_.\-]*)`)

// clauseRe finds every predicate/directive clause: (#name? ...) or
// (#name! ...). Argument text is captured verbatim and tokenized
// separately, since arguments can be quoted strings, capture references,
// or bracketed any-of lists.
var clauseRe = regexp.MustCompile(`\(#([A-Za-z][A-Za-z0-9-]*)([?!])((?:[^()]|\([^()]*\))*)\)`)

// argTokenRe splits a clause's argument text into quoted strings, capture
// references, bracketed lists, and bare words.
var argTokenRe = regexp.MustCompile(`"(?:[^"\\]|\\.)*"|@[A-Za-z_][A-Za-z0-9_.\-]*|\[[^\]]*\]|[^\s]+`)

// Parse tokenizes a query source string into patterns, predicates and
// directives. It never fails on malformed input: unrecognized clause names
// are retained as neither predicates nor directives and surface as
// validator warnings, matching the rest of the pipeline's "always produce a
// value, let validation report problems" shape.
func Parse(source string) *ParsedQuery {
	pq := &ParsedQuery{Source: source}

	pq.Patterns = scanPatterns(source)

	for _, m := range clauseRe.FindAllStringSubmatchIndex(source, -1) {
		full := source[m[0]:m[1]]
		name := source[m[2]:m[3]]
		marker := source[m[4]:m[5]]
		args := source[m[6]:m[7]]
		pos := positionAt(source, m[0])

		tokens := argTokenRe.FindAllString(args, -1)

		switch marker {
		case "?":
			if pred, ok := buildPredicate(name, tokens); ok {
				pred.Position = pos
				pred.Source = full
				pq.Predicates = append(pq.Predicates, pred)
			}
		case "!":
			if dir, ok := buildDirective(name, tokens); ok {
				dir.Position = pos
				dir.Source = full
				pq.Directives = append(pq.Directives, dir)
			}
		}
	}

	pq.Features = computeFeatures(pq)
	return pq
}

// scanPatterns extracts top-level S-expression patterns: balanced
// parenthesized groups that are not themselves predicate/directive clauses,
// skipping `;`-comment lines.
func scanPatterns(source string) []Pattern {
	var patterns []Pattern
	depth := 0
	start := -1
	line, col := 1, 1
	lineStartOfOpen := 0
	colStartOfOpen := 0

	advance := func(ch byte) {
		if ch == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}

	i := 0
	for i < len(source) {
		ch := source[i]

		if ch == ';' && depth == 0 {
			for i < len(source) && source[i] != '\n' {
				i++
			}
			continue
		}
		if ch == '"' {
			i++
			for i < len(source) && source[i] != '"' {
				if source[i] == '\\' {
					i++
				}
				i++
				col++
			}
			if i < len(source) {
				i++
				col++
			}
			continue
		}
		if ch == '(' {
			if depth == 0 {
				start = i
				lineStartOfOpen = line
				colStartOfOpen = col
			}
			depth++
		} else if ch == ')' {
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					text := source[start : i+1]
					if !clauseRe.MatchString(text) || strings.Count(text, "(") > 1 {
						patterns = append(patterns, Pattern{
							Source:   text,
							Captures: uniqueCaptures(text),
							Position: Position{Line: lineStartOfOpen, Column: colStartOfOpen},
						})
					}
					start = -1
				}
			}
		}
		advance(ch)
		i++
	}
	return patterns
}

func uniqueCaptures(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range captureRe.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

func positionAt(source string, byteOffset int) Position {
	line := 1
	col := 1
	for i := 0; i < byteOffset && i < len(source); i++ {
		if source[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return Position{Line: line, Column: col}
}

func captureFromToken(tok string) (string, bool) {
	if strings.HasPrefix(tok, "@") {
		return strings.TrimPrefix(tok, "@"), true
	}
	return "", false
}

func unquote(tok string) string {
	if len(tok) >= 2 && tok[0] == '"' && tok[len(tok)-1] == '"' {
		s, err := strconv.Unquote(tok)
		if err == nil {
			return s
		}
		return tok[1 : len(tok)-1]
	}
	if len(tok) >= 2 && tok[0] == '\'' && tok[len(tok)-1] == '\'' {
		return tok[1 : len(tok)-1]
	}
	return tok
}

func buildPredicate(name string, tokens []string) (Predicate, bool) {
	p := Predicate{}
	base := strings.TrimSuffix(name, "-not")
	switch {
	case base == "eq" || base == "not-eq":
		p.Kind = PredEq
		p.Negated = strings.HasPrefix(name, "not-")
	case base == "match" || base == "not-match":
		p.Kind = PredMatch
		p.Negated = strings.HasPrefix(name, "not-")
	case name == "any-of" || name == "not-any-of":
		p.Kind = PredAnyOf
		p.Negated = name == "not-any-of"
	case name == "is":
		p.Kind = PredIs
	case name == "not-is" || name == "is-not":
		p.Kind = PredIsNot
		p.Negated = true
	case name == "any-eq":
		p.Kind = PredEq
		p.Quantifier = true
	case name == "any-match":
		p.Kind = PredMatch
		p.Quantifier = true
	default:
		return Predicate{}, false
	}

	for _, tok := range tokens {
		if cap, ok := captureFromToken(tok); ok {
			if p.Capture == "" {
				p.Capture = cap
			}
			continue
		}
		if strings.HasPrefix(tok, "[") {
			p.Values = append(p.Values, parseArrayLiteral(tok)...)
			continue
		}
		if p.Kind == PredAnyOf {
			p.Values = append(p.Values, unquote(tok))
		} else {
			p.Value = unquote(tok)
		}
	}
	return p, true
}

// parseArrayLiteral parses a `[ … ]` argument into its string elements.
// The documented form is a JSON array (`["a","b"]`), so that is tried
// first; a bare space- or comma-separated list inside brackets is accepted
// as a fallback.
func parseArrayLiteral(tok string) []string {
	var parsed []string
	if err := json.Unmarshal([]byte(tok), &parsed); err == nil {
		return parsed
	}
	inner := strings.Trim(tok, "[]")
	var out []string
	for _, part := range strings.Split(inner, ",") {
		for _, v := range strings.Fields(part) {
			out = append(out, unquote(v))
		}
	}
	return out
}

func buildDirective(name string, tokens []string) (Directive, bool) {
	d := Directive{}
	switch name {
	case "set":
		d.Kind = DirSet
	case "strip":
		d.Kind = DirStrip
	case "select-adjacent":
		d.Kind = DirSelectAdjacent
	default:
		return Directive{}, false
	}

	for _, tok := range tokens {
		if cap, ok := captureFromToken(tok); ok {
			// select-adjacent pairs two captures, so neither is the
			// designated target: both go into Parameters. Every other
			// directive treats the first capture as its target.
			if d.Kind != DirSelectAdjacent && d.Capture == "" {
				d.Capture = cap
				continue
			}
			d.Parameters = append(d.Parameters, cap)
			continue
		}
		d.Parameters = append(d.Parameters, unquote(tok))
	}
	return d, true
}

var (
	// anchorRe matches a bare `.` anchor token between pattern elements,
	// not a dot inside a string literal or clause name.
	anchorRe = regexp.MustCompile(`(^|[\s(])\.([\s)]|$)`)
	// quantifierRe matches a `*`, `+` or `?` quantifier suffixed to a
	// closing group or bracket.
	quantifierRe = regexp.MustCompile(`[)\]][*+?]`)
	// wildcardRe matches the `_` wildcard node, `(_)` or a bare `_`
	// standing in for any named node.
	wildcardRe = regexp.MustCompile(`\(\s*_[\s)]|(^|[\s(])_($|[\s)])`)
)

func computeFeatures(pq *ParsedQuery) Features {
	f := Features{
		HasPredicates:  len(pq.Predicates) > 0,
		HasDirectives:  len(pq.Directives) > 0,
		PredicateCount: len(pq.Predicates),
		DirectiveCount: len(pq.Directives),
	}
	for _, p := range pq.Patterns {
		if anchorRe.MatchString(p.Source) {
			f.HasAnchors = true
		}
		if strings.Contains(p.Source, "[") && strings.Contains(p.Source, "]") {
			f.HasAlternations = true
		}
		if quantifierRe.MatchString(p.Source) {
			f.HasQuantifiers = true
		}
		if wildcardRe.MatchString(p.Source) {
			f.HasWildcards = true
		}
	}

	switch {
	case f.flagCount() >= 4 || f.PredicateCount > 5 || f.DirectiveCount > 3:
		f.Complexity = Complex
	case f.flagCount() >= 2 || f.PredicateCount > 2 || f.DirectiveCount > 1:
		f.Complexity = Moderate
	default:
		f.Complexity = Simple
	}
	return f
}
