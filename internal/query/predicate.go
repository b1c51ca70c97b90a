package query

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidRegex is the user-visible diagnostic for a match-family
// predicate or strip! directive whose regex does not compile. Callers
// surface its message verbatim.
var ErrInvalidRegex = errors.New("Invalid regex pattern")

// PrecompileRegexes compiles every regex a query carries — match-family
// predicate values and strip! directive patterns — into cache, so regex
// failures surface once, up front, instead of per-match during evaluation.
func PrecompileRegexes(pq *ParsedQuery, cache map[string]*regexp.Regexp) error {
	for _, p := range pq.Predicates {
		if p.Kind != PredMatch {
			continue
		}
		if _, err := compileCached(p.Value, cache); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidRegex, p.Value)
		}
	}
	for _, d := range pq.Directives {
		if d.Kind != DirStrip || len(d.Parameters) == 0 {
			continue
		}
		if _, err := compileCached(d.Parameters[0], cache); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidRegex, d.Parameters[0])
		}
	}
	return nil
}

// ApplyPredicates filters a match stream through a query's predicates.
// Open Question #1 (retention policy) is resolved here: a match with no
// predicate naming its capture is retained — absence of a constraint is
// not itself a rejection.
func ApplyPredicates(matches []Match, preds []Predicate, regexCache map[string]*regexp.Regexp) ([]Match, error) {
	if len(preds) == 0 {
		return matches, nil
	}
	if regexCache == nil {
		regexCache = make(map[string]*regexp.Regexp)
	}

	byCapture := make(map[string][]Predicate)
	for _, p := range preds {
		byCapture[p.Capture] = append(byCapture[p.Capture], p)
	}

	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		applicable := byCapture[m.Capture]
		if len(applicable) == 0 {
			out = append(out, m)
			continue
		}

		// Non-negated eq? predicates on one capture form an implicit
		// disjunction (they're alternative allowed values — this is what
		// makes the optimizer's any-of fusion an equivalence); every
		// other predicate must pass on its own.
		m = cloneMatch(m)
		keep := true
		eqSeen, eqPassed := false, false
		for _, p := range applicable {
			ok, err := evaluate(p, m, regexCache)
			if err != nil {
				return nil, err
			}
			m.PredicateOutcomes = append(m.PredicateOutcomes, Outcome{
				Kind:    string(p.Kind),
				Capture: p.Capture,
				Applied: ok,
			})
			if p.Kind == PredEq && !p.Negated {
				eqSeen = true
				if ok {
					eqPassed = true
				}
				continue
			}
			if !ok {
				keep = false
			}
		}
		if eqSeen && !eqPassed {
			keep = false
		}
		if keep {
			out = append(out, m)
		}
	}
	return out, nil
}

func evaluate(p Predicate, m Match, regexCache map[string]*regexp.Regexp) (bool, error) {
	var result bool
	switch p.Kind {
	case PredEq:
		result = m.OriginalText == p.Value
	case PredMatch:
		re, err := compileCached(p.Value, regexCache)
		if err != nil {
			return false, err
		}
		result = re.MatchString(m.OriginalText)
	case PredAnyOf:
		result = false
		for _, v := range p.Values {
			if m.OriginalText == v {
				result = true
				break
			}
		}
	case PredIs:
		result = matchesIsCategory(m, p.Value)
	case PredIsNot:
		result = !matchesIsCategory(m, p.Value)
	}
	if p.Negated && p.Kind != PredIsNot {
		result = !result
	}
	return result, nil
}

// reservedKeywords is the union of reserved words across the supported
// grammars, used by the "is keyword" category. It is intentionally broad
// rather than per-language, matching the fallback nature of the category.
var reservedKeywords = map[string]bool{
	"if": true, "else": true, "for": true, "while": true, "do": true,
	"switch": true, "case": true, "default": true, "break": true, "continue": true,
	"return": true, "function": true, "func": true, "def": true, "class": true,
	"struct": true, "interface": true, "enum": true, "import": true, "package": true,
	"from": true, "export": true, "const": true, "let": true, "var": true,
	"static": true, "public": true, "private": true, "protected": true,
	"new": true, "delete": true, "try": true, "catch": true, "finally": true,
	"throw": true, "throws": true, "async": true, "await": true, "yield": true,
	"null": true, "nil": true, "none": true, "true": true, "false": true,
	"this": true, "self": true, "super": true, "extends": true, "implements": true,
	"namespace": true, "using": true, "typedef": true, "template": true,
	"void": true, "int": true, "string": true, "bool": true, "float": true,
}

var (
	functionNodeTypes = map[string]bool{
		"function": true, "function_definition": true, "method": true, "method_definition": true,
	}
	stringNodeTypes = map[string]bool{
		"string": true, "string_literal": true, "template_string": true,
	}
	numberNodeTypes = map[string]bool{
		"number": true, "number_literal": true, "integer": true, "float": true,
	}
)

// matchesIsCategory implements the "is" predicate's kind-specific node-type
// and text categories. Unrecognized categories fall back to checking for a
// same-named property on the match's metadata.
func matchesIsCategory(m Match, category string) bool {
	switch category {
	case "identifier":
		return m.NodeType == "identifier"
	case "function":
		return functionNodeTypes[m.NodeType]
	case "string":
		return stringNodeTypes[m.NodeType]
	case "number":
		return numberNodeTypes[m.NodeType]
	case "keyword":
		return reservedKeywords[m.OriginalText]
	default:
		_, ok := m.Metadata[category]
		return ok
	}
}

func compileCached(pattern string, cache map[string]*regexp.Regexp) (*regexp.Regexp, error) {
	if re, ok := cache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	cache[pattern] = re
	return re, nil
}
