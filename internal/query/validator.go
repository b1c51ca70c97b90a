package query

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Config gates which predicates/directives are accepted and bounds query
// complexity, mirroring the service's policy surface. A closed allow-list
// rather than a deny-list, since the predicate/directive set itself is
// closed.
type Config struct {
	PredicatesEnabled     bool
	DirectivesEnabled     bool
	MaxPredicatesPerQuery int
	MaxDirectivesPerQuery int
	AllowedPredicates     map[PredicateKind]bool
	AllowedDirectives     map[DirectiveKind]bool
	OptimizationEnabled   bool
	// WildcardRewriteEnabled gates the optimizer's textual `(_)` ->
	// `(identifier)` substitution, which narrows what a wildcard capture
	// matches and so is opt-in rather than part of the default rewrite
	// set.
	WildcardRewriteEnabled bool
	CachingEnabled         bool
	CacheSize              int
	CacheTTLMillis         int
}

// knownClauseNames is the full vocabulary recognized by Parse, used to
// compute "did you mean" suggestions for typos the regex scanner didn't
// recognize as any predicate/directive at all.
var knownClauseNames = []string{
	"eq?", "not-eq?", "match?", "not-match?", "any-of?", "not-any-of?",
	"is?", "not-is?", "is-not?", "any-eq?", "any-match?",
	"set!", "strip!", "select-adjacent!",
}

// Validate checks structural balance, policy limits, and per-clause
// semantics, returning a diagnostic report. It never panics on malformed
// input — Parse already tolerates that — but it is strict about reporting
// it.
func Validate(pq *ParsedQuery, cfg Config) ValidationResult {
	result := ValidationResult{IsValid: true, Features: pq.Features}

	for _, d := range checkBalance(pq.Source) {
		result.Errors = append(result.Errors, d)
	}

	if len(pq.Patterns) == 0 {
		result.Errors = append(result.Errors, Diagnostic{
			Code:    "E_NO_PATTERN",
			Message: "query source contains no pattern",
		})
	}

	for _, d := range checkCaptureNames(pq.Source) {
		result.Errors = append(result.Errors, d)
	}

	patternCaptures := map[string]bool{}
	for _, p := range pq.Patterns {
		for _, cap := range p.Captures {
			patternCaptures[cap] = true
		}
	}

	if cfg.PredicatesEnabled {
		if cfg.MaxPredicatesPerQuery > 0 && len(pq.Predicates) > cfg.MaxPredicatesPerQuery {
			result.Errors = append(result.Errors, Diagnostic{
				Code:    "E_TOO_MANY_PREDICATES",
				Message: fmt.Sprintf("query has %d predicates, limit is %d", len(pq.Predicates), cfg.MaxPredicatesPerQuery),
			})
		}
		for _, p := range pq.Predicates {
			if cfg.AllowedPredicates != nil && !cfg.AllowedPredicates[p.Kind] {
				result.Errors = append(result.Errors, Diagnostic{
					Code:     "E_PREDICATE_NOT_ALLOWED",
					Message:  fmt.Sprintf("predicate %q is disabled by configuration", p.Kind),
					Position: p.Position,
				})
			}
			if err := checkPredicateSemantics(p); err != nil {
				result.Errors = append(result.Errors, Diagnostic{
					Code:     "E_PREDICATE_ARGS",
					Message:  err.Error(),
					Position: p.Position,
				})
			}
			if p.Capture != "" && !patternCaptures[p.Capture] {
				result.Warnings = append(result.Warnings, Diagnostic{
					Code:     "W_UNKNOWN_CAPTURE",
					Message:  fmt.Sprintf("predicate references capture @%s, which no pattern declares", p.Capture),
					Position: p.Position,
				})
			}
		}
		seenPred := map[string]bool{}
		for _, p := range pq.Predicates {
			key := string(p.Kind) + "\x00" + p.Capture
			if seenPred[key] {
				result.Warnings = append(result.Warnings, Diagnostic{
					Code:     "W_DUPLICATE_PREDICATE",
					Message:  fmt.Sprintf("multiple %s predicates target capture @%s", p.Kind, p.Capture),
					Position: p.Position,
				})
			}
			seenPred[key] = true
		}
	} else if len(pq.Predicates) > 0 {
		result.Errors = append(result.Errors, Diagnostic{
			Code:    "E_PREDICATES_DISABLED",
			Message: "query uses predicates but predicates are disabled by configuration",
		})
	}

	if cfg.DirectivesEnabled {
		if cfg.MaxDirectivesPerQuery > 0 && len(pq.Directives) > cfg.MaxDirectivesPerQuery {
			result.Errors = append(result.Errors, Diagnostic{
				Code:    "E_TOO_MANY_DIRECTIVES",
				Message: fmt.Sprintf("query has %d directives, limit is %d", len(pq.Directives), cfg.MaxDirectivesPerQuery),
			})
		}
		for _, d := range pq.Directives {
			if cfg.AllowedDirectives != nil && !cfg.AllowedDirectives[d.Kind] {
				result.Errors = append(result.Errors, Diagnostic{
					Code:     "E_DIRECTIVE_NOT_ALLOWED",
					Message:  fmt.Sprintf("directive %q is disabled by configuration", d.Kind),
					Position: d.Position,
				})
			}
			if err := checkDirectiveSemantics(d); err != nil {
				result.Errors = append(result.Errors, Diagnostic{
					Code:     "E_DIRECTIVE_ARGS",
					Message:  err.Error(),
					Position: d.Position,
				})
			}
			if d.Kind == DirStrip && len(d.Parameters) == 0 {
				result.Warnings = append(result.Warnings, Diagnostic{
					Code:     "W_STRIP_NO_PATTERN",
					Message:  "strip! has no regex argument and will remove no text",
					Position: d.Position,
				})
			}
			if d.Capture != "" && !patternCaptures[d.Capture] {
				result.Warnings = append(result.Warnings, Diagnostic{
					Code:     "W_UNKNOWN_CAPTURE",
					Message:  fmt.Sprintf("directive references capture @%s, which no pattern declares", d.Capture),
					Position: d.Position,
				})
			}
		}
		stripCount := map[string]int{}
		for _, d := range pq.Directives {
			if d.Kind == DirStrip {
				stripCount[d.Capture]++
			}
		}
		for capture, n := range stripCount {
			if n > 1 {
				result.Warnings = append(result.Warnings, Diagnostic{
					Code:    "W_MULTIPLE_STRIP",
					Message: fmt.Sprintf("%d strip! directives target capture @%s; they compose in order", n, capture),
				})
			}
		}
	} else if len(pq.Directives) > 0 {
		result.Errors = append(result.Errors, Diagnostic{
			Code:    "E_DIRECTIVES_DISABLED",
			Message: "query uses directives but directives are disabled by configuration",
		})
	}

	result.Warnings = append(result.Warnings, performanceWarnings(pq)...)

	for _, unk := range unrecognizedClauses(pq.Source) {
		result.Warnings = append(result.Warnings, Diagnostic{
			Code:    "W_UNKNOWN_CLAUSE",
			Message: fmt.Sprintf("%q is not a recognized predicate or directive", unk),
		})
		if s := closestSuggestion(unk); s != "" {
			result.Suggestions = append(result.Suggestions, fmt.Sprintf("did you mean %q instead of %q?", s, unk))
		}
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

// checkBalance reports unbalanced parentheses, brackets, braces or quotes,
// since a malformed S-expression will otherwise fail obscurely at
// native-query compile time.
func checkBalance(source string) []Diagnostic {
	var diags []Diagnostic
	parens, brackets, braces := 0, 0, 0
	inString := false
	for i := 0; i < len(source); i++ {
		ch := source[i]
		if inString {
			if ch == '\\' {
				i++
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '(':
			parens++
		case ')':
			parens--
			if parens < 0 {
				diags = append(diags, Diagnostic{Code: "E_UNBALANCED_PAREN", Message: "unmatched closing parenthesis", Position: positionAt(source, i)})
				parens = 0
			}
		case '[':
			brackets++
		case ']':
			brackets--
			if brackets < 0 {
				diags = append(diags, Diagnostic{Code: "E_UNBALANCED_BRACKET", Message: "unmatched closing bracket", Position: positionAt(source, i)})
				brackets = 0
			}
		case '{':
			braces++
		case '}':
			braces--
			if braces < 0 {
				diags = append(diags, Diagnostic{Code: "E_UNBALANCED_BRACE", Message: "unmatched closing brace", Position: positionAt(source, i)})
				braces = 0
			}
		}
	}
	if parens > 0 {
		diags = append(diags, Diagnostic{Code: "E_UNBALANCED_PAREN", Message: fmt.Sprintf("%d unclosed parenthesis group(s)", parens)})
	}
	if brackets > 0 {
		diags = append(diags, Diagnostic{Code: "E_UNBALANCED_BRACKET", Message: fmt.Sprintf("%d unclosed bracket group(s)", brackets)})
	}
	if braces > 0 {
		diags = append(diags, Diagnostic{Code: "E_UNBALANCED_BRACE", Message: fmt.Sprintf("%d unclosed brace group(s)", braces)})
	}
	if inString {
		diags = append(diags, Diagnostic{Code: "E_UNBALANCED_QUOTE", Message: "unterminated string literal"})
	}
	return diags
}

// captureTokenRe finds every @-prefixed token, valid or not; validCaptureRe
// is the shape a capture name must have.
var (
	captureTokenRe = regexp.MustCompile(`@[^\s()\[\]"]*`)
	validCaptureRe = regexp.MustCompile(`^@[A-Za-z_][A-Za-z0-9_]*$`)
)

// checkCaptureNames reports every @token in the source that is not a
// lexically valid capture name.
func checkCaptureNames(source string) []Diagnostic {
	var diags []Diagnostic
	for _, loc := range captureTokenRe.FindAllStringIndex(source, -1) {
		tok := source[loc[0]:loc[1]]
		if !validCaptureRe.MatchString(tok) {
			diags = append(diags, Diagnostic{
				Code:     "E_BAD_CAPTURE",
				Message:  fmt.Sprintf("%q is not a valid capture name", tok),
				Position: positionAt(source, loc[0]),
			})
		}
	}
	return diags
}

var adjacentQuantifierRe = regexp.MustCompile(`[+*?][+*?]`)

// performanceWarnings flags query shapes that compile and run but tend to
// be slow: heavy wildcard use, wide top-level alternations, and stacked
// quantifiers.
func performanceWarnings(pq *ParsedQuery) []Diagnostic {
	var diags []Diagnostic

	wildcards := 0
	alternations := 0
	for _, p := range pq.Patterns {
		wildcards += len(wildcardRe.FindAllString(p.Source, -1))
		alternations += strings.Count(p.Source, "[")
	}
	if wildcards > 5 {
		diags = append(diags, Diagnostic{
			Code:    "W_MANY_WILDCARDS",
			Message: fmt.Sprintf("query uses %d wildcards; matching will visit many nodes", wildcards),
		})
	}
	if alternations > 3 {
		diags = append(diags, Diagnostic{
			Code:    "W_MANY_ALTERNATIONS",
			Message: fmt.Sprintf("query has %d top-level alternations; consider splitting it", alternations),
		})
	}
	for _, p := range pq.Patterns {
		if adjacentQuantifierRe.MatchString(p.Source) {
			diags = append(diags, Diagnostic{
				Code:     "W_ADJACENT_QUANTIFIERS",
				Message:  "adjacent quantifiers make match counts explode",
				Position: p.Position,
			})
			break
		}
	}
	return diags
}

func checkPredicateSemantics(p Predicate) error {
	switch p.Kind {
	case PredEq:
		if p.Capture == "" || p.Value == "" {
			return fmt.Errorf("%s? requires a capture and a literal value", p.Kind)
		}
	case PredMatch:
		if p.Capture == "" || p.Value == "" {
			return fmt.Errorf("%s? requires a capture and a regex", p.Kind)
		}
		if _, err := regexp.Compile(p.Value); err != nil {
			return fmt.Errorf("invalid regex in match?: %w", err)
		}
	case PredAnyOf:
		if p.Capture == "" || len(p.Values) == 0 {
			return fmt.Errorf("any-of? requires a capture and a non-empty value list")
		}
	case PredIs, PredIsNot:
		if p.Capture == "" {
			return fmt.Errorf("%s requires a capture", p.Kind)
		}
	}
	return nil
}

func checkDirectiveSemantics(d Directive) error {
	switch d.Kind {
	case DirSet:
		if d.Capture == "" || len(d.Parameters) < 2 {
			return fmt.Errorf("set! requires a capture, a key and a value")
		}
	case DirStrip:
		if d.Capture == "" {
			return fmt.Errorf("strip! requires a capture")
		}
		if len(d.Parameters) > 0 {
			if _, err := regexp.Compile(d.Parameters[0]); err != nil {
				return fmt.Errorf("invalid regex in strip!: %w", err)
			}
		}
	case DirSelectAdjacent:
		if len(d.Parameters) < 2 {
			return fmt.Errorf("select-adjacent! requires two capture references")
		}
	}
	return nil
}

var looseClauseRe = regexp.MustCompile(`#([A-Za-z][A-Za-z0-9!?-]*)`)

// unrecognizedClauses finds `#word` tokens that didn't parse into any
// predicate or directive, most likely because of a typo in the name.
func unrecognizedClauses(source string) []string {
	recognized := map[string]bool{}
	for _, name := range knownClauseNames {
		recognized["#"+name] = true
	}
	seen := map[string]bool{}
	var out []string
	for _, m := range looseClauseRe.FindAllString(source, -1) {
		if recognized[m] || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// closestSuggestion returns the known clause name with the highest
// difflib similarity ratio to unk, or "" if nothing scores above 0.6.
func closestSuggestion(unk string) string {
	stripped := strings.TrimPrefix(unk, "#")
	best := ""
	bestRatio := 0.6
	for _, known := range knownClauseNames {
		ratio := difflib.NewMatcher(splitChars(stripped), splitChars(known)).Ratio()
		if ratio > bestRatio {
			bestRatio = ratio
			best = known
		}
	}
	return best
}

// splitChars breaks a string into single-character tokens so difflib's
// SequenceMatcher (designed for line sequences) can score character-level
// similarity between short clause names.
func splitChars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
