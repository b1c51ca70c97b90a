// Package query implements the tree-query language: parsing a query source
// string into patterns, predicates and directives; validating and
// optimizing the result; and, once matches come back from a compiled
// tree-sitter query, filtering and transforming them through predicates and
// directives.
//
// The grammar itself is unchanged tree-sitter S-expression syntax. What
// this package owns is the closed, policy-gated layer on top: the specific
// predicates (#eq?, #match?, #any-of?, #is?, and their negated/any
// variants) and directives (#set!, #strip!, #select-adjacent!) this service
// recognizes, nothing else.
package query

// PredicateKind enumerates the closed set of predicate families.
type PredicateKind string

const (
	PredEq    PredicateKind = "eq"
	PredMatch PredicateKind = "match"
	PredAnyOf PredicateKind = "any-of"
	PredIs    PredicateKind = "is"
	PredIsNot PredicateKind = "is-not"
)

// DirectiveKind enumerates the closed set of directive families.
type DirectiveKind string

const (
	DirSet            DirectiveKind = "set"
	DirStrip          DirectiveKind = "strip"
	DirSelectAdjacent DirectiveKind = "select-adjacent"
)

// Position locates a clause within the original query source, for
// diagnostics.
type Position struct {
	Line   int
	Column int
}

// Predicate is one #kind? clause extracted from a query.
type Predicate struct {
	Kind        PredicateKind
	Capture     string
	Value       string   // used by eq/match
	Values      []string // used by any-of
	Negated     bool     // true for the not- and is-not variants
	Quantifier  bool     // true for the "any-" family (any? vs all?)
	Position    Position
	Source      string // raw clause text, for diagnostics
}

// Directive is one #kind! clause extracted from a query.
type Directive struct {
	Kind       DirectiveKind
	Capture    string
	Parameters []string
	Position   Position
	Source     string
}

// Pattern is a single top-level S-expression found in the query source,
// together with the capture names it declares.
type Pattern struct {
	Source   string
	Captures []string
	Position Position
}

// Complexity is a coarse classification of a query's shape.
type Complexity string

const (
	Simple   Complexity = "simple"
	Moderate Complexity = "moderate"
	Complex  Complexity = "complex"
)

// Features summarizes structural properties of a parsed query, used by the
// validator's complexity scoring and by callers that want to branch on
// query shape without re-walking it.
type Features struct {
	HasPredicates   bool
	HasDirectives   bool
	HasAnchors      bool
	HasAlternations bool
	HasQuantifiers  bool
	HasWildcards    bool
	PredicateCount  int
	DirectiveCount  int
	Complexity      Complexity
}

// flagCount returns how many of the six boolean feature flags are set.
func (f Features) flagCount() int {
	n := 0
	for _, b := range []bool{f.HasPredicates, f.HasDirectives, f.HasAnchors, f.HasAlternations, f.HasQuantifiers, f.HasWildcards} {
		if b {
			n++
		}
	}
	return n
}

// ParsedQuery is the immutable output of Parse: a query source broken into
// patterns, predicates, directives, and a features summary. Optimize
// returns a new ParsedQuery rather than mutating this one.
type ParsedQuery struct {
	Source     string
	Patterns   []Pattern
	Predicates []Predicate
	Directives []Directive
	Features   Features
}

// Diagnostic is a single validator finding (error or warning), matching the
// taxonomy in the service's error handling design.
type Diagnostic struct {
	Code     string
	Message  string
	Position Position
}

// ValidationResult is the output of Validate.
type ValidationResult struct {
	IsValid     bool
	Errors      []Diagnostic
	Warnings    []Diagnostic
	Features    Features
	Suggestions []string
}
