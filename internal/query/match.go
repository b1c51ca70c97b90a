package query

// Match is one capture produced by running a compiled native query against
// a syntax tree, before any predicate/directive processing. Fields beyond
// the raw node coordinates are filled in by the caller (the executor),
// since they require source bytes and node-type lookups this package has
// no access to.
type Match struct {
	Capture       string
	NodeType      string
	StartByte     int
	EndByte       int
	StartLine     int
	StartColumn   int
	EndLine       int
	EndColumn     int
	OriginalText  string
	ProcessedText string
	Metadata      map[string]string

	PredicateOutcomes []Outcome
	DirectiveOutcomes []Outcome
	AdjacentNodes     []string
}

// Outcome records what one predicate or directive did to a match, surfaced
// for diagnostics and the advanced-parse response.
type Outcome struct {
	Kind    string
	Capture string
	Applied bool
	Detail  string
}

func cloneMatch(m Match) Match {
	meta := make(map[string]string, len(m.Metadata))
	for k, v := range m.Metadata {
		meta[k] = v
	}
	m.Metadata = meta
	m.PredicateOutcomes = append([]Outcome(nil), m.PredicateOutcomes...)
	m.DirectiveOutcomes = append([]Outcome(nil), m.DirectiveOutcomes...)
	m.AdjacentNodes = append([]string(nil), m.AdjacentNodes...)
	return m
}
