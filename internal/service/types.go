package service

import "github.com/oxhq/queryforge/internal/query"

// maxQueriesPerRequest bounds the total of Query + Queries, per the
// service's per-request backpressure policy.
const maxQueriesPerRequest = 10

// maxCodeBytes bounds request code size; requests over this are rejected
// before a parser is ever touched.
const maxCodeBytes = 4 << 20 // 4 MiB

// Position is a zero-based (row, column) pair, preserved verbatim from the
// underlying tree-sitter library's coordinates (column is a byte offset
// within the row).
type Position struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

// ParseRequest is the basic parse request shape (§6).
type ParseRequest struct {
	Language string   `json:"language"`
	Code     string   `json:"code"`
	Query    string   `json:"query,omitempty"`
	Queries  []string `json:"queries,omitempty"`
}

// AdvancedParseRequest adds the advanced-feature flags. ProcessDirectives
// is a pointer so an absent field means "directives run per config" while
// an explicit false disables them for this request only.
type AdvancedParseRequest struct {
	ParseRequest
	EnableAdvancedFeatures bool   `json:"enableAdvancedFeatures,omitempty"`
	ProcessDirectives      *bool  `json:"processDirectives,omitempty"`
	IncludeMetadata        bool   `json:"includeMetadata,omitempty"`
	MaxResults             uint32 `json:"maxResults,omitempty"`
	TimeoutMillis          int64  `json:"timeout,omitempty"`
}

// allQueries returns Query followed by Queries as a single ordered slice,
// dropping empty entries, matching C12 step 5's "[query] + queries[]".
func (r *ParseRequest) allQueries() []string {
	var out []string
	if r.Query != "" {
		out = append(out, r.Query)
	}
	out = append(out, r.Queries...)
	return out
}

func (r *ParseRequest) queryCount() int {
	n := len(r.Queries)
	if r.Query != "" {
		n++
	}
	return n
}

// MatchOut is one reported match, shaped for JSON response bodies.
type MatchOut struct {
	CaptureName   string            `json:"capture_name"`
	Type          string            `json:"type"`
	Text          string            `json:"text"`
	Start         Position          `json:"start_position"`
	End           Position          `json:"end_position"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	ProcessedText string            `json:"processed_text,omitempty"`
}

// PerformanceMetrics mirrors executor.Metrics, renamed to the wire names
// from §6/§4.11.
type PerformanceMetrics struct {
	ParseTimeMS         float64 `json:"parse_time"`
	QueryTimeMS         float64 `json:"query_time"`
	TotalTimeMS         float64 `json:"total_time"`
	MemoryUsageMB       float64 `json:"memory_usage"`
	MatchCount          int     `json:"match_count"`
	PredicatesProcessed int     `json:"predicates_processed"`
	DirectivesApplied   int     `json:"directives_applied"`
}

// ParseResponse is the basic parse response shape (§6).
type ParseResponse struct {
	Success bool       `json:"success"`
	Matches []MatchOut `json:"matches"`
	Errors  []string   `json:"errors"`
}

// AdvancedParseResponse adds the advanced-feature fields (§6).
type AdvancedParseResponse struct {
	ParseResponse
	Warnings          []string                 `json:"warnings,omitempty"`
	Performance       PerformanceMetrics       `json:"performance"`
	Predicates        []query.Predicate        `json:"predicates,omitempty"`
	Directives        []query.Directive        `json:"directives,omitempty"`
	QueryFeatures     []query.Features         `json:"queryFeatures,omitempty"`
	ValidationResults []query.ValidationResult `json:"validationResults,omitempty"`
}

// HealthStatus is the coordinator's /v1/health surface (§6).
type HealthStatus struct {
	Status          string         `json:"status"`
	Memory          map[string]any `json:"memory"`
	ParserPool      map[string]any `json:"parser_pool"`
	LanguageManager map[string]any `json:"language_manager"`
	Service         ServiceStats   `json:"service"`
}

// ServiceStats reports request/error counters and active resource counts.
type ServiceStats struct {
	RequestCount    int64          `json:"request_count"`
	ErrorCount      int64          `json:"error_count"`
	ErrorRate       float64        `json:"error_rate"`
	ActiveResources map[string]int `json:"active_resources"`
}
