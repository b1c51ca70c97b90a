// Package service implements the Service Coordinator (C12): the component
// that accepts a parse request, gates it on memory pressure, acquires a
// parser and syntax tree, runs one or more queries through the executor in
// order, and always releases its resources before returning — regardless
// of which step failed.
//
// This is the thinnest layer in the pipeline by design: every interesting
// decision (what a predicate means, how a query gets optimized, when
// memory pressure crosses a threshold) is owned by a leaf package; the
// coordinator's job is sequencing and bookkeeping, the same role
// mcp/http_server.go's request handlers played for the teacher's
// session/stage/apply lifecycle.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/oxhq/queryforge/internal/cache"
	"github.com/oxhq/queryforge/internal/cleaner"
	"github.com/oxhq/queryforge/internal/config"
	"github.com/oxhq/queryforge/internal/executor"
	"github.com/oxhq/queryforge/internal/grammar"
	"github.com/oxhq/queryforge/internal/memmon"
	"github.com/oxhq/queryforge/internal/pool"
	"github.com/oxhq/queryforge/internal/query"
	"github.com/oxhq/queryforge/internal/treemgr"
)

// Coordinator ties the resource core (grammar registry, parser pool, tree
// manager, memory monitor, resource cleaner) and the query pipeline
// (executor) together under a request boundary.
type Coordinator struct {
	cfg      *config.Config
	registry *grammar.Registry
	pool     *pool.Pool
	trees    *treemgr.Manager
	monitor  *memmon.Monitor
	cleaner  *cleaner.Cleaner
	results  *cache.Store

	requestCount atomic.Int64
	errorCount   atomic.Int64
}

// New wires a Coordinator from its collaborators. results may be nil, in
// which case the query result cache (D1) is disabled regardless of
// cfg.Query.CachingEnabled.
func New(cfg *config.Config, registry *grammar.Registry, pl *pool.Pool, trees *treemgr.Manager, monitor *memmon.Monitor, clnr *cleaner.Cleaner, results *cache.Store) *Coordinator {
	return &Coordinator{cfg: cfg, registry: registry, pool: pl, trees: trees, monitor: monitor, cleaner: clnr, results: results}
}

// ProcessRequest runs the basic parse contract: no predicate/directive
// detail, no performance metrics, just matches and errors.
func (c *Coordinator) ProcessRequest(ctx context.Context, req ParseRequest) (*ParseResponse, error) {
	adv, svcErr := c.run(ctx, AdvancedParseRequest{ParseRequest: req}, false)
	if svcErr != nil {
		return nil, svcErr
	}
	return &adv.ParseResponse, nil
}

// ProcessAdvancedRequest runs the advanced parse contract: predicate/
// directive detail, query features, validation results, and performance
// metrics are all populated.
func (c *Coordinator) ProcessAdvancedRequest(ctx context.Context, req AdvancedParseRequest) (*AdvancedParseResponse, error) {
	resp, svcErr := c.run(ctx, req, true)
	if svcErr != nil {
		return nil, svcErr
	}
	return resp, nil
}

func (c *Coordinator) run(ctx context.Context, req AdvancedParseRequest, advanced bool) (*AdvancedParseResponse, *Error) {
	c.requestCount.Add(1)

	if err := c.validateRequest(&req.ParseRequest); err != nil {
		c.errorCount.Add(1)
		return nil, err
	}
	lang := grammar.Language(req.Language)

	if req.TimeoutMillis > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMillis)*time.Millisecond)
		defer cancel()
	}

	if status := c.monitor.CheckMemory(); status.Level == memmon.Critical {
		c.cleaner.Run(cleaner.Emergency)
		c.monitor.MarkCleanup()
		c.monitor.MarkForceGC()
		if after := c.monitor.CheckMemory(); after.Level == memmon.Critical {
			c.errorCount.Add(1)
			return nil, newErr(CodeMemory, "memory pressure remains critical after emergency cleanup", nil)
		}
	}

	if req.Code == "" {
		return &AdvancedParseResponse{ParseResponse: ParseResponse{Success: true, Matches: []MatchOut{}, Errors: []string{}}}, nil
	}

	queries := req.allQueries()
	outcomes := make([]*queryOutcome, len(queries))
	qcfg := c.cfg.Query

	cacheHitsOnly := qcfg.CachingEnabled && c.results != nil
	if cacheHitsOnly {
		for i, q := range queries {
			var cached queryOutcome
			if !c.results.Get(cache.Key(req.Language, req.Code, q), &cached) {
				cacheHitsOnly = false
				break
			}
			out := cached
			outcomes[i] = &out
		}
	}

	if !cacheHitsOnly {
		parser, err := c.pool.Acquire(lang)
		if err != nil {
			c.errorCount.Add(1)
			return nil, newErr(CodeResource, "failed to acquire parser", err)
		}
		defer c.pool.Release(parser, lang)

		tree, err := c.trees.Create(ctx, parser, []byte(req.Code))
		if err != nil {
			c.errorCount.Add(1)
			return nil, newErr(CodeParse, "failed to parse source", err)
		}
		defer c.trees.Destroy(tree)

		handle, err := c.registry.Get(lang)
		if err != nil {
			c.errorCount.Add(1)
			return nil, newErr(CodeUnsupportedLang, "grammar unavailable", err)
		}

		for i, q := range queries {
			if outcomes[i] != nil {
				continue // already satisfied from cache above
			}
			key := cache.Key(req.Language, req.Code, q)
			if qcfg.CachingEnabled && c.results != nil {
				var cached queryOutcome
				if c.results.Get(key, &cached) {
					out := cached
					outcomes[i] = &out
					continue
				}
			}

			out := c.executeOne(ctx, tree, []byte(req.Code), handle, q, qcfg, req.IncludeMetadata, req.ProcessDirectives)
			outcomes[i] = out

			if qcfg.CachingEnabled && c.results != nil && out.Success {
				_ = c.results.Put(key, req.Language, *out)
			}
		}
	}

	resp := aggregate(outcomes, req.MaxResults, advanced)
	if advanced {
		resp.Performance.MemoryUsageMB = c.monitor.CheckMemory().HeapUsedMB
	}
	if !resp.Success {
		c.errorCount.Add(1)
	}
	return resp, nil
}

// queryOutcome is the per-query result shape, cacheable as-is since it
// contains no live handles — only JSON-safe data.
type queryOutcome struct {
	Success     bool
	Matches     []MatchOut
	Errors      []string
	Warnings    []string
	Predicates  []query.Predicate
	Directives  []query.Directive
	Features    query.Features
	Validation  query.ValidationResult
	Performance PerformanceMetrics
}

func (c *Coordinator) executeOne(ctx context.Context, tree *sitter.Tree, code []byte, lang *sitter.Language, querySource string, qcfg query.Config, includeMetadata bool, processDirectives *bool) *queryOutcome {
	if processDirectives != nil && !*processDirectives {
		qcfg.DirectivesEnabled = false
	}

	result, err := executor.Execute(ctx, tree, code, lang, querySource, qcfg)
	if result == nil {
		return &queryOutcome{Errors: []string{err.Error()}}
	}

	out := &queryOutcome{
		Validation: result.Validation,
		Warnings:   diagnosticMessages(result.Validation.Warnings),
	}
	reported := result.Optimized
	if reported == nil {
		reported = result.Parsed
	}
	if reported != nil {
		out.Features = reported.Features
		out.Predicates = reported.Predicates
		out.Directives = reported.Directives
	}
	if err != nil {
		if errors.Is(err, query.ErrInvalidRegex) {
			out.Errors = []string{query.ErrInvalidRegex.Error()}
			return out
		}
		out.Errors = append(out.Errors, err.Error())
		out.Errors = append(out.Errors, diagnosticMessages(result.Validation.Errors)...)
		return out
	}

	out.Success = true
	out.Matches = make([]MatchOut, 0, len(result.Matches))
	for _, m := range result.Matches {
		text := m.OriginalText
		processed := m.ProcessedText
		mo := MatchOut{
			CaptureName: m.Capture,
			Type:        m.NodeType,
			Text:        text,
			Start:       Position{Row: m.StartLine - 1, Column: m.StartColumn - 1},
			End:         Position{Row: m.EndLine - 1, Column: m.EndColumn - 1},
		}
		if processed != "" && processed != text {
			mo.ProcessedText = processed
		}
		if includeMetadata && len(m.Metadata) > 0 {
			mo.Metadata = m.Metadata
		}
		out.Matches = append(out.Matches, mo)
	}

	out.Performance = PerformanceMetrics{
		ParseTimeMS:         result.Metrics.ParseMillis,
		QueryTimeMS:         max1(result.Metrics.NativeMillis),
		TotalTimeMS:         result.Metrics.TotalMillis,
		MatchCount:          len(out.Matches),
		PredicatesProcessed: len(out.Predicates),
		DirectivesApplied:   len(out.Directives),
	}
	return out
}

// max1 floors query_time at 1ms per §4.11 step 9, so metrics never report
// zero for an operation that measurably ran.
func max1(ms float64) float64 {
	if ms < 1 {
		return 1
	}
	return ms
}

func diagnosticMessages(diags []query.Diagnostic) []string {
	if len(diags) == 0 {
		return nil
	}
	out := make([]string, len(diags))
	for i, d := range diags {
		out[i] = d.Message
	}
	return out
}

// aggregate unions matches/errors/predicates/directives/features across
// every query outcome in request order, applies a final maxResults
// truncation, and computes overall success per the batch-isolation policy:
// at least one query succeeded AND no query reported an error.
func aggregate(outcomes []*queryOutcome, maxResults uint32, advanced bool) *AdvancedParseResponse {
	resp := &AdvancedParseResponse{}
	anySuccess := false
	noErrors := true

	for _, o := range outcomes {
		if o == nil {
			continue
		}
		if o.Success {
			anySuccess = true
		}
		if len(o.Errors) > 0 {
			noErrors = false
		}
		resp.Matches = append(resp.Matches, o.Matches...)
		resp.Errors = append(resp.Errors, o.Errors...)
		resp.Warnings = append(resp.Warnings, o.Warnings...)
		resp.Predicates = append(resp.Predicates, o.Predicates...)
		resp.Directives = append(resp.Directives, o.Directives...)
		resp.QueryFeatures = append(resp.QueryFeatures, o.Features)
		resp.ValidationResults = append(resp.ValidationResults, o.Validation)
		resp.Performance.ParseTimeMS += o.Performance.ParseTimeMS
		resp.Performance.QueryTimeMS += o.Performance.QueryTimeMS
		resp.Performance.TotalTimeMS += o.Performance.TotalTimeMS
		resp.Performance.MatchCount += o.Performance.MatchCount
		resp.Performance.PredicatesProcessed += o.Performance.PredicatesProcessed
		resp.Performance.DirectivesApplied += o.Performance.DirectivesApplied
	}

	if resp.Matches == nil {
		resp.Matches = []MatchOut{}
	}
	if resp.Errors == nil {
		resp.Errors = []string{}
	}
	if maxResults > 0 && uint32(len(resp.Matches)) > maxResults {
		resp.Matches = resp.Matches[:maxResults]
	}

	resp.Success = anySuccess && noErrors
	if !advanced {
		resp.Performance = PerformanceMetrics{}
		resp.Predicates = nil
		resp.Directives = nil
		resp.QueryFeatures = nil
		resp.ValidationResults = nil
		resp.Warnings = nil
	}
	return resp
}

func (c *Coordinator) validateRequest(req *ParseRequest) *Error {
	lang := grammar.Language(req.Language)
	if !c.registry.IsSupported(lang) {
		return newErr(CodeUnsupportedLang, fmt.Sprintf("language %q is not supported", req.Language), nil)
	}
	if len(req.Code) > maxCodeBytes {
		return newErr(CodeValidation, fmt.Sprintf("code exceeds maximum size of %d bytes", maxCodeBytes), nil)
	}
	if req.queryCount() > maxQueriesPerRequest {
		return newErr(CodeValidation, fmt.Sprintf("request has %d quer(ies), limit is %d", req.queryCount(), maxQueriesPerRequest), nil)
	}
	return nil
}

// Stats reports the coordinator's request/error counters and active
// resource counts, for the /v1/health surface.
func (c *Coordinator) Stats() ServiceStats {
	reqs := c.requestCount.Load()
	errs := c.errorCount.Load()
	rate := 0.0
	if reqs > 0 {
		rate = float64(errs) / float64(reqs)
	}
	idle, active := c.pool.Stats()
	return ServiceStats{
		RequestCount: reqs,
		ErrorCount:   errs,
		ErrorRate:    rate,
		ActiveResources: map[string]int{
			"trees":        c.trees.ActiveCount(),
			"parsers":      active,
			"idle_parsers": idle,
		},
	}
}

// Health assembles the full /v1/health response.
func (c *Coordinator) Health() HealthStatus {
	stats := c.Stats()
	status := "healthy"
	mem := c.monitor.CheckMemory()
	if mem.Level == memmon.Critical || !c.pool.IsHealthy() {
		status = "error"
	} else if mem.Level == memmon.Warning || stats.ErrorRate > 0.1 || !c.cleaner.IsHealthy() {
		status = "warning"
	}

	idle, active := c.pool.Stats()
	return HealthStatus{
		Status: status,
		Memory: c.monitor.Stats(),
		ParserPool: map[string]any{
			"idle":    idle,
			"active":  active,
			"healthy": c.pool.IsHealthy(),
		},
		LanguageManager: map[string]any{
			"loaded": c.registry.Status(),
		},
		Service: stats,
	}
}
