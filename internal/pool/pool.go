// Package pool implements a bounded, per-language pool of reusable
// tree-sitter parser instances.
//
// The acquire/release bookkeeping borrows the worker-pool shape the
// teacher used for fanning file-processing jobs out over goroutines
// (channel of work + sync.WaitGroup + mutex-protected shared state),
// generalized here from "workers pulling jobs off a channel" to "requests
// acquiring and releasing a scarce parser instance." The periodic reaper
// goroutine follows the teacher's cache-cleanup shape: a single
// lazily-started ticker loop.
package pool

import (
	"fmt"
	"sync"
	"time"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/oxhq/queryforge/internal/grammar"
)

type idleParser struct {
	parser     *sitter.Parser
	returnedAt time.Time
}

type checkedOut struct {
	parser     *sitter.Parser
	acquiredAt time.Time
}

// Pool manages parser instances per language, bounded by maxIdle per
// language and reaped by a background goroutine.
type Pool struct {
	registry       *grammar.Registry
	maxIdle        int
	acquireTimeout time.Duration

	mu     sync.Mutex
	idle   map[grammar.Language][]idleParser
	active map[*sitter.Parser]checkedOut

	reapOnce sync.Once
	stopReap chan struct{}
}

// New constructs a pool backed by registry, keeping at most maxIdle idle
// parsers per language and untracking any checked-out parser held longer
// than acquireTimeout (a leak, not ordinary use); such a parser is treated
// as lost, and Release destroys it instead of returning it to the pool.
func New(registry *grammar.Registry, maxIdle int, acquireTimeout time.Duration) *Pool {
	return &Pool{
		registry:       registry,
		maxIdle:        maxIdle,
		acquireTimeout: acquireTimeout,
		idle:           make(map[grammar.Language][]idleParser),
		active:         make(map[*sitter.Parser]checkedOut),
		stopReap:       make(chan struct{}),
	}
}

// Acquire pops an idle parser for lang or allocates a fresh one, binding it
// to the language's compiled grammar.
func (p *Pool) Acquire(lang grammar.Language) (*sitter.Parser, error) {
	p.mu.Lock()
	if stack := p.idle[lang]; len(stack) > 0 {
		ip := stack[len(stack)-1]
		p.idle[lang] = stack[:len(stack)-1]
		p.active[ip.parser] = checkedOut{parser: ip.parser, acquiredAt: time.Now()}
		p.mu.Unlock()
		p.reapOnce.Do(func() { go p.reapLoop() })
		return ip.parser, nil
	}
	p.mu.Unlock()

	handle, err := p.registry.Get(lang)
	if err != nil {
		return nil, err
	}
	parser := sitter.NewParser()
	parser.SetLanguage(handle)

	p.mu.Lock()
	p.active[parser] = checkedOut{parser: parser, acquiredAt: time.Now()}
	p.mu.Unlock()
	p.reapOnce.Do(func() { go p.reapLoop() })
	return parser, nil
}

// Release returns parser to lang's idle stack, or destroys it if the pool
// is already at maxIdle for that language. A parser the reaper already
// removed from the active set (held past the acquisition timeout) is
// considered lost: it is destroyed rather than re-pooled.
func (p *Pool) Release(parser *sitter.Parser, lang grammar.Language) {
	if parser == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, tracked := p.active[parser]; !tracked {
		parser.Close()
		return
	}
	delete(p.active, parser)

	if p.maxIdle > 0 && len(p.idle[lang]) >= p.maxIdle {
		parser.Close()
		return
	}
	p.idle[lang] = append(p.idle[lang], idleParser{parser: parser, returnedAt: time.Now()})
}

// Warmup pre-allocates one idle parser per language in langs, so the first
// real request for that language doesn't pay allocation cost.
func (p *Pool) Warmup(langs ...grammar.Language) error {
	for _, lang := range langs {
		parser, err := p.Acquire(lang)
		if err != nil {
			return fmt.Errorf("pool: warmup %s: %w", lang, err)
		}
		p.Release(parser, lang)
	}
	return nil
}

// EmergencyCleanup drops every idle parser across all languages
// immediately, for the resource cleaner's most aggressive strategy.
func (p *Pool) EmergencyCleanup() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	dropped := 0
	for lang, stack := range p.idle {
		for _, ip := range stack {
			ip.parser.Close()
		}
		dropped += len(stack)
		p.idle[lang] = nil
	}
	return dropped
}

// Stats reports idle/active counts for the health endpoint.
func (p *Pool) Stats() (idleCount, activeCount int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, stack := range p.idle {
		idleCount += len(stack)
	}
	activeCount = len(p.active)
	return idleCount, activeCount
}

// estimatedParserMB approximates one native parser's footprint, for the
// health check's memory ceiling.
const estimatedParserMB = 2

// memoryCeilingMB is the pool's estimated-memory health limit across all
// idle and active parsers.
const memoryCeilingMB = 256

// IsHealthy reports false if the active checkout count exceeds twice the
// pool's configured max (idle parsers are bounded per language, so a
// runaway active count past that line means requests are leaking parsers
// faster than they're released), or if the pool's estimated memory
// footprint exceeds its ceiling.
func (p *Pool) IsHealthy() bool {
	if p.maxIdle <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.active) > 2*p.maxIdle {
		return false
	}
	total := len(p.active)
	for _, stack := range p.idle {
		total += len(stack)
	}
	return total*estimatedParserMB <= memoryCeilingMB
}

// Close stops the background reaper. Idle parsers are left for the GC;
// tree-sitter parsers have no external resources beyond process memory.
func (p *Pool) Close() {
	select {
	case <-p.stopReap:
	default:
		close(p.stopReap)
	}
}

func (p *Pool) reapLoop() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.reap()
		case <-p.stopReap:
			return
		}
	}
}

// reap drops idle parsers beyond half the pool's max per language and
// stops tracking checked-out parsers held past acquireTimeout (a leak).
// An untracked parser is considered lost: the holder discovers this on
// Release, which destroys it instead of re-pooling it.
func (p *Pool) reap() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.maxIdle > 0 {
		limit := p.maxIdle / 2
		if limit < 1 {
			limit = 1
		}
		for lang, stack := range p.idle {
			if len(stack) > limit {
				for _, ip := range stack[:len(stack)-limit] {
					ip.parser.Close()
				}
				p.idle[lang] = stack[len(stack)-limit:]
			}
		}
	}

	if p.acquireTimeout > 0 {
		now := time.Now()
		for parser, co := range p.active {
			if now.Sub(co.acquiredAt) > p.acquireTimeout {
				delete(p.active, parser)
			}
		}
	}
}
