// Package cleaner implements the three-tier resource cleanup strategy
// (basic/aggressive/emergency) the memory monitor triggers under pressure.
//
// Resolved design question: strategies are a flat switch over a Strategy
// enum rather than a registry of strategy objects — there is no second
// family of cleanup behaviors anticipated, and a flat switch matches the
// teacher's own preference for flat branching over interface indirection
// in its retry/health-check code.
package cleaner

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// Strategy is one of the three cleanup tiers.
type Strategy string

const (
	Basic      Strategy = "basic"
	Aggressive Strategy = "aggressive"
	Emergency  Strategy = "emergency"
)

// Targets is the set of collaborators a cleanup pass can act on. Each is
// optional (nil-safe) so the cleaner can be exercised standalone in tests.
type Targets struct {
	// ReapIdleParsers should drop idle parser-pool entries down to some
	// budget for the given strategy and return how many were dropped.
	ReapIdleParsers func(strategy Strategy) int
	// EvictCaches should clear query/regex/tree caches and return how
	// many entries were evicted.
	EvictCaches func(strategy Strategy) int
	// ClearGrammarCache drops the grammar registry's memoized handles
	// (C1), enlisted only by the emergency strategy.
	ClearGrammarCache func()
	// DestroyActiveTrees bulk-destroys every syntax tree still tracked
	// as active (C3), enlisted only by the emergency strategy.
	DestroyActiveTrees func() int
}

// HistoryEntry records one completed cleanup pass.
type HistoryEntry struct {
	Strategy   Strategy
	BeforeMB   float64
	AfterMB    float64
	DurationMS float64
	Success    bool
	At         time.Time
}

// Cleaner runs cleanup strategies, serializing concurrent requests onto a
// single in-flight pass (a second caller observes the first pass's result
// rather than running a redundant concurrent cleanup).
type Cleaner struct {
	targets Targets

	mu         sync.Mutex
	running    bool
	done       chan struct{}
	lastResult HistoryEntry

	historyMu  sync.Mutex
	history    []HistoryEntry
	maxHistory int
}

// New constructs a cleaner bound to targets.
func New(targets Targets, maxHistory int) *Cleaner {
	if maxHistory <= 0 {
		maxHistory = 50
	}
	return &Cleaner{targets: targets, maxHistory: maxHistory}
}

// Run executes strategy, or waits for and returns an already in-flight
// pass's result if one is running.
func (c *Cleaner) Run(strategy Strategy) HistoryEntry {
	c.mu.Lock()
	if c.running {
		done := c.done
		c.mu.Unlock()
		<-done
		c.mu.Lock()
		result := c.lastResult
		c.mu.Unlock()
		return result
	}
	c.running = true
	c.done = make(chan struct{})
	c.mu.Unlock()

	entry := c.execute(strategy)

	c.mu.Lock()
	c.lastResult = entry
	c.running = false
	close(c.done)
	c.mu.Unlock()

	c.recordHistory(entry)
	return entry
}

// execute runs one strategy's step table, per the resource-cleaner
// contract: basic is a single forced GC with a short settle wait;
// aggressive reaps the parser pool's idle entries then runs two GC rounds;
// emergency clears the grammar cache, bulk-destroys active trees, runs the
// parser pool's own emergency cleanup, then runs five GC rounds with a
// longer settle wait between each to give the OS allocator room to
// reclaim freed pages (debug.FreeOSMemory forces that reclaim rather than
// waiting on the Go runtime's own schedule).
func (c *Cleaner) execute(strategy Strategy) HistoryEntry {
	start := time.Now()
	before := heapMB()

	switch strategy {
	case Basic:
		runtime.GC()
		time.Sleep(50 * time.Millisecond)
	case Aggressive:
		if c.targets.ReapIdleParsers != nil {
			c.targets.ReapIdleParsers(Aggressive)
		}
		for i := 0; i < 2; i++ {
			runtime.GC()
			time.Sleep(50 * time.Millisecond)
		}
	case Emergency:
		if c.targets.ClearGrammarCache != nil {
			c.targets.ClearGrammarCache()
		}
		if c.targets.DestroyActiveTrees != nil {
			c.targets.DestroyActiveTrees()
		}
		if c.targets.ReapIdleParsers != nil {
			c.targets.ReapIdleParsers(Emergency)
		}
		if c.targets.EvictCaches != nil {
			c.targets.EvictCaches(Emergency)
		}
		for i := 0; i < 5; i++ {
			runtime.GC()
			debug.FreeOSMemory()
			time.Sleep(200 * time.Millisecond)
		}
	default:
		return HistoryEntry{Strategy: strategy, Success: false, At: start}
	}

	after := heapMB()
	return HistoryEntry{
		Strategy:   strategy,
		BeforeMB:   before,
		AfterMB:    after,
		DurationMS: float64(time.Since(start).Microseconds()) / 1000.0,
		Success:    true,
		At:         start,
	}
}

func (c *Cleaner) recordHistory(entry HistoryEntry) {
	c.historyMu.Lock()
	defer c.historyMu.Unlock()
	c.history = append(c.history, entry)
	if len(c.history) > c.maxHistory {
		c.history = c.history[len(c.history)-c.maxHistory:]
	}
}

// History returns a copy of the bounded cleanup history, newest last.
func (c *Cleaner) History() []HistoryEntry {
	c.historyMu.Lock()
	defer c.historyMu.Unlock()
	out := make([]HistoryEntry, len(c.history))
	copy(out, c.history)
	return out
}

// IsHealthy reports false once the history holds more than ten runs and
// over 30% of them failed.
func (c *Cleaner) IsHealthy() bool {
	hist := c.History()
	if len(hist) <= 10 {
		return true
	}
	failed := 0
	for _, e := range hist {
		if !e.Success {
			failed++
		}
	}
	return float64(failed)/float64(len(hist)) <= 0.3
}

// HealthCheck reports whether the last N cleanup passes all succeeded.
func (c *Cleaner) HealthCheck(lastN int) (bool, error) {
	hist := c.History()
	if len(hist) == 0 {
		return true, nil
	}
	if lastN > len(hist) {
		lastN = len(hist)
	}
	for _, e := range hist[len(hist)-lastN:] {
		if !e.Success {
			return false, fmt.Errorf("cleanup strategy %s failed at %s", e.Strategy, e.At)
		}
	}
	return true, nil
}

func heapMB() float64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.HeapAlloc) / (1024 * 1024)
}
