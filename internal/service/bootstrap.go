package service

import (
	"fmt"
	"time"

	"github.com/oxhq/queryforge/internal/cache"
	"github.com/oxhq/queryforge/internal/cleaner"
	"github.com/oxhq/queryforge/internal/config"
	"github.com/oxhq/queryforge/internal/grammar"
	"github.com/oxhq/queryforge/internal/memmon"
	"github.com/oxhq/queryforge/internal/pool"
	"github.com/oxhq/queryforge/internal/treemgr"
)

// App bundles the coordinator with the background collaborators that need
// an explicit shutdown (the memory sampler goroutine, the pressure watcher,
// the parser pool's reaper, the cache's sqlite connection).
type App struct {
	Coordinator *Coordinator

	registry *grammar.Registry
	pool     *pool.Pool
	monitor  *memmon.Monitor
	results  *cache.Store

	stopWatch chan struct{}
}

// Bootstrap wires every collaborator named in SPEC_FULL.md's component
// table from a single resolved Config: grammar registry (C1), parser pool
// (C2), tree manager (C3), memory monitor (C4), resource cleaner (C5), and
// the query result cache (D1) the cleaner's emergency strategy also
// evicts.
func Bootstrap(cfg *config.Config) (*App, error) {
	registry := grammar.NewRegistry()

	pl := pool.New(registry, cfg.ParserPoolMaxIdle, cfg.ParserAcquireTimeout)
	trees := treemgr.NewManager(cfg.TreeCacheTTL)
	monitor := memmon.NewMonitor(cfg.MemoryThresholds(), cfg.MemorySampleEvery, cfg.MemoryWindow)

	var results *cache.Store
	if cfg.Query.CachingEnabled {
		store, err := cache.Open(cfg.DBPath, time.Duration(cfg.Query.CacheTTLMillis)*time.Millisecond)
		if err != nil {
			return nil, fmt.Errorf("service: opening query cache: %w", err)
		}
		results = store
	}

	clnr := cleaner.New(cleaner.Targets{
		ReapIdleParsers:    func(cleaner.Strategy) int { return pl.EmergencyCleanup() },
		EvictCaches:        func(cleaner.Strategy) int { n, _ := results.Clear(); return n },
		ClearGrammarCache:  registry.ClearCache,
		DestroyActiveTrees: trees.DestroyAllActive,
	}, cfg.CleanupMaxHistory)

	monitor.Start()

	coord := New(cfg, registry, pl, trees, monitor, clnr, results)
	app := &App{Coordinator: coord, registry: registry, pool: pl, monitor: monitor, results: results, stopWatch: make(chan struct{})}
	go app.watchPressure(cfg.MemorySampleEvery, monitor, clnr)
	return app, nil
}

// watchPressure is the monitor-to-cleaner signal path: on each sampling
// tick it escalates to the strategy the current pressure calls for —
// emergency at the critical level, aggressive on a rising trend at the
// warning level, basic when the monitor merely asks for a periodic pass.
func (a *App) watchPressure(every time.Duration, monitor *memmon.Monitor, clnr *cleaner.Cleaner) {
	if every <= 0 {
		every = 10 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			status := monitor.CheckMemory()
			switch {
			case status.Level == memmon.Critical:
				clnr.Run(cleaner.Emergency)
				monitor.MarkCleanup()
				monitor.MarkForceGC()
			case status.Level == memmon.Warning && status.Trend == memmon.Increasing:
				clnr.Run(cleaner.Aggressive)
				monitor.MarkCleanup()
			case monitor.ShouldCleanup():
				clnr.Run(cleaner.Basic)
				monitor.MarkCleanup()
			}
		case <-a.stopWatch:
			return
		}
	}
}

// Close stops background goroutines and closes the cache database
// connection. Safe to call once at process shutdown.
func (a *App) Close() error {
	close(a.stopWatch)
	a.monitor.Stop()
	a.pool.Close()
	if a.results != nil {
		return a.results.Close()
	}
	return nil
}
