// Package config loads the service's Query Config and resource-tuning
// knobs from the environment, in the same env-var-with-typed-fallback
// style the teacher used for its encryption/retention settings, plus
// godotenv support for a local .env file during development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/oxhq/queryforge/internal/memmon"
	"github.com/oxhq/queryforge/internal/query"
)

// Profile selects one of the three baked-in starting points before env
// overrides are applied.
type Profile string

const (
	Production  Profile = "production"
	Development Profile = "development"
	Test        Profile = "test"
)

// Config is the fully resolved, process-wide configuration surface.
type Config struct {
	Profile Profile

	Query query.Config

	ParserPoolMaxIdle    int
	ParserAcquireTimeout time.Duration
	TreeCacheTTL         time.Duration

	MemoryWarningMB   float64
	MemoryCriticalMB  float64
	MemorySampleEvery time.Duration
	MemoryWindow      int

	CleanupMaxHistory int

	HTTPAddr string
	DBPath   string
}

// Load reads QUERYFORGE_* environment variables on top of the profile
// named by QUERYFORGE_PROFILE (default "production"), loading a local
// .env file first via godotenv when present.
func Load() *Config {
	_ = godotenv.Load()

	profile := Profile(getEnv("QUERYFORGE_PROFILE", string(Production)))
	cfg := defaultsFor(profile)

	cfg.Query.MaxPredicatesPerQuery = getEnvInt("QUERYFORGE_MAX_PREDICATES", cfg.Query.MaxPredicatesPerQuery)
	cfg.Query.MaxDirectivesPerQuery = getEnvInt("QUERYFORGE_MAX_DIRECTIVES", cfg.Query.MaxDirectivesPerQuery)
	cfg.Query.CacheSize = getEnvInt("QUERYFORGE_CACHE_SIZE", cfg.Query.CacheSize)
	cfg.Query.CacheTTLMillis = getEnvInt("QUERYFORGE_CACHE_TTL_MS", cfg.Query.CacheTTLMillis)
	cfg.Query.CachingEnabled = getEnvBool("QUERYFORGE_CACHING_ENABLED", cfg.Query.CachingEnabled)
	cfg.Query.OptimizationEnabled = getEnvBool("QUERYFORGE_OPTIMIZATION_ENABLED", cfg.Query.OptimizationEnabled)
	cfg.Query.WildcardRewriteEnabled = getEnvBool("QUERYFORGE_WILDCARD_REWRITE", cfg.Query.WildcardRewriteEnabled)

	cfg.ParserPoolMaxIdle = getEnvInt("QUERYFORGE_POOL_MAX_IDLE", cfg.ParserPoolMaxIdle)
	cfg.MemoryWarningMB = getEnvFloat("QUERYFORGE_MEM_WARNING_MB", cfg.MemoryWarningMB)
	cfg.MemoryCriticalMB = getEnvFloat("QUERYFORGE_MEM_CRITICAL_MB", cfg.MemoryCriticalMB)
	cfg.HTTPAddr = getEnv("QUERYFORGE_HTTP_ADDR", cfg.HTTPAddr)
	cfg.DBPath = getEnv("QUERYFORGE_DB_PATH", cfg.DBPath)

	return cfg
}

func defaultsFor(profile Profile) *Config {
	allPredicates := map[query.PredicateKind]bool{
		query.PredEq: true, query.PredMatch: true, query.PredAnyOf: true,
		query.PredIs: true, query.PredIsNot: true,
	}
	allDirectives := map[query.DirectiveKind]bool{
		query.DirSet: true, query.DirStrip: true, query.DirSelectAdjacent: true,
	}

	base := &Config{
		Profile: profile,
		Query: query.Config{
			PredicatesEnabled:     true,
			DirectivesEnabled:     true,
			MaxPredicatesPerQuery: 32,
			MaxDirectivesPerQuery: 16,
			AllowedPredicates:     allPredicates,
			AllowedDirectives:     allDirectives,
			OptimizationEnabled:   true,
			CachingEnabled:        true,
			CacheSize:             1000,
			CacheTTLMillis:        5 * 60 * 1000,
		},
		ParserPoolMaxIdle:    16,
		ParserAcquireTimeout: 30 * time.Second,
		TreeCacheTTL:         5 * time.Minute,
		MemoryWarningMB:      512,
		MemoryCriticalMB:     1024,
		MemorySampleEvery:    10 * time.Second,
		MemoryWindow:         30,
		CleanupMaxHistory:    50,
		HTTPAddr:             ":8080",
		DBPath:               ".queryforge/cache.db",
	}

	switch profile {
	case Development:
		base.Query.MaxPredicatesPerQuery = 64
		base.Query.MaxDirectivesPerQuery = 32
		base.ParserAcquireTimeout = 2 * time.Minute
	case Test:
		base.Query.CachingEnabled = false
		base.ParserPoolMaxIdle = 2
		base.TreeCacheTTL = 0
		base.MemorySampleEvery = time.Second
		base.DBPath = ":memory:"
	}
	return base
}

// MemoryThresholds adapts Config's flat fields into memmon's Thresholds
// shape.
func (c *Config) MemoryThresholds() memmon.Thresholds {
	return memmon.Thresholds{WarningMB: c.MemoryWarningMB, CriticalMB: c.MemoryCriticalMB}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
