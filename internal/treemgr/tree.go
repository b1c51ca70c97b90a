// Package treemgr owns syntax-tree creation and destruction, and a
// content-hash-keyed cache of recently parsed trees so repeated parses of
// identical source never touch the native parser at all.
//
// The cache shape — sync.Map keyed by a source hash, atomic hit/miss/
// eviction counters, a single lazily-started TTL eviction goroutine, and
// handing out tree.Copy() rather than the stored tree — is lifted directly
// from the teacher's AST cache.
package treemgr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
)

type cachedTree struct {
	tree      *sitter.Tree
	timestamp time.Time
	hits      atomic.Int32
}

// Manager creates, caches, and destroys syntax trees.
type Manager struct {
	cache       sync.Map
	active      sync.Map
	maxAge      time.Duration
	hits        atomic.Int64
	misses      atomic.Int64
	evictions   atomic.Int64
	cleanupOnce sync.Once
}

// NewManager constructs a tree manager with the given cache TTL. A zero TTL
// disables caching — every Create parses fresh and Destroy is a pure no-op
// on the cache (trees are still tracked as active).
func NewManager(maxAge time.Duration) *Manager {
	return &Manager{maxAge: maxAge}
}

// Create parses code with parser and returns an owning handle. Empty source
// is rejected outright: an empty string can never produce a meaningful
// root node and the spec requires a dedicated diagnostic rather than a
// confusing downstream native-query failure.
func (m *Manager) Create(ctx context.Context, parser *sitter.Parser, code []byte) (*sitter.Tree, error) {
	if len(code) == 0 {
		return nil, fmt.Errorf("treemgr: source code is empty")
	}

	if m.maxAge > 0 {
		if tree, ok := m.fromCache(code); ok {
			m.track(tree)
			return tree, nil
		}
	}

	tree, err := parser.ParseCtx(ctx, nil, code)
	if err != nil {
		return nil, fmt.Errorf("treemgr: parse failed: %w", err)
	}
	if tree == nil || tree.RootNode() == nil {
		return nil, fmt.Errorf("treemgr: parse produced no root node")
	}

	if m.maxAge > 0 {
		m.store(code, tree)
	}
	m.track(tree)
	return tree, nil
}

// Destroy removes tree from the active set and releases its native memory.
// Trees obtained from the cache are reference-counted via tree.Copy(), so
// destroying one handle never invalidates another caller's copy.
func (m *Manager) Destroy(tree *sitter.Tree) {
	if tree == nil {
		return
	}
	m.active.Delete(tree)
	tree.Close()
}

// DestroyAllActive force-closes every tree still tracked as active and
// clears the parse cache, for the resource cleaner's emergency strategy.
// Callers that still hold a reference to one of these trees will crash on
// next use — this is a last-resort strategy, only enlisted at the
// critical memory level.
func (m *Manager) DestroyAllActive() int {
	count := 0
	m.active.Range(func(key, _ any) bool {
		tree := key.(*sitter.Tree)
		tree.Close()
		m.active.Delete(tree)
		count++
		return true
	})
	m.cache.Range(func(key, value any) bool {
		ct := value.(*cachedTree)
		ct.tree.Close()
		m.cache.Delete(key)
		return true
	})
	return count
}

// ActiveCount returns the number of trees currently checked out.
func (m *Manager) ActiveCount() int {
	count := 0
	m.active.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

func (m *Manager) track(tree *sitter.Tree) {
	m.active.Store(tree, struct{}{})
}

func (m *Manager) fromCache(code []byte) (*sitter.Tree, bool) {
	hash := hashOf(code)
	v, ok := m.cache.Load(hash)
	if !ok {
		m.misses.Add(1)
		return nil, false
	}
	ct := v.(*cachedTree)
	if time.Since(ct.timestamp) > m.maxAge {
		m.cache.Delete(hash)
		m.evictions.Add(1)
		ct.tree.Close()
		m.misses.Add(1)
		return nil, false
	}
	m.hits.Add(1)
	ct.hits.Add(1)
	return ct.tree.Copy(), true
}

func (m *Manager) store(code []byte, tree *sitter.Tree) {
	hash := hashOf(code)
	ct := &cachedTree{tree: tree.Copy(), timestamp: time.Now()}
	if _, loaded := m.cache.LoadOrStore(hash, ct); loaded {
		ct.tree.Close()
		return
	}
	m.cleanupOnce.Do(func() { go m.cleanupLoop() })
}

func (m *Manager) cleanupLoop() {
	interval := m.maxAge
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		m.pruneExpired()
	}
}

func (m *Manager) pruneExpired() {
	now := time.Now()
	m.cache.Range(func(key, value any) bool {
		ct := value.(*cachedTree)
		if now.Sub(ct.timestamp) > m.maxAge {
			m.cache.Delete(key)
			ct.tree.Close()
			m.evictions.Add(1)
		}
		return true
	})
}

// Stats reports cache hit/miss/eviction counters for the health endpoint.
func (m *Manager) Stats() map[string]int64 {
	return map[string]int64{
		"hits":      m.hits.Load(),
		"misses":    m.misses.Load(),
		"evictions": m.evictions.Load(),
	}
}

func hashOf(code []byte) string {
	sum := sha256.Sum256(code)
	return hex.EncodeToString(sum[:])
}
