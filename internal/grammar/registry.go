package grammar

import (
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// ErrUnsupportedLanguage is returned by Get for any identifier outside the
// closed set.
type ErrUnsupportedLanguage struct {
	Language string
}

func (e *ErrUnsupportedLanguage) Error() string {
	return fmt.Sprintf("unsupported language: %q", e.Language)
}

// Registry memoizes compiled grammar handles, coalescing concurrent first
// loads of the same language onto a single call instead of racing duplicate
// loads (the teacher's registry only rejects duplicate registration; this
// one actively coalesces, since grammar construction here is implicit and
// lazy rather than explicit client-driven registration).
type Registry struct {
	mu      sync.Mutex
	loaded  map[Language]*sitter.Language
	pending map[Language]*sync.WaitGroup
}

// NewRegistry constructs an empty registry. Nothing is loaded until Get or
// Preload is called.
func NewRegistry() *Registry {
	return &Registry{
		loaded:  make(map[Language]*sitter.Language),
		pending: make(map[Language]*sync.WaitGroup),
	}
}

// Get resolves a language identifier to its compiled grammar handle,
// loading and memoizing it on first use. Concurrent callers requesting the
// same unloaded language block on the same in-flight load rather than each
// constructing their own handle.
func (r *Registry) Get(lang Language) (*sitter.Language, error) {
	loaderFn, ok := loaders[lang]
	if !ok {
		return nil, &ErrUnsupportedLanguage{Language: string(lang)}
	}

	r.mu.Lock()
	if handle, ok := r.loaded[lang]; ok {
		r.mu.Unlock()
		return handle, nil
	}
	if wg, inFlight := r.pending[lang]; inFlight {
		r.mu.Unlock()
		wg.Wait()
		r.mu.Lock()
		handle, ok := r.loaded[lang]
		r.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("grammar: load of %q failed in another goroutine", lang)
		}
		return handle, nil
	}

	wg := &sync.WaitGroup{}
	wg.Add(1)
	r.pending[lang] = wg
	r.mu.Unlock()

	handle := loaderFn()

	r.mu.Lock()
	r.loaded[lang] = handle
	delete(r.pending, lang)
	r.mu.Unlock()
	wg.Done()

	return handle, nil
}

// IsSupported reports whether lang is in the closed set, without loading it.
func (r *Registry) IsSupported(lang Language) bool {
	_, ok := loaders[lang]
	return ok
}

// Preload eagerly loads and memoizes a set of languages, returning the
// first error encountered (if any). Used at server startup to warm the
// common cases and surface a bad build early.
func (r *Registry) Preload(langs ...Language) error {
	for _, l := range langs {
		if _, err := r.Get(l); err != nil {
			return err
		}
	}
	return nil
}

// PreloadAll loads every supported language.
func (r *Registry) PreloadAll() error {
	return r.Preload(All()...)
}

// ClearCache drops all memoized handles. Grammar handles are process-wide
// singletons inside go-tree-sitter itself, so this only resets this
// registry's bookkeeping — a subsequent Get reloads cheaply.
func (r *Registry) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = make(map[Language]*sitter.Language)
}

// Status reports which languages have been loaded so far, for the health
// endpoint.
func (r *Registry) Status() map[Language]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := make(map[Language]bool, len(loaders))
	for l := range loaders {
		_, status[l] = r.loaded[l]
	}
	return status
}

// ForFile resolves a language from a filename's extension, for glob/batch
// scanning.
func ForFile(name string) (Language, bool) {
	ext := extOf(name)
	lang, ok := Extensions[ext]
	return lang, ok
}

func extOf(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[i:]
		}
		if name[i] == '/' {
			break
		}
	}
	return ""
}
