package grammar

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetLoadsAndMemoizesHandle(t *testing.T) {
	r := NewRegistry()
	h1, err := r.Get(JavaScript)
	require.NoError(t, err)
	require.NotNil(t, h1)

	h2, err := r.Get(JavaScript)
	require.NoError(t, err)
	assert.Same(t, h1, h2)
}

func TestRegistry_GetUnsupportedLanguage(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get(Language("cobol"))
	require.Error(t, err)
	var unsupported *ErrUnsupportedLanguage
	assert.ErrorAs(t, err, &unsupported)
}

func TestRegistry_IsSupported(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.IsSupported(Python))
	assert.False(t, r.IsSupported(Language("cobol")))
}

func TestRegistry_ConcurrentGetCoalescesLoad(t *testing.T) {
	r := NewRegistry()
	const n = 20

	results := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := r.Get(Rust)
			results[i] = err
		}(i)
	}
	wg.Wait()

	for _, err := range results {
		assert.NoError(t, err)
	}
	assert.True(t, r.Status()[Rust])
}

func TestRegistry_ClearCacheResetsStatus(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get(Go)
	require.NoError(t, err)
	assert.True(t, r.Status()[Go])

	r.ClearCache()
	assert.False(t, r.Status()[Go])
}

func TestForFile_ResolvesKnownExtensions(t *testing.T) {
	lang, ok := ForFile("src/main.go")
	require.True(t, ok)
	assert.Equal(t, Go, lang)

	_, ok = ForFile("README")
	assert.False(t, ok)
}
