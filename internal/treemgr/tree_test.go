package treemgr

import (
	"context"
	"testing"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJSParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(javascript.GetLanguage())
	return p
}

func TestCreate_RejectsEmptySource(t *testing.T) {
	m := NewManager(0)
	_, err := m.Create(context.Background(), newJSParser(), nil)
	assert.Error(t, err)
}

func TestCreate_TracksTreeAsActive(t *testing.T) {
	m := NewManager(0)
	tree, err := m.Create(context.Background(), newJSParser(), []byte("let x = 1;"))
	require.NoError(t, err)
	require.NotNil(t, tree)
	assert.Equal(t, 1, m.ActiveCount())

	m.Destroy(tree)
	assert.Equal(t, 0, m.ActiveCount())
}

func TestCreate_CachesIdenticalSourceWhenTTLSet(t *testing.T) {
	m := NewManager(time.Minute)
	code := []byte("let x = 1;")

	first, err := m.Create(context.Background(), newJSParser(), code)
	require.NoError(t, err)
	m.Destroy(first)

	second, err := m.Create(context.Background(), newJSParser(), code)
	require.NoError(t, err)
	defer m.Destroy(second)

	stats := m.Stats()
	assert.Equal(t, int64(1), stats["hits"])
}

func TestCreate_NoCachingWhenTTLZero(t *testing.T) {
	m := NewManager(0)
	code := []byte("let x = 1;")

	first, err := m.Create(context.Background(), newJSParser(), code)
	require.NoError(t, err)
	m.Destroy(first)

	_, err = m.Create(context.Background(), newJSParser(), code)
	require.NoError(t, err)

	stats := m.Stats()
	assert.Equal(t, int64(0), stats["hits"])
}

func TestDestroyAllActive_ClosesEveryTrackedTree(t *testing.T) {
	m := NewManager(0)
	_, err := m.Create(context.Background(), newJSParser(), []byte("let a = 1;"))
	require.NoError(t, err)
	_, err = m.Create(context.Background(), newJSParser(), []byte("let b = 2;"))
	require.NoError(t, err)
	require.Equal(t, 2, m.ActiveCount())

	count := m.DestroyAllActive()
	assert.Equal(t, 2, count)
	assert.Equal(t, 0, m.ActiveCount())
}
