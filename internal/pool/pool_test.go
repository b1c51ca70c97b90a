package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxhq/queryforge/internal/grammar"
)

func TestPool_AcquireReleaseRoundTrip(t *testing.T) {
	p := New(grammar.NewRegistry(), 2, time.Second)
	defer p.Close()

	parser, err := p.Acquire(grammar.JavaScript)
	require.NoError(t, err)
	require.NotNil(t, parser)

	idle, active := p.Stats()
	assert.Equal(t, 0, idle)
	assert.Equal(t, 1, active)

	p.Release(parser, grammar.JavaScript)
	idle, active = p.Stats()
	assert.Equal(t, 1, idle)
	assert.Equal(t, 0, active)
}

func TestPool_ReleaseBeyondMaxIdleDropsParser(t *testing.T) {
	p := New(grammar.NewRegistry(), 1, time.Second)
	defer p.Close()

	a, err := p.Acquire(grammar.JavaScript)
	require.NoError(t, err)
	b, err := p.Acquire(grammar.JavaScript)
	require.NoError(t, err)

	p.Release(a, grammar.JavaScript)
	p.Release(b, grammar.JavaScript)

	idle, _ := p.Stats()
	assert.Equal(t, 1, idle)
}

func TestPool_AcquireReusesIdleParserOverAllocatingFresh(t *testing.T) {
	p := New(grammar.NewRegistry(), 2, time.Second)
	defer p.Close()

	first, err := p.Acquire(grammar.Python)
	require.NoError(t, err)
	p.Release(first, grammar.Python)

	second, err := p.Acquire(grammar.Python)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestPool_EmergencyCleanupDropsAllIdle(t *testing.T) {
	p := New(grammar.NewRegistry(), 4, time.Second)
	defer p.Close()

	a, _ := p.Acquire(grammar.Go)
	b, _ := p.Acquire(grammar.Rust)
	p.Release(a, grammar.Go)
	p.Release(b, grammar.Rust)

	idle, _ := p.Stats()
	require.Equal(t, 2, idle)

	dropped := p.EmergencyCleanup()
	assert.Equal(t, 2, dropped)
	idle, _ = p.Stats()
	assert.Equal(t, 0, idle)
}

func TestPool_IsHealthyFalseWhenActiveExceedsTwiceMax(t *testing.T) {
	p := New(grammar.NewRegistry(), 1, time.Second)
	defer p.Close()

	for i := 0; i < 3; i++ {
		_, err := p.Acquire(grammar.JavaScript)
		require.NoError(t, err)
	}
	assert.False(t, p.IsHealthy())
}

func TestPool_WarmupPreAllocatesIdleParsers(t *testing.T) {
	p := New(grammar.NewRegistry(), 2, time.Second)
	defer p.Close()

	err := p.Warmup(grammar.JavaScript, grammar.Python)
	require.NoError(t, err)

	idle, active := p.Stats()
	assert.Equal(t, 2, idle)
	assert.Equal(t, 0, active)
}
