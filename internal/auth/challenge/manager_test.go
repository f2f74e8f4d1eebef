package challenge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rightvendors/portfolyze/internal/auth"
	"github.com/rightvendors/portfolyze/internal/auth/authtest"
	"github.com/rightvendors/portfolyze/internal/auth/autherr"
)

const container = "recaptcha-container"

func TestAcquire_CreatesOnceAndReuses(t *testing.T) {
	p := authtest.NewProvider()
	m := NewManager(p)
	ctx := context.Background()

	h1, err := m.Acquire(ctx, container)
	require.NoError(t, err)
	assert.Equal(t, Ready, h1.Status())
	assert.NotEmpty(t, h1.Ref())

	h2, err := m.Acquire(ctx, container)
	require.NoError(t, err)
	assert.Same(t, h1, h2)

	s := p.Stats()
	assert.Equal(t, 1, s.Creates)
	assert.Equal(t, 1, s.Renders)
}

func TestAcquire_SpentProofRerendersSameInstance(t *testing.T) {
	p := authtest.NewProvider()
	m := NewManager(p)
	ctx := context.Background()

	h1, err := m.Acquire(ctx, container)
	require.NoError(t, err)
	tok, err := h1.TakeProof()
	require.NoError(t, err)
	assert.NotEmpty(t, tok.Value)

	_, err = h1.TakeProof()
	assert.True(t, errors.Is(err, autherr.New(autherr.ChallengeUnavailable, nil)))

	h2, err := m.Acquire(ctx, container)
	require.NoError(t, err)
	assert.Same(t, h1, h2)
	tok2, err := h2.TakeProof()
	require.NoError(t, err)
	assert.NotEqual(t, tok.Value, tok2.Value)

	s := p.Stats()
	assert.Equal(t, 1, s.Creates)
	assert.Equal(t, 2, s.Renders)
}

func TestInvalidate_ForcesRecreate(t *testing.T) {
	p := authtest.NewProvider()
	m := NewManager(p)
	ctx := context.Background()

	h1, err := m.Acquire(ctx, container)
	require.NoError(t, err)
	ref1 := h1.Ref()
	m.Invalidate(h1)
	assert.Equal(t, Expired, h1.Status())

	h2, err := m.Acquire(ctx, container)
	require.NoError(t, err)
	assert.NotSame(t, h1, h2)
	assert.NotEqual(t, ref1, h2.Ref())
	assert.Equal(t, Disposed, h1.Status())
	assert.Equal(t, 1, p.LiveWidgets(container))
	assert.Equal(t, 2, p.Stats().Creates)
}

func TestAtMostOneWidgetPerContainer(t *testing.T) {
	p := authtest.NewProvider()
	m := NewManager(p)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		h, err := m.Acquire(ctx, container)
		require.NoError(t, err)
		switch i % 3 {
		case 0:
			_, err = h.TakeProof()
			require.NoError(t, err)
		case 1:
			m.Invalidate(h)
		case 2:
			p.ExpireWidget(h.Ref())
		}
		assert.LessOrEqual(t, p.LiveWidgets(container), 1)
		assert.Equal(t, 1, m.Live())
	}
}

func TestAcquire_ConcurrentCallersShareOneWidget(t *testing.T) {
	p := authtest.NewProvider()
	m := NewManager(p)

	var wg sync.WaitGroup
	handles := make([]*Handle, 8)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := m.Acquire(context.Background(), container)
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()

	for _, h := range handles {
		assert.Same(t, handles[0], h)
	}
	assert.Equal(t, 1, p.Stats().Creates)
	assert.Equal(t, 1, p.LiveWidgets(container))
}

func TestAcquire_CreateFailureIsChallengeUnavailable(t *testing.T) {
	p := authtest.NewProvider()
	p.FailCreate(errors.New("script blocked"))
	m := NewManager(p)

	_, err := m.Acquire(context.Background(), container)
	require.Error(t, err)
	assert.Equal(t, autherr.ChallengeUnavailable, autherr.KindOf(err))
	assert.Equal(t, 0, m.Live())

	p.FailCreate(nil)
	h, err := m.Acquire(context.Background(), container)
	require.NoError(t, err)
	assert.Equal(t, Ready, h.Status())
}

func TestAcquire_RenderFailureRecreatesNextTime(t *testing.T) {
	p := authtest.NewProvider()
	p.FailRender(errors.New("render timeout"))
	m := NewManager(p)
	ctx := context.Background()

	_, err := m.Acquire(ctx, container)
	assert.Equal(t, autherr.ChallengeUnavailable, autherr.KindOf(err))

	p.FailRender(nil)
	h, err := m.Acquire(ctx, container)
	require.NoError(t, err)
	assert.Equal(t, Ready, h.Status())
	assert.Equal(t, 2, p.Stats().Creates)
	assert.Equal(t, 1, p.LiveWidgets(container))
}

func TestAcquire_EmptyContainer(t *testing.T) {
	m := NewManager(authtest.NewProvider())
	_, err := m.Acquire(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyContainer)
}

func TestDispose_Idempotent(t *testing.T) {
	p := authtest.NewProvider()
	m := NewManager(p)

	h, err := m.Acquire(context.Background(), container)
	require.NoError(t, err)

	m.Dispose(h)
	m.Dispose(h)
	m.DisposeContainer(container)

	assert.Equal(t, Disposed, h.Status())
	assert.Equal(t, 1, p.Stats().Disposes)
	assert.Equal(t, 0, p.LiveWidgets(container))
	_, ok := m.Lookup(container)
	assert.False(t, ok)

	_, err = h.TakeProof()
	assert.ErrorIs(t, err, ErrDisposed)
}

func TestProviderExpiryCallback(t *testing.T) {
	p := authtest.NewProvider()
	m := NewManager(p)

	h, err := m.Acquire(context.Background(), container)
	require.NoError(t, err)
	p.ExpireWidget(h.Ref())
	assert.Equal(t, Expired, h.Status())

	_, err = h.TakeProof()
	assert.ErrorIs(t, err, ErrNoProof)
}

func TestProofExpiresWithClock(t *testing.T) {
	p := authtest.NewProvider()
	clock := newClock()
	p.SetClock(clock.Now)
	m := NewManager(p, WithClock(clock.Now))

	h, err := m.Acquire(context.Background(), container)
	require.NoError(t, err)
	clock.Advance(3 * time.Minute)

	_, err = h.TakeProof()
	assert.ErrorIs(t, err, ErrNoProof)

	h2, err := m.Acquire(context.Background(), container)
	require.NoError(t, err)
	assert.Same(t, h, h2)
	_, err = h2.TakeProof()
	assert.NoError(t, err)
}

func TestClose_DisposesEverything(t *testing.T) {
	p := authtest.NewProvider()
	m := NewManager(p, WithWidgetSize(auth.WidgetSizeNormal))
	ctx := context.Background()

	_, err := m.Acquire(ctx, "a")
	require.NoError(t, err)
	_, err = m.Acquire(ctx, "b")
	require.NoError(t, err)

	m.Close()
	assert.Equal(t, 0, m.Live())
	assert.Equal(t, 0, p.LiveWidgets("a"))
	assert.Equal(t, 0, p.LiveWidgets("b"))
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
