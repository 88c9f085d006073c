package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakePages struct {
	next      atomic.Int32
	destroyed sync.Map
	failNext  atomic.Bool
}

func (f *fakePages) create() (int, error) {
	if f.failNext.CompareAndSwap(true, false) {
		return 0, errors.New("target create failed")
	}
	return int(f.next.Add(1)), nil
}

func (f *fakePages) destroy(id int) { f.destroyed.Store(id, true) }

func (f *fakePages) isDestroyed(id int) bool {
	_, ok := f.destroyed.Load(id)
	return ok
}

func TestTabPoolReusesHealthyTabs(t *testing.T) {
	t.Parallel()

	fp := &fakePages{}
	p := newTabPool(1, fp.create, fp.destroy, nil)

	a, err := p.Get(context.Background())
	require.NoError(t, err)
	p.Put(a, true)

	b, err := p.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, a.page, b.page)
	require.Equal(t, 1, b.uses)
	p.Put(b, true)

	live, idle := p.Stats()
	require.Equal(t, 1, live)
	require.Equal(t, 1, idle)
}

func TestTabPoolRetiresAfterErrors(t *testing.T) {
	t.Parallel()

	fp := &fakePages{}
	p := newTabPool(1, fp.create, fp.destroy, nil)

	var first int
	for i := range 3 {
		tb, err := p.Get(context.Background())
		require.NoError(t, err)
		if i == 0 {
			first = tb.page
		}
		require.Equal(t, first, tb.page)
		p.Put(tb, false)
	}
	require.True(t, fp.isDestroyed(first))

	tb, err := p.Get(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, first, tb.page)
}

func TestTabHealthScoring(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tb := &tab[int]{created: now}
	tb.record(false)
	tb.record(false)
	tb.record(true)
	require.InDelta(t, 1.5, tb.errScore, 1e-9)
	require.False(t, tb.shouldRetire(now))

	tb.record(false)
	tb.record(false)
	require.True(t, tb.shouldRetire(now))

	worn := &tab[int]{created: now, uses: maxTabUses}
	require.True(t, worn.shouldRetire(now))

	old := &tab[int]{created: now.Add(-maxTabAge)}
	require.True(t, old.shouldRetire(now))

	healthy := &tab[int]{created: now}
	healthy.record(true)
	require.Zero(t, healthy.errScore)
}

func TestTabPoolBoundsCheckouts(t *testing.T) {
	t.Parallel()

	fp := &fakePages{}
	p := newTabPool(2, fp.create, fp.destroy, nil)

	a, err := p.Get(context.Background())
	require.NoError(t, err)
	b, err := p.Get(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Get(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	got := make(chan *tab[int])
	go func() {
		tb, _ := p.Get(context.Background())
		got <- tb
	}()
	p.Put(a, true)
	c := <-got
	require.Equal(t, a.page, c.page)

	p.Put(b, true)
	p.Put(c, true)
	live, _ := p.Stats()
	require.Equal(t, 2, live)
}

func TestTabPoolCreateFailureReleasesSlot(t *testing.T) {
	t.Parallel()

	fp := &fakePages{}
	fp.failNext.Store(true)
	p := newTabPool(1, fp.create, fp.destroy, nil)

	_, err := p.Get(context.Background())
	require.Error(t, err)

	tb, err := p.Get(context.Background())
	require.NoError(t, err)
	p.Put(tb, true)
}

func TestTabPoolClose(t *testing.T) {
	t.Parallel()

	fp := &fakePages{}
	p := newTabPool(2, fp.create, fp.destroy, nil)

	idle, err := p.Get(context.Background())
	require.NoError(t, err)
	busy, err := p.Get(context.Background())
	require.NoError(t, err)
	p.Put(idle, true)

	p.Close()
	p.Close()
	require.True(t, fp.isDestroyed(idle.page))
	require.False(t, fp.isDestroyed(busy.page))

	p.Put(busy, true)
	require.True(t, fp.isDestroyed(busy.page))

	_, err = p.Get(context.Background())
	require.ErrorIs(t, err, errPoolClosed)

	live, _ := p.Stats()
	require.Zero(t, live)
}

func TestTabResetsHeadersFromPreviousRender(t *testing.T) {
	t.Parallel()

	fp := &fakePages{}
	p := newTabPool(1, fp.create, fp.destroy, nil)

	var sent []map[string]string
	set := func(h map[string]string) error {
		sent = append(sent, h)
		return nil
	}

	a, err := p.Get(context.Background())
	require.NoError(t, err)
	require.NoError(t, a.applyHeaders(map[string]string{"Authorization": "Bearer s3cret"}, set))
	p.Put(a, true)

	b, err := p.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, a.page, b.page)
	require.NoError(t, b.applyHeaders(nil, set))
	require.NoError(t, b.applyHeaders(map[string]string{}, set))
	p.Put(b, true)

	require.Equal(t, []map[string]string{{"Authorization": "Bearer s3cret"}, {}}, sent)
}

func TestTabKeepsHeadersWhenSetFails(t *testing.T) {
	t.Parallel()

	tb := &tab[int]{}
	want := map[string]string{"Cookie": "sid=1"}
	require.Error(t, tb.applyHeaders(want, func(map[string]string) error {
		return errors.New("target closed")
	}))
	require.Nil(t, tb.headers)

	calls := 0
	require.NoError(t, tb.applyHeaders(want, func(map[string]string) error {
		calls++
		return nil
	}))
	require.Equal(t, 1, calls)
	want["Cookie"] = "sid=2"
	require.Equal(t, "sid=1", tb.headers["Cookie"])
}
