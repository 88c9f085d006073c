package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/use-agent/pagewalk/models"
)

type fakeNow struct{ t time.Time }

func (f *fakeNow) now() time.Time            { return f.t }
func (f *fakeNow) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache(t *testing.T, max int, ttl time.Duration) (*Cache, *fakeNow) {
	t.Helper()
	c := New(max, ttl)
	t.Cleanup(c.Close)
	clock := &fakeNow{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c.now = clock.now
	return c, clock
}

func TestKeyDistinguishesFields(t *testing.T) {
	t.Parallel()

	a := Key("https://s.test/", "auto", "markdown", "")
	require.Equal(t, a, Key("https://s.test/", "auto", "markdown", ""))
	require.NotEqual(t, a, Key("https://s.test/", "auto", "text", ""))
	require.NotEqual(t, Key("ab", "c", "", ""), Key("a", "bc", "", ""))
}

func TestGetHonoursMaxAgeAndTTL(t *testing.T) {
	t.Parallel()

	c, clock := newTestCache(t, 10, time.Minute)
	c.Set("k", models.FetchResponse{URL: "https://s.test/", Success: true})

	_, ok := c.Get("k", 0)
	require.False(t, ok)

	got, ok := c.Get("k", time.Hour)
	require.True(t, ok)
	require.Equal(t, "https://s.test/", got.URL)

	clock.advance(30 * time.Second)
	_, ok = c.Get("k", 10*time.Second)
	require.False(t, ok)
	_, ok = c.Get("k", time.Hour)
	require.True(t, ok)

	clock.advance(time.Minute)
	_, ok = c.Get("k", time.Hour)
	require.False(t, ok)
}

func TestGetReturnsCopy(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, 10, time.Minute)
	c.Set("k", models.FetchResponse{URL: "u"})
	got, _ := c.Get("k", time.Minute)
	got.CacheStatus = "hit"
	again, _ := c.Get("k", time.Minute)
	require.Empty(t, again.CacheStatus)
}

func TestSetEvictsOldest(t *testing.T) {
	t.Parallel()

	c, clock := newTestCache(t, 2, time.Hour)
	c.Set("a", models.FetchResponse{URL: "a"})
	clock.advance(time.Second)
	c.Set("b", models.FetchResponse{URL: "b"})
	clock.advance(time.Second)
	c.Set("c", models.FetchResponse{URL: "c"})

	require.Equal(t, 2, c.Len())
	_, ok := c.Get("a", time.Hour)
	require.False(t, ok)
	_, ok = c.Get("c", time.Hour)
	require.True(t, ok)
}

func TestSweepDropsExpired(t *testing.T) {
	t.Parallel()

	c, clock := newTestCache(t, 10, time.Minute)
	c.Set("old", models.FetchResponse{})
	clock.advance(2 * time.Minute)
	c.Set("new", models.FetchResponse{})
	c.sweep()
	require.Equal(t, 1, c.Len())
}
