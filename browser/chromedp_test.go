package browser

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/pagewalk/engine"
)

// A tab whose context was never attached to a browser fails every action,
// which exercises the render path without launching Chromium.
func TestChromedpRenderDetachedTab(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Backend = BackendChromedp
	b := newChromedpBackend(cfg)

	var created, destroyed atomic.Int32
	b.pool = newTabPool(1, func() (*cdpTab, error) {
		created.Add(1)
		ctx, cancel := context.WithCancel(context.Background())
		return &cdpTab{ctx: ctx, cancel: cancel}, nil
	}, func(t *cdpTab) {
		destroyed.Add(1)
		t.cancel()
	}, cfg.Logger)

	_, err := b.render(context.Background(), mustReq(t, "https://s.test/"))
	var re *engine.RenderError
	require.ErrorAs(t, err, &re)
	require.Equal(t, engine.RenderCrash, re.Kind)
	require.ErrorIs(t, err, chromedp.ErrInvalidContext)

	req, err := engine.NewRequest("https://s.test/", engine.WithHeaders(map[string]string{"X-Token": "t"}))
	require.NoError(t, err)
	_, err = b.render(context.Background(), req)
	require.ErrorIs(t, err, chromedp.ErrInvalidContext)

	live, idle := b.stats()
	require.Equal(t, 1, live)
	require.Equal(t, 1, idle)
	require.Equal(t, int32(1), created.Load())

	require.NoError(t, b.close())
	require.Equal(t, int32(1), destroyed.Load())
}
