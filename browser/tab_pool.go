package browser

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"math"
	"sync"
	"time"
)

// Tab retirement thresholds.
const (
	maxErrScore = 3.0
	maxTabUses  = 50
	maxTabAge   = 50 * time.Minute
)

var errPoolClosed = errors.New("browser: tab pool closed")

// tab wraps a pooled browser tab with health tracking.
//
// Scoring: a success lowers errScore by 0.5 (min 0), a failure raises it
// by 1. A tab is retired once errScore reaches 3, after 50 uses, or when
// it is older than 50 minutes.
type tab[T any] struct {
	page     T
	errScore float64
	uses     int
	created  time.Time

	// headers are the extra HTTP headers currently installed on the tab.
	headers map[string]string
}

// applyHeaders makes want the tab's extra HTTP headers, clearing whatever
// an earlier render installed. set is called only when they differ.
func (t *tab[T]) applyHeaders(want map[string]string, set func(map[string]string) error) error {
	if maps.Equal(t.headers, want) {
		return nil
	}
	if want == nil {
		want = map[string]string{}
	}
	if err := set(want); err != nil {
		return err
	}
	t.headers = maps.Clone(want)
	return nil
}

func (t *tab[T]) record(ok bool) {
	t.uses++
	if ok {
		t.errScore = math.Max(0, t.errScore-0.5)
		return
	}
	t.errScore += 1.0
}

func (t *tab[T]) shouldRetire(now time.Time) bool {
	return t.errScore >= maxErrScore ||
		t.uses >= maxTabUses ||
		now.Sub(t.created) >= maxTabAge
}

// tabPool is a fixed-size pool of tabs. At most size tabs are checked out
// at once; Get blocks until one is free or ctx ends. Tabs are created on
// demand and destroyed when retired or when the pool closes.
type tabPool[T any] struct {
	create  func() (T, error)
	destroy func(T)
	now     func() time.Time
	logger  *slog.Logger

	slots chan struct{}
	idle  chan *tab[T]

	mu     sync.Mutex
	live   int
	closed bool
}

func newTabPool[T any](size int, create func() (T, error), destroy func(T), logger *slog.Logger) *tabPool[T] {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &tabPool[T]{
		create:  create,
		destroy: destroy,
		now:     time.Now,
		logger:  logger,
		slots:   make(chan struct{}, size),
		idle:    make(chan *tab[T], size),
	}
}

// Get checks out a tab, reusing an idle one when possible.
func (p *tabPool[T]) Get(ctx context.Context) (*tab[T], error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		<-p.slots
		return nil, errPoolClosed
	}

	select {
	case t := <-p.idle:
		return t, nil
	default:
	}

	page, err := p.create()
	if err != nil {
		<-p.slots
		return nil, err
	}
	p.mu.Lock()
	p.live++
	p.mu.Unlock()
	return &tab[T]{page: page, created: p.now()}, nil
}

// Put returns a tab after use. Unhealthy tabs, and every tab once the pool
// is closed, are destroyed instead of kept.
func (p *tabPool[T]) Put(t *tab[T], ok bool) {
	defer func() { <-p.slots }()
	t.record(ok)

	p.mu.Lock()
	if p.closed || t.shouldRetire(p.now()) {
		if !p.closed {
			p.logger.Debug("tab_pool: retiring tab", "errScore", t.errScore, "uses", t.uses)
		}
		p.live--
		p.mu.Unlock()
		p.destroy(t.page)
		return
	}
	// Never blocks: idle has room for every live tab.
	p.idle <- t
	p.mu.Unlock()
}

// Stats returns the number of live tabs and how many are idle.
func (p *tabPool[T]) Stats() (live, idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live, len(p.idle)
}

// Close destroys idle tabs. Tabs still checked out are destroyed when
// they are returned.
func (p *tabPool[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	var drained []*tab[T]
drain:
	for {
		select {
		case t := <-p.idle:
			drained = append(drained, t)
			p.live--
		default:
			break drain
		}
	}
	p.mu.Unlock()

	for _, t := range drained {
		p.destroy(t.page)
	}
}
