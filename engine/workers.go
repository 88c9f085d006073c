package engine

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Outcome is one slot of a FetchAll batch: exactly one of Result and Err
// is set.
type Outcome struct {
	Result *Result
	Err    error
}

// OK reports whether the slot holds a result.
func (o Outcome) OK() bool { return o.Err == nil }

// FetchAll fetches every request with at most workers fetches in flight and
// returns one outcome per request, in input order. A failed request never
// cancels the others.
func (e *Engine) FetchAll(ctx context.Context, reqs []Request, workers int) ([]Outcome, error) {
	if workers < 1 {
		return nil, ErrInvalidWorkers
	}
	out := make([]Outcome, len(reqs))
	if len(reqs) == 0 {
		return out, nil
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, req := range reqs {
		g.Go(func() error {
			res, err := e.Fetch(ctx, req)
			if err != nil {
				e.logger.Warn("engine: batch fetch failed", "url", req.URL, "index", i, "error", err)
			}
			out[i] = Outcome{Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}
