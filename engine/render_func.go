package engine

import "context"

// RenderFunc adapts a plain function to the Renderer interface. It lets the
// browser package, or a test, plug a render callback into the engine without
// an import cycle.
type RenderFunc func(ctx context.Context, req Request) (*Result, error)

func (f RenderFunc) FetchRendered(ctx context.Context, req Request) (*Result, error) {
	if f == nil {
		return nil, &RenderError{Kind: RenderLaunchFailure, URL: req.URL, Err: ErrNoRenderer}
	}
	return f(ctx, req)
}
