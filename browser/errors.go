package browser

import (
	"context"
	"errors"
	"strings"

	"github.com/use-agent/pagewalk/engine"
)

// categorizeError maps a navigation or extraction failure to a RenderError
// so the engine and the API can tell timeouts from dead browsers.
func categorizeError(rawURL string, err error) *engine.RenderError {
	var re *engine.RenderError
	if errors.As(err, &re) {
		return re
	}
	kind := engine.RenderCrash
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = engine.RenderNavigationTimeout
	case strings.Contains(strings.ToLower(err.Error()), "timeout"):
		kind = engine.RenderNavigationTimeout
	}
	return &engine.RenderError{Kind: kind, URL: rawURL, Err: err}
}
