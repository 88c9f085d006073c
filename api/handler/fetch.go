package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pagewalk/cache"
	"github.com/use-agent/pagewalk/engine"
	"github.com/use-agent/pagewalk/extract"
	"github.com/use-agent/pagewalk/models"
	"github.com/use-agent/pagewalk/scraper"
)

// Fetch returns a handler for POST /api/v1/fetch.
//
//  1. Bind and validate the request, apply defaults.
//  2. Serve from cache when max_age_ms allows it (GET only).
//  3. Scraper.Get, escalating to the browser as the hint allows.
//  4. Convert the body to the requested format and run the selector.
func Fetch(sc *scraper.Scraper, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var req models.FetchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidInput(c, err)
			return
		}
		req.Defaults()

		hint, err := engine.ParseHint(req.Hint)
		if err != nil {
			invalidInput(c, err)
			return
		}
		format, err := extract.ParseFormat(req.Format)
		if err != nil {
			invalidInput(c, err)
			return
		}
		if req.Selector != "" {
			if err := extract.ValidateSelector(req.Selector); err != nil {
				invalidInput(c, err)
				return
			}
		}

		cacheable := cc != nil && req.MaxAgeMs > 0 &&
			(req.Method == "" || req.Method == http.MethodGet) && len(req.Headers) == 0
		var key string
		if cacheable {
			key = cache.Key(req.URL, string(hint), string(format), req.Selector)
			maxAge := time.Duration(req.MaxAgeMs) * time.Millisecond
			if cached, hit := cc.Get(key, maxAge); hit {
				cached.CacheStatus = "hit"
				cached.LatencyMs = time.Since(start).Milliseconds()
				c.JSON(http.StatusOK, cached)
				return
			}
		}

		opts := []engine.RequestOption{engine.WithHint(hint), engine.WithHeaders(req.Headers)}
		if req.Method != "" {
			opts = append(opts, engine.WithMethod(req.Method))
		}
		res, err := sc.Get(c.Request.Context(), req.URL, opts...)
		if err != nil {
			status, _ := detailFor(err)
			resp := failureResponse(req.URL, err)
			resp.LatencyMs = time.Since(start).Milliseconds()
			c.JSON(status, resp)
			return
		}

		resp := buildResponse(sc, res, format, req.Selector)
		resp.LatencyMs = time.Since(start).Milliseconds()
		if !resp.Success {
			c.JSON(http.StatusInternalServerError, resp)
			return
		}
		if cacheable {
			cc.Set(key, *resp)
			resp.CacheStatus = "miss"
		}
		c.JSON(http.StatusOK, resp)
	}
}

// buildResponse renders a fetched result. Conversion or selector failures
// produce an unsuccessful response rather than an error.
func buildResponse(sc *scraper.Scraper, res *engine.Result, format extract.Format, selector string) *models.FetchResponse {
	resp := &models.FetchResponse{
		Success:    true,
		URL:        res.URL,
		StatusCode: res.StatusCode,
		Strategy:   string(res.Strategy),
		Rendered:   res.Rendered,
		Title:      res.Title(),
		LatencyMs:  res.Latency.Milliseconds(),
	}
	content, err := extract.Convert(res.HTML(), res.URL, format)
	if err != nil {
		resp.Success = false
		_, resp.Error = detailFor(err)
		return resp
	}
	resp.Content = content
	if selector != "" {
		items, err := sc.Extract(res, selector)
		if err != nil {
			resp.Success = false
			_, resp.Error = detailFor(err)
			return resp
		}
		resp.Items = items
	}
	return resp
}

// failureResponse describes a fetch that produced no usable document. A
// blocked-unresolved error still reports the status that came back.
func failureResponse(url string, err error) *models.FetchResponse {
	_, d := detailFor(err)
	resp := &models.FetchResponse{Success: false, URL: url, Error: d}
	var fe *engine.FetchError
	if errors.As(err, &fe) && fe.Result != nil {
		resp.StatusCode = fe.Result.StatusCode
		resp.Strategy = string(fe.Result.Strategy)
		resp.Rendered = fe.Result.Rendered
	}
	return resp
}
