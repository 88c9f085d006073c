package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/use-agent/pagewalk/engine"
	"github.com/use-agent/pagewalk/export"
	"github.com/use-agent/pagewalk/extract"
)

// GetJSON fetches rawURL over HTTP and decodes the body into v. A non-2xx
// status fails with a FetchError whose cause is an *engine.StatusError.
func (s *Scraper) GetJSON(ctx context.Context, rawURL string, v any) error {
	body, err := s.stream(ctx, rawURL, map[string]string{"Accept": "application/json"})
	if err != nil {
		return err
	}
	defer body.Close()
	if err := json.NewDecoder(io.LimitReader(body, s.cfg.Fetch.MaxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("scraper: decode json %s: %w", rawURL, err)
	}
	return nil
}

// Download streams rawURL into dest, creating directories as needed, and
// returns the number of bytes written.
func (s *Scraper) Download(ctx context.Context, rawURL, dest string) (int64, error) {
	body, err := s.stream(ctx, rawURL, nil)
	if err != nil {
		return 0, err
	}
	defer body.Close()
	n, err := export.SaveStream(dest, body)
	if err != nil {
		return n, fmt.Errorf("scraper: download %s: %w", rawURL, err)
	}
	s.logger.Debug("downloaded", "url", rawURL, "path", dest, "bytes", n)
	return n, nil
}

// DownloadImages saves every image referenced by res into folder as
// img_<i>.<ext>, i counting from 0. A failed image does not stop the
// others; the saved paths and the joined failures are returned.
func (s *Scraper) DownloadImages(ctx context.Context, res *engine.Result, folder string) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "scraper.DownloadImages")
	defer span.End()

	images, err := extract.Images(res.Body, res.URL)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("url", res.URL), attribute.Int("images", len(images)))

	var (
		saved []string
		errs  []error
	)
	for i, src := range images {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		dest := filepath.Join(folder, fmt.Sprintf("img_%d.%s", i, imageExt(src)))
		if _, err := s.Download(ctx, src, dest); err != nil {
			s.logger.Warn("image download failed", "url", src, "error", err)
			errs = append(errs, err)
			continue
		}
		saved = append(saved, dest)
	}
	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "some images failed")
		return saved, err
	}
	return saved, nil
}

// stream admits the request and opens the body.
func (s *Scraper) stream(ctx context.Context, rawURL string, headers map[string]string) (io.ReadCloser, error) {
	if _, err := engine.NewRequest(rawURL); err != nil {
		return nil, err
	}
	if err := s.limiter.Admit(ctx); err != nil {
		return nil, fmt.Errorf("scraper: %s: %w", rawURL, err)
	}
	body, _, err := s.transport.Stream(ctx, rawURL, headers)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("scraper: %s: %w", rawURL, ctxErr)
		}
		return nil, &engine.FetchError{Kind: engine.FetchExhausted, URL: rawURL, Attempts: 1, Err: err}
	}
	return body, nil
}

// imageExt picks a file extension from the URL path. Anything missing or
// implausible becomes jpg.
func imageExt(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "jpg"
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
	if ext == "jpeg" {
		return "jpg"
	}
	if ext == "" || len(ext) > 4 {
		return "jpg"
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return "jpg"
		}
	}
	return ext
}
