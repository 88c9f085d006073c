package handler

import (
	"context"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pagewalk/engine"
	"github.com/use-agent/pagewalk/extract"
	"github.com/use-agent/pagewalk/models"
	"github.com/use-agent/pagewalk/paginate"
	"github.com/use-agent/pagewalk/scraper"
)

// PostPages returns a handler for POST /api/v1/pages. Pattern mode walks
// url over pages 1..pages; next mode follows next links from url.
func PostPages(sc *scraper.Scraper, jobs *JobStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.PagesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidInput(c, err)
			return
		}
		if err := extract.ValidateSelector(req.Selector); err != nil {
			invalidInput(c, err)
			return
		}

		probe := req.URL
		total := 0
		if req.Mode == models.ModePattern {
			if req.Pages < 1 {
				invalidInput(c, paginate.ErrInvalidPageCount)
				return
			}
			if !strings.Contains(req.URL, paginate.Placeholder) {
				invalidInput(c, paginate.ErrNoPlaceholder)
				return
			}
			probe = strings.ReplaceAll(req.URL, paginate.Placeholder, "1")
			total = req.Pages
		}
		if _, err := engine.NewRequest(probe); err != nil {
			invalidInput(c, err)
			return
		}

		job := jobs.Create(models.JobPages, total)
		ctx := context.WithoutCancel(c.Request.Context())
		go runPages(ctx, sc, jobs, job.ID, req)

		c.JSON(http.StatusAccepted, models.JobResponse{
			ID:     job.ID,
			Kind:   job.Kind,
			Status: job.Status,
			Total:  job.Total,
		})
	}
}

func runPages(ctx context.Context, sc *scraper.Scraper, jobs *JobStore, id string, req models.PagesRequest) {
	var seq iter.Seq2[*paginate.Page, error]
	if req.Mode == models.ModePattern {
		seq = sc.ScrapePages(ctx, req.URL, req.Pages, req.Selector)
	} else {
		seq = sc.ScrapeAutoNext(ctx, req.URL, req.Selector, req.MaxPages)
	}

	pages := 0
	var stopErr error
	for page, err := range seq {
		if err != nil {
			stopErr = err
			break
		}
		pages++
		pr := models.PageResult{Index: page.Index, URL: page.URL, Items: page.Items}
		if page.Result != nil {
			pr.StatusCode = page.Result.StatusCode
			pr.Strategy = string(page.Result.Strategy)
		}
		jobs.Update(id, func(j *models.Job) {
			j.Pages = append(j.Pages, pr)
			j.Completed = len(j.Pages)
		})
	}

	status := models.StatusCompleted
	switch {
	case stopErr != nil && pages == 0:
		status = models.StatusFailed
	case stopErr != nil:
		status = models.StatusPartial
	}
	jobs.Update(id, func(j *models.Job) {
		j.Status = status
		if stopErr != nil {
			_, j.Error = detailFor(stopErr)
		}
	})
	slog.Info("pages: job finished",
		"id", id,
		"mode", req.Mode,
		"status", status,
		"pages", pages,
		"error", stopErr,
	)
	notify(jobs, id, models.JobPages, "pages.completed", req.WebhookURL, req.WebhookSecret)
}
