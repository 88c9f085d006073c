package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pagewalk/engine"
	"github.com/use-agent/pagewalk/extract"
	"github.com/use-agent/pagewalk/models"
	"github.com/use-agent/pagewalk/scraper"
	"github.com/use-agent/pagewalk/webhook"
)

// PostBatch returns a handler for POST /api/v1/batch. It validates every
// URL up front, registers a job and fetches in the background with the
// requested worker count.
func PostBatch(sc *scraper.Scraper, jobs *JobStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BatchRequest
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
		reqs := make([]engine.Request, len(req.URLs))
		for i, u := range req.URLs {
			if reqs[i], err = engine.NewRequest(u, engine.WithHint(hint)); err != nil {
				invalidInput(c, err)
				return
			}
		}

		job := jobs.Create(models.JobBatch, len(reqs))
		ctx := context.WithoutCancel(c.Request.Context())
		go runBatch(ctx, sc, jobs, job.ID, reqs, format, req)

		c.JSON(http.StatusAccepted, models.JobResponse{
			ID:     job.ID,
			Kind:   job.Kind,
			Status: job.Status,
			Total:  job.Total,
		})
	}
}

func runBatch(ctx context.Context, sc *scraper.Scraper, jobs *JobStore, id string, reqs []engine.Request, format extract.Format, req models.BatchRequest) {
	outcomes, err := sc.FetchAll(ctx, reqs, req.Workers)
	if err != nil {
		_, d := detailFor(err)
		jobs.Update(id, func(j *models.Job) {
			j.Status = models.StatusFailed
			j.Error = d
		})
		slog.Warn("batch: job failed", "id", id, "error", err)
		notify(jobs, id, models.JobBatch, "batch.completed", req.WebhookURL, req.WebhookSecret)
		return
	}

	results := make([]*models.FetchResponse, len(outcomes))
	failed := 0
	for i, o := range outcomes {
		if o.OK() {
			results[i] = buildResponse(sc, o.Result, format, "")
		} else {
			results[i] = failureResponse(reqs[i].URL, o.Err)
		}
		if !results[i].Success {
			failed++
		}
	}

	status := finalStatus(failed, len(results))
	jobs.Update(id, func(j *models.Job) {
		j.Results = results
		j.Completed = len(results)
		j.Status = status
	})
	slog.Info("batch: job finished",
		"id", id,
		"status", status,
		"failed", failed,
		"total", len(results),
	)
	notify(jobs, id, models.JobBatch, "batch.completed", req.WebhookURL, req.WebhookSecret)
}

// notify delivers the job snapshot to url, if one was given.
func notify(jobs *JobStore, id, kind, event, url, secret string) {
	if url == "" {
		return
	}
	job, ok := jobs.Get(id, kind)
	if !ok {
		return
	}
	webhook.DeliverAsync(url, secret, &webhook.Event{
		Type:      event,
		JobID:     id,
		Timestamp: time.Now().Unix(),
		Data:      job,
	})
}
