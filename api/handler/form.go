package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pagewalk/engine"
	"github.com/use-agent/pagewalk/extract"
	"github.com/use-agent/pagewalk/models"
	"github.com/use-agent/pagewalk/scraper"
)

// Form returns a handler for POST /api/v1/form. Fields are posted in
// request order and the response never escalates to the browser.
func Form(sc *scraper.Scraper) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var req models.FormRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidInput(c, err)
			return
		}
		format, err := extract.ParseFormat(req.Format)
		if err != nil {
			invalidInput(c, err)
			return
		}

		fields := make(engine.Form, len(req.Fields))
		for i, f := range req.Fields {
			fields[i] = engine.Field{Name: f.Name, Value: f.Value}
		}
		res, err := sc.SubmitForm(c.Request.Context(), req.URL, fields)
		if err != nil {
			status, _ := detailFor(err)
			resp := failureResponse(req.URL, err)
			resp.LatencyMs = time.Since(start).Milliseconds()
			c.JSON(status, resp)
			return
		}

		resp := buildResponse(sc, res, format, "")
		resp.LatencyMs = time.Since(start).Milliseconds()
		status := http.StatusOK
		if !resp.Success {
			status = http.StatusInternalServerError
		}
		c.JSON(status, resp)
	}
}
