package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pagewalk/engine"
	"github.com/use-agent/pagewalk/extract"
	"github.com/use-agent/pagewalk/models"
	"github.com/use-agent/pagewalk/scraper"
)

// Table returns a handler for POST /api/v1/table. The largest table that
// matches the selector is flattened into a grid, spans expanded.
func Table(sc *scraper.Scraper) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.TableRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidInput(c, err)
			return
		}
		if req.Selector == "" {
			req.Selector = extract.DefaultTableSelector
		}
		if err := extract.ValidateSelector(req.Selector); err != nil {
			invalidInput(c, err)
			return
		}
		hint, err := engine.ParseHint(req.Hint)
		if err != nil {
			invalidInput(c, err)
			return
		}

		res, err := sc.Get(c.Request.Context(), req.URL, engine.WithHint(hint))
		if err != nil {
			status, d := detailFor(err)
			c.JSON(status, models.TableResponse{Success: false, URL: req.URL, Rows: [][]string{}, Error: d})
			return
		}
		rows, err := extract.Table(res.Body, req.Selector)
		if err == nil && rows == nil {
			err = errNoTable
		}
		if err != nil {
			status, d := detailFor(err)
			if errors.Is(err, errNoTable) {
				status, d.Code = http.StatusNotFound, models.ErrCodeNotFound
			}
			c.JSON(status, models.TableResponse{
				Success:  false,
				URL:      res.URL,
				Strategy: string(res.Strategy),
				Rows:     [][]string{},
				Error:    d,
			})
			return
		}
		c.JSON(http.StatusOK, models.TableResponse{
			Success:  true,
			URL:      res.URL,
			Strategy: string(res.Strategy),
			Rows:     rows,
		})
	}
}

var errNoTable = errors.New("no table matches the selector")
