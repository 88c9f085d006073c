package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pagewalk/engine"
	"github.com/use-agent/pagewalk/extract"
	"github.com/use-agent/pagewalk/models"
	"github.com/use-agent/pagewalk/paginate"
	"github.com/use-agent/pagewalk/scraper"
)

// detailFor maps a scraper error to an HTTP status and a response detail.
func detailFor(err error) (int, *models.ErrorDetail) {
	var (
		fetchErr  *engine.FetchError
		renderErr *engine.RenderError
		netErr    *engine.NetworkError
		pageErr   *paginate.PaginationError
	)
	switch {
	case errors.Is(err, engine.ErrInvalidURL),
		errors.Is(err, engine.ErrInvalidWorkers),
		errors.Is(err, extract.ErrInvalidSelector),
		errors.Is(err, paginate.ErrInvalidPageCount),
		errors.Is(err, paginate.ErrNoPlaceholder),
		errors.Is(err, scraper.ErrMissingForm):
		return http.StatusBadRequest, detail(models.ErrCodeInvalidInput, err, "")

	case errors.As(err, &pageErr):
		return http.StatusUnprocessableEntity, detail(models.ErrCodePaginationStopped, err, string(pageErr.Kind))

	case errors.As(err, &fetchErr):
		code := models.ErrCodeFetchExhausted
		switch fetchErr.Kind {
		case engine.FetchBlockedUnresolved:
			code = models.ErrCodeBlocked
		case engine.FetchRenderFailed:
			code = models.ErrCodeRenderFailed
		}
		return http.StatusBadGateway, detail(code, err, string(fetchErr.Kind))

	case errors.As(err, &renderErr):
		return http.StatusBadGateway, detail(models.ErrCodeRenderFailed, err, string(renderErr.Kind))

	case errors.As(err, &netErr):
		return http.StatusBadGateway, detail(models.ErrCodeNetwork, err, string(netErr.Kind))

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, detail(models.ErrCodeNetwork, err, string(engine.NetTimeout))
	}
	return http.StatusInternalServerError, detail(models.ErrCodeInternal, err, "")
}

func detail(code string, err error, kind string) *models.ErrorDetail {
	return &models.ErrorDetail{Code: code, Message: err.Error(), Kind: kind}
}

func invalidInput(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Success: false,
		Error:   detail(models.ErrCodeInvalidInput, err, ""),
	})
}

func respondError(c *gin.Context, err error) {
	status, d := detailFor(err)
	c.JSON(status, models.ErrorResponse{Success: false, Error: d})
}
