package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pagewalk/models"
	"github.com/use-agent/pagewalk/scraper"
)

// Health returns a handler for GET /api/v1/health.
//
// The status degrades when more than 80% of the browser tabs are busy.
func Health(sc *scraper.Scraper, startTime time.Time, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := models.HealthResponse{
			Status:  "healthy",
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: version,
		}
		if stats, ok := sc.BrowserStats(); ok {
			resp.Browser = &models.PoolStats{
				Backend:  stats.Backend,
				Started:  stats.Started,
				PoolSize: stats.PoolSize,
				Tabs:     stats.Tabs,
				IdleTabs: stats.IdleTabs,
				Active:   stats.Active,
				Renders:  stats.Renders,
			}
			if stats.PoolSize > 0 && stats.Active > int(float64(stats.PoolSize)*0.8) {
				resp.Status = "degraded"
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}
