package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pagewalk/api/handler"
	"github.com/use-agent/pagewalk/api/middleware"
	"github.com/use-agent/pagewalk/cache"
	"github.com/use-agent/pagewalk/config"
	"github.com/use-agent/pagewalk/models"
	"github.com/use-agent/pagewalk/scraper"
)

// Version is reported by the health endpoint.
var Version = "0.1.0"

// Deps are the long-lived services shared by the routes. The caller owns
// them and closes them once the server has stopped.
type Deps struct {
	Scraper *scraper.Scraper
	Cache   *cache.Cache
	Jobs    *handler.JobStore
	Limiter *middleware.Limiter
	Started time.Time
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health stays outside auth so monitoring probes always work.
func NewRouter(cfg *config.Config, d Deps) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	sc, cc, jobs := d.Scraper, d.Cache, d.Jobs

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	v1.GET("/health", handler.Health(sc, d.Started, Version))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	if d.Limiter != nil {
		protected.Use(d.Limiter.Handler())
	}

	protected.POST("/fetch", handler.Fetch(sc, cc))

	protected.POST("/batch", handler.PostBatch(sc, jobs))
	protected.GET("/batch/:id", handler.GetJob(jobs, models.JobBatch))

	protected.POST("/pages", handler.PostPages(sc, jobs))
	protected.GET("/pages/:id", handler.GetJob(jobs, models.JobPages))

	protected.POST("/table", handler.Table(sc))
	protected.POST("/form", handler.Form(sc))

	return r
}
