package api

import (
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"dormitory-housing-backend/config"
	"dormitory-housing-backend/internal/logging"
	"dormitory-housing-backend/internal/metrics"
	"dormitory-housing-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg *config.ServerConfig, m *metrics.Metrics, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestID(), logging.GinMiddleware(log), mw.Metrics(m))

	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(m.Handler()))

	// Students are anonymous, so their endpoints are rate limited per IP.
	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	// Staff listings are cached until the next successful change, whether it
	// came through the API or from the allocation scheduler.
	cacheStore := cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	caching := mw.Cache(cacheStore, cfg.CacheTTL, m)
	h.engine.OnChange(cacheStore.Flush)
	h.transfer.OnChange(cacheStore.Flush)

	api := r.Group("/api")
	api.Use(mw.Invalidate(cacheStore))

	student := api.Group("/student")
	student.Use(rateLimiter)
	{
		student.POST("/applications", h.SubmitApplication)
		student.POST("/applications/status", h.ApplicationStatus)
	}

	staff := api.Group("/staff")
	staff.Use(mw.StaffOnly(cfg.StaffAllowedIPs, log))
	{
		staff.GET("/dormitories", caching, h.ListDormitories)
		staff.POST("/dormitories", h.CreateDormitory)
		staff.DELETE("/dormitories/:id", h.DeleteDormitory)
		staff.GET("/dormitories/:id/details", caching, h.GetDormitoryDetails)
		staff.PUT("/dormitories/:id/structure", h.ReplaceStructure)

		staff.GET("/structure/export", caching, h.ExportStructure)
		staff.POST("/structure/import", h.ImportStructure)

		staff.GET("/applications", caching, h.ListApplications)
		staff.PUT("/applications/:id/status", h.SetApplicationStatus)
		staff.PUT("/applications/:id/allocation", h.AllocateApplication)
		staff.POST("/applications/process-auto", h.ProcessAutomatic)

		// Not cached: staff pick rooms from it right before allocating.
		staff.GET("/rooms/available", h.ListAvailableRooms)
	}

	return r
}
