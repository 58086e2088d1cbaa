package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"dormitory-housing-backend/internal/allocation"
	"dormitory-housing-backend/internal/apperr"
	"dormitory-housing-backend/internal/mw"
	"dormitory-housing-backend/internal/registry"
	"dormitory-housing-backend/internal/structure"
	"dormitory-housing-backend/internal/transfer"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	db        *gorm.DB
	structure *structure.Service
	apps      *registry.Service
	engine    *allocation.Engine
	transfer  *transfer.Service
	log       *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(db *gorm.DB, structureSvc *structure.Service, apps *registry.Service, engine *allocation.Engine, transferSvc *transfer.Service, log *zap.Logger) *Handler {
	registerValidators()
	return &Handler{
		db:        db,
		structure: structureSvc,
		apps:      apps,
		engine:    engine,
		transfer:  transferSvc,
		log:       log.Named("api"),
	}
}

// fail renders err as {"error": kind, "message": text}. Internal errors are
// logged and hidden from the client.
func (h *Handler) fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.String("request_id", mw.RequestIDValue(c)),
			zap.Error(err))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{
		"error":   apperr.Code(err),
		"message": apperr.Message(err),
	})
}

// Health reports whether the database answers.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
