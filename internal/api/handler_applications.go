package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dormitory-housing-backend/internal/apperr"
	"dormitory-housing-backend/internal/model"
	"dormitory-housing-backend/internal/registry"
)

type listApplicationsQuery struct {
	Offset int    `form:"offset" binding:"min=0"`
	Limit  int    `form:"limit" binding:"min=0,max=500"`
	Status string `form:"status"`
}

type listApplicationsResponse struct {
	Items  []registry.View `json:"items"`
	Total  int64           `json:"total"`
	Offset int             `json:"offset"`
	Limit  int             `json:"limit"`
}

type setStatusRequest struct {
	Status string `json:"status" binding:"required,notblank"`
	Reason string `json:"reason" binding:"max=512"`
}

type allocateRequest struct {
	RoomID int64 `json:"room_id" binding:"required,gt=0"`
}

// ListApplications handles GET /api/staff/applications.
func (h *Handler) ListApplications(c *gin.Context) {
	var q listApplicationsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.fail(c, bindError(err))
		return
	}

	opts := registry.ListOptions{Offset: q.Offset, Limit: q.Limit}
	if q.Status != "" {
		status, err := model.ParseApplicationStatus(q.Status)
		if err != nil {
			h.fail(c, apperr.Validation("%v", err))
			return
		}
		opts.Status = &status
	}
	if opts.Limit == 0 {
		opts.Limit = registry.DefaultListLimit
	}

	views, total, err := h.apps.ListViews(c.Request.Context(), opts)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, listApplicationsResponse{Items: views, Total: total, Offset: opts.Offset, Limit: opts.Limit})
}

// SetApplicationStatus handles PUT /api/staff/applications/:id/status.
func (h *Handler) SetApplicationStatus(c *gin.Context) {
	id, err := parseIDParam(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}
	status, err := model.ParseApplicationStatus(req.Status)
	if err != nil {
		h.fail(c, apperr.Validation("%v", err))
		return
	}

	app, err := h.apps.SetStatus(c.Request.Context(), id, status, req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

// AllocateApplication handles PUT /api/staff/applications/:id/allocation.
func (h *Handler) AllocateApplication(c *gin.Context) {
	id, err := parseIDParam(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	var req allocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}

	app, err := h.engine.Allocate(c.Request.Context(), id, req.RoomID)
	if err != nil {
		h.fail(c, err)
		return
	}
	views, err := registry.Describe(c.Request.Context(), h.db, []model.Application{*app})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, views[0])
}

// ListAvailableRooms handles GET /api/staff/rooms/available.
func (h *Handler) ListAvailableRooms(c *gin.Context) {
	dorms, err := h.engine.ListAvailableRooms(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dorms)
}

// ProcessAutomatic handles POST /api/staff/applications/process-auto.
func (h *Handler) ProcessAutomatic(c *gin.Context) {
	summary, err := h.engine.ProcessAutomatic(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
