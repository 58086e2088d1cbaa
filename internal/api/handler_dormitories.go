package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dormitory-housing-backend/internal/apperr"
	"dormitory-housing-backend/internal/model"
)

type createDormitoryRequest struct {
	Name    string `json:"name" binding:"required,notblank,max=128"`
	Address string `json:"address" binding:"max=256"`
}

type replaceStructureRequest struct {
	Rooms []model.RoomSpec `json:"rooms"`
}

// ListDormitories handles GET /api/staff/dormitories.
func (h *Handler) ListDormitories(c *gin.Context) {
	dorms, err := h.structure.ListDormitories(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dorms)
}

// CreateDormitory handles POST /api/staff/dormitories.
func (h *Handler) CreateDormitory(c *gin.Context) {
	var req createDormitoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}

	dorm, err := h.structure.CreateDormitory(c.Request.Context(), req.Name, req.Address)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, dorm)
}

// DeleteDormitory handles DELETE /api/staff/dormitories/:id.
func (h *Handler) DeleteDormitory(c *gin.Context) {
	id, err := parseIDParam(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := h.structure.DeleteDormitory(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetDormitoryDetails handles GET /api/staff/dormitories/:id/details.
func (h *Handler) GetDormitoryDetails(c *gin.Context) {
	id, err := parseIDParam(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	details, err := h.structure.GetDetails(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

// ReplaceStructure handles PUT /api/staff/dormitories/:id/structure.
func (h *Handler) ReplaceStructure(c *gin.Context) {
	id, err := parseIDParam(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	var req replaceStructureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}
	// An explicit empty list removes every room; a missing one is a mistake.
	if req.Rooms == nil {
		h.fail(c, apperr.Validation("rooms is required"))
		return
	}

	view, err := h.structure.ReplaceStructure(c.Request.Context(), id, req.Rooms)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
