package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type identityRequest struct {
	LastName     string `json:"last_name" binding:"required,notblank,max=100"`
	TicketNumber string `json:"ticket_number" binding:"required,notblank,max=50"`
}

// SubmitApplication handles POST /api/student/applications.
func (h *Handler) SubmitApplication(c *gin.Context) {
	var req identityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}

	app, err := h.apps.Submit(c.Request.Context(), req.LastName, req.TicketNumber)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, app)
}

// ApplicationStatus handles POST /api/student/applications/status. The
// identity travels in the body so it stays out of access logs.
func (h *Handler) ApplicationStatus(c *gin.Context) {
	var req identityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}

	view, err := h.apps.Status(c.Request.Context(), req.LastName, req.TicketNumber)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
