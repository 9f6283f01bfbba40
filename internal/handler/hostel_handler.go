package handler

import (
	"hostelsystem/internal/service"
	"hostelsystem/pkg/response"

	"github.com/gin-gonic/gin"
)

// CreateHostel POST /api/v1/hostels
func (h *Handler) CreateHostel(c *gin.Context) {
	var req service.CreateHostelRequest
	if !bindJSON(c, &req) {
		return
	}

	hostel, err := h.capacityService.CreateHostel(c.Request.Context(), actorFrom(c).UserID, &req)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, hostel)
}

// ResizeHostel POST /api/v1/hostels/:id/resize
func (h *Handler) ResizeHostel(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.ResizeRequest
	if !bindJSON(c, &req) {
		return
	}

	hostel, err := h.capacityService.Resize(c.Request.Context(), id, actorFrom(c).UserID, &req)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, hostel)
}

// GetCapacity GET /api/v1/hostels/:id/capacity
func (h *Handler) GetCapacity(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	snapshot, err := h.capacityService.Snapshot(c.Request.Context(), id)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, snapshot)
}
