package handler

import (
	"hostelsystem/internal/repository"
	"hostelsystem/internal/service"
	"hostelsystem/pkg/response"

	"github.com/gin-gonic/gin"
)

// CreateBooking POST /api/v1/bookings，学生只能为自己提交
func (h *Handler) CreateBooking(c *gin.Context) {
	var req service.CreateBookingRequest
	if !bindJSON(c, &req) {
		return
	}
	if !actorFrom(c).IsStudent(req.StudentID) {
		renderError(c, repository.ErrForbidden)
		return
	}

	booking, err := h.bookingService.Create(c.Request.Context(), &req)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, gin.H{
		"request_id": booking.ID,
		"status":     booking.Status,
	})
}

// GetBooking GET /api/v1/bookings/:id
func (h *Handler) GetBooking(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	booking, err := h.bookingService.Get(c.Request.Context(), id)
	if err != nil {
		renderError(c, err)
		return
	}

	actor := actorFrom(c)
	if !actor.IsStudent(booking.StudentID) && !(actor.IsOwner() && actor.UserID == booking.OwnerID) {
		renderError(c, repository.ErrForbidden)
		return
	}
	response.Success(c, booking)
}

// ListBookings GET /api/v1/bookings?hostel_id=&status=
// 学生调用时返回本人的全部申请
func (h *Handler) ListBookings(c *gin.Context) {
	ctx := c.Request.Context()
	actor := actorFrom(c)

	if !actor.IsOwner() {
		list, err := h.bookingService.ListByStudent(ctx, actor.UserID)
		if err != nil {
			renderError(c, err)
			return
		}
		response.Success(c, gin.H{"list": list, "total": len(list)})
		return
	}

	hostelID, ok := queryID(c, "hostel_id")
	if !ok {
		return
	}
	ownerID, err := h.bookingService.HostelOwner(ctx, hostelID)
	if err != nil {
		renderError(c, err)
		return
	}
	if ownerID != actor.UserID {
		renderError(c, repository.ErrForbidden)
		return
	}

	page, pageSize := pagination(c)
	list, total, err := h.bookingService.ListByHostel(ctx, hostelID, c.Query("status"), page, pageSize)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      list,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ApproveBooking POST /api/v1/bookings/:id/approve
func (h *Handler) ApproveBooking(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	booking, err := h.bookingService.Approve(c.Request.Context(), id, actorFrom(c).UserID)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, booking)
}

// RejectBooking POST /api/v1/bookings/:id/reject，reason 可选
func (h *Handler) RejectBooking(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.RejectBookingRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	booking, err := h.bookingService.Reject(c.Request.Context(), id, actorFrom(c).UserID, req.Reason)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, booking)
}

// CancelBooking POST /api/v1/bookings/:id/cancel
func (h *Handler) CancelBooking(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	booking, err := h.bookingService.Cancel(c.Request.Context(), id, actorFrom(c).UserID)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, booking)
}
