package handler

import (
	"context"

	"hostelsystem/internal/model"
	"hostelsystem/internal/repository"
	"hostelsystem/internal/service"
	"hostelsystem/pkg/response"

	"github.com/gin-gonic/gin"
)

// CreateDue POST /api/v1/dues
func (h *Handler) CreateDue(c *gin.Context) {
	var req service.CreateDueRequest
	if !bindJSON(c, &req) {
		return
	}

	due, err := h.dueService.CreateDue(c.Request.Context(), actorFrom(c).UserID, &req)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, due)
}

// WaiveDue POST /api/v1/dues/:id/waive
func (h *Handler) WaiveDue(c *gin.Context) {
	h.closeDue(c, h.dueService.Waive)
}

// CancelDue POST /api/v1/dues/:id/cancel
func (h *Handler) CancelDue(c *gin.Context) {
	h.closeDue(c, h.dueService.Cancel)
}

func (h *Handler) closeDue(c *gin.Context, fn func(ctx context.Context, ownerID, dueID int64) (*model.Due, error)) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	due, err := fn(c.Request.Context(), actorFrom(c).UserID, id)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, due)
}

// AddFine POST /api/v1/dues/:id/fine
func (h *Handler) AddFine(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.AddFineRequest
	if !bindJSON(c, &req) {
		return
	}

	due, err := h.dueService.AddFine(c.Request.Context(), actorFrom(c).UserID, id, &req)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, due)
}

// ListDues GET /api/v1/dues?student_id=
func (h *Handler) ListDues(c *gin.Context) {
	studentID, ok := h.visibleStudent(c)
	if !ok {
		return
	}

	dues, err := h.dueService.ListByStudent(c.Request.Context(), studentID)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, gin.H{"list": dues, "total": len(dues)})
}

// visibleStudent 解析 student_id：学生只能查看自己，业主只能查看在住自己宿舍的学生
func (h *Handler) visibleStudent(c *gin.Context) (int64, bool) {
	studentID, ok := queryID(c, "student_id")
	if !ok {
		return 0, false
	}

	actor := actorFrom(c)
	if actor.IsStudent(studentID) {
		return studentID, true
	}
	if actor.IsOwner() {
		ownerID, err := h.dueService.StudentOwner(c.Request.Context(), studentID)
		if err != nil {
			renderError(c, err)
			return 0, false
		}
		if ownerID == actor.UserID {
			return studentID, true
		}
	}
	renderError(c, repository.ErrForbidden)
	return 0, false
}
