package handler

import (
	"hostelsystem/internal/repository"
	"hostelsystem/internal/service"
	"hostelsystem/pkg/response"

	"github.com/gin-gonic/gin"
)

// RegisterStudent POST /api/v1/students
func (h *Handler) RegisterStudent(c *gin.Context) {
	var req service.RegisterStudentRequest
	if !bindJSON(c, &req) {
		return
	}

	student, err := h.registryService.Register(c.Request.Context(), &req)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, student)
}

// GetStudent GET /api/v1/students/:id，本人或所在宿舍业主可查看
func (h *Handler) GetStudent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	student, err := h.registryService.Get(c.Request.Context(), id)
	if err != nil {
		renderError(c, err)
		return
	}

	actor := actorFrom(c)
	if !actor.IsStudent(id) && !(actor.IsOwner() && student.OwnerID != nil && *student.OwnerID == actor.UserID) {
		renderError(c, repository.ErrForbidden)
		return
	}
	response.Success(c, student)
}

// VacateStudent POST /api/v1/students/:id/vacate
func (h *Handler) VacateStudent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	student, err := h.registryService.Vacate(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, student)
}
