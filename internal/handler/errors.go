package handler

import (
	"errors"
	"log/slog"

	"hostelsystem/internal/repository"
	"hostelsystem/pkg/response"

	"github.com/gin-gonic/gin"
)

// renderError 把领域错误映射为业务码，未知错误不向客户端暴露细节
func renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		response.Error(c, response.CodeNotFound, err.Error())
	case errors.Is(err, repository.ErrForbidden):
		response.Error(c, response.CodeForbidden, err.Error())
	case errors.Is(err, repository.ErrInvalidArgument), errors.Is(err, repository.ErrEmailTaken):
		response.ParamError(c, err.Error())
	case errors.Is(err, repository.ErrDuplicatePendingRequest):
		response.Error(c, response.CodeDuplicatePendingRequest, err.Error())
	case errors.Is(err, repository.ErrCapacityExhausted):
		response.Error(c, response.CodeCapacityExhausted, err.Error())
	case errors.Is(err, repository.ErrInvalidTransition):
		response.Error(c, response.CodeInvalidTransition, err.Error())
	case errors.Is(err, repository.ErrSignatureMismatch):
		response.Error(c, response.CodeSignatureMismatch, err.Error())
	case errors.Is(err, repository.ErrGatewayUnavailable):
		response.Error(c, response.CodeGatewayUnavailable, err.Error())
	case errors.Is(err, repository.ErrConcurrencyConflict):
		response.Error(c, response.CodeConcurrencyConflict, err.Error())
	case errors.Is(err, repository.ErrInvalidAmount):
		response.Error(c, response.CodeInvalidAmount, err.Error())
	default:
		slog.Error("请求处理失败", "path", c.FullPath(), "error", err)
		response.ServerError(c, "服务器内部错误")
	}
}
