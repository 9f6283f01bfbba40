package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeServerError   = 500
	CodeBusinessError = 1000
)

// 业务错误码
const (
	CodeDuplicatePendingRequest = 1001
	CodeCapacityExhausted       = 1002
	CodeInvalidTransition       = 1003
	CodeSignatureMismatch       = 1004
	CodeGatewayUnavailable      = 1005
	CodeConcurrencyConflict     = 1006
	CodeInvalidAmount           = 1007
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// Error 业务错误统一返回 HTTP 200，参数/鉴权/系统错误使用对应状态码
func Error(c *gin.Context, code int, message string) {
	c.JSON(httpStatus(code), Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func Unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
		Code:    CodeUnauthorized,
		Message: message,
	})
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func httpStatus(code int) int {
	switch code {
	case CodeParamError:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}
