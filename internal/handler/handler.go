package handler

import (
	"strconv"

	"hostelsystem/internal/config"
	"hostelsystem/internal/gateway"
	"hostelsystem/internal/service"
	"hostelsystem/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	capacityService *service.CapacityService
	registryService *service.RegistryService
	bookingService  *service.BookingService
	dueService      *service.DueService
	paymentService  *service.PaymentService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config, gw gateway.Gateway) *Handler {
	capacity := service.NewCapacityService(db)
	registry := service.NewRegistryService(db, cfg, capacity)
	return &Handler{
		capacityService: capacity,
		registryService: registry,
		bookingService:  service.NewBookingService(db, cfg, capacity, registry),
		dueService:      service.NewDueService(db, cfg),
		paymentService:  service.NewPaymentService(db, rdb, cfg, gw),
	}
}

// bindJSON 绑定并校验请求体，失败时已写回响应
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return false
	}
	return true
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "id 参数错误")
		return 0, false
	}
	return id, true
}

func queryID(c *gin.Context, key string) (int64, bool) {
	id, err := strconv.ParseInt(c.Query(key), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, key+" 参数错误")
		return 0, false
	}
	return id, true
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, pageSize
}
