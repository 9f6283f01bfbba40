package handler

import (
	"hostelsystem/internal/config"
	"hostelsystem/internal/gateway"
	"hostelsystem/internal/metrics"
	"hostelsystem/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config, gw gateway.Gateway) *gin.Engine {
	if cfg.Server.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	// 请求体出现未定义字段直接拒绝
	binding.EnableDecoderDisallowUnknownFields = true

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(MetricsMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(db, rdb, cfg, gw)
	auth := AuthMiddleware(NewTokenParser(&cfg.Auth))
	ownerOnly := RequireRole(service.RoleOwner)
	studentOnly := RequireRole(service.RoleStudent)

	api := r.Group("/api/v1")
	{
		// 无需登录
		api.POST("/students", h.RegisterStudent)
		api.POST("/payments/verify", h.VerifyPayment)

		authed := api.Group("", auth)

		// 宿舍容量
		hostels := authed.Group("/hostels")
		{
			hostels.POST("", ownerOnly, h.CreateHostel)
			hostels.POST("/:id/resize", ownerOnly, h.ResizeHostel)
			hostels.GET("/:id/capacity", h.GetCapacity)
		}

		// 学生登记
		students := authed.Group("/students")
		{
			students.GET("/:id", h.GetStudent)
			students.POST("/:id/vacate", h.VacateStudent)
		}

		// 入住申请
		bookings := authed.Group("/bookings")
		{
			bookings.POST("", studentOnly, h.CreateBooking)
			bookings.GET("", h.ListBookings)
			bookings.GET("/:id", h.GetBooking)
			bookings.POST("/:id/approve", ownerOnly, h.ApproveBooking)
			bookings.POST("/:id/reject", ownerOnly, h.RejectBooking)
			bookings.POST("/:id/cancel", studentOnly, h.CancelBooking)
		}

		// 应收款
		dues := authed.Group("/dues")
		{
			dues.POST("", ownerOnly, h.CreateDue)
			dues.GET("", h.ListDues)
			dues.POST("/:id/waive", ownerOnly, h.WaiveDue)
			dues.POST("/:id/cancel", ownerOnly, h.CancelDue)
			dues.POST("/:id/fine", ownerOnly, h.AddFine)
		}

		// 支付
		payments := authed.Group("/payments")
		{
			payments.POST("/orders", studentOnly, h.CreatePaymentOrder)
			payments.POST("/offline", ownerOnly, h.RecordOfflinePayment)
			payments.GET("", h.ListTransactions)
			payments.GET("/:id", h.GetTransaction)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	return r
}
