package handler

import (
	"hostelsystem/internal/service"
	"hostelsystem/pkg/response"

	"github.com/gin-gonic/gin"
)

// CreatePaymentOrder POST /api/v1/payments/orders
func (h *Handler) CreatePaymentOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.paymentService.CreateOrder(c.Request.Context(), actorFrom(c).UserID, &req)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, resp)
}

// VerifyPayment POST /api/v1/payments/verify
// 不要求登录，签名本身即凭证
func (h *Handler) VerifyPayment(c *gin.Context) {
	var req service.VerifyRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.paymentService.Verify(c.Request.Context(), &req)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, resp)
}

// RecordOfflinePayment POST /api/v1/payments/offline
func (h *Handler) RecordOfflinePayment(c *gin.Context) {
	var req service.OfflinePaymentRequest
	if !bindJSON(c, &req) {
		return
	}

	trans, err := h.paymentService.RecordOfflinePayment(c.Request.Context(), actorFrom(c).UserID, &req)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, trans)
}

// GetTransaction GET /api/v1/payments/:id
func (h *Handler) GetTransaction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	trans, err := h.paymentService.GetTransaction(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, trans)
}

// ListTransactions GET /api/v1/payments?student_id=
func (h *Handler) ListTransactions(c *gin.Context) {
	studentID, ok := h.visibleStudent(c)
	if !ok {
		return
	}

	page, pageSize := pagination(c)
	list, total, err := h.paymentService.ListTransactions(c.Request.Context(), studentID, page, pageSize)
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
