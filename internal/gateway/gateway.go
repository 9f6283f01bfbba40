// Package gateway 对接外部支付网关（Razorpay 风格的订单 API）
//
// 网关只负责收款本身；本服务在 CreateOrder 时登记交易，在 verify 时以
// FetchOrder 返回的金额为准入账，从不信任客户端上报的金额
package gateway

import (
	"context"
	"errors"
)

// 网关订单状态
const (
	OrderStatusCreated   = "created"
	OrderStatusAttempted = "attempted"
	OrderStatusPaid      = "paid"
)

var ErrUnavailable = errors.New("支付网关不可用")

type Order struct {
	ID         string `json:"id"`
	Amount     int64  `json:"amount"`
	AmountPaid int64  `json:"amount_paid"`
	AmountDue  int64  `json:"amount_due"`
	Currency   string `json:"currency"`
	Receipt    string `json:"receipt"`
	Status     string `json:"status"`
	CreatedAt  int64  `json:"created_at"`
}

func (o *Order) Paid() bool {
	return o.Status == OrderStatusPaid
}

// SettledAmount 以网关实收为准，未返回实收时退回到订单金额
func (o *Order) SettledAmount() int64 {
	if o.AmountPaid > 0 {
		return o.AmountPaid
	}
	return o.Amount
}

type Gateway interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*Order, error)
	FetchOrder(ctx context.Context, orderID string) (*Order, error)
	// KeyID 返回给前端拉起支付用的公钥标识
	KeyID() string
}
