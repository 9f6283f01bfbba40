package model

import (
	"time"
)

const (
	TransactionStatusPending             = "PENDING"
	TransactionStatusVerificationPending = "VERIFICATION_PENDING"
	TransactionStatusSuccess             = "SUCCESS"
	TransactionStatusFailed              = "FAILED"
	TransactionStatusRefunded            = "REFUNDED"
)

const (
	PaymentModeOnline       = "ONLINE"
	PaymentModeCash         = "CASH"
	PaymentModeBankTransfer = "BANK_TRANSFER"
)

var transactionTransitions = map[string][]string{
	TransactionStatusPending:             {TransactionStatusVerificationPending, TransactionStatusSuccess, TransactionStatusFailed},
	TransactionStatusVerificationPending: {TransactionStatusSuccess, TransactionStatusFailed},
}

func CanTransactionTransition(currentStatus, targetStatus string) bool {
	return canTransition(transactionTransitions, currentStatus, targetStatus)
}

// Transaction 支付交易流水
//
// 只追加：SUCCESS / FAILED 之后不再修改，更正通过新增交易完成
type Transaction struct {
	ID               int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo    string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	StudentID        int64      `gorm:"index;not null" json:"student_id"`
	HostelID         int64      `gorm:"index;not null" json:"hostel_id"`
	DueID            *int64     `gorm:"index" json:"due_id,omitempty"`
	InvoiceID        *string    `gorm:"type:varchar(64)" json:"invoice_id,omitempty"`
	Amount           int64      `gorm:"not null" json:"amount"` // 分
	Currency         string     `gorm:"type:varchar(8);not null" json:"currency"`
	Mode             string     `gorm:"type:varchar(20);not null" json:"mode"`
	Status           string     `gorm:"type:varchar(24);index;not null" json:"status"`
	Receipt          string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"receipt"`
	GatewayOrderID   *string    `gorm:"type:varchar(64);uniqueIndex" json:"gateway_order_id,omitempty"`
	GatewayPaymentID *string    `gorm:"type:varchar(64);uniqueIndex" json:"gateway_payment_id,omitempty"`
	GatewaySignature string     `gorm:"type:varchar(128)" json:"-"`
	FailureReason    string     `gorm:"type:varchar(256)" json:"failure_reason,omitempty"`
	VerifiedAt       *time.Time `json:"verified_at,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime;index" json:"updated_at"`
}

func (Transaction) TableName() string {
	return "payment_transaction"
}

func (t *Transaction) Final() bool {
	return t.Status == TransactionStatusSuccess || t.Status == TransactionStatusFailed || t.Status == TransactionStatusRefunded
}
