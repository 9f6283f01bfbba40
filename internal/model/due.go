package model

import (
	"time"
)

const (
	DueStatusPending   = "PENDING"
	DueStatusPartial   = "PARTIAL"
	DueStatusPaid      = "PAID"
	DueStatusOverdue   = "OVERDUE"
	DueStatusWaived    = "WAIVED"
	DueStatusCancelled = "CANCELLED"
)

// PayableDueStatuses 可以继续收款的状态
var PayableDueStatuses = []string{DueStatusPending, DueStatusPartial, DueStatusOverdue}

// Due 应收款。PaidAmount 只通过交易入账或显式减免/取消改变
type Due struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	StudentID  int64      `gorm:"index;not null" json:"student_id"`
	HostelID   int64      `gorm:"index;not null" json:"hostel_id"`
	OwnerID    int64      `gorm:"index;not null" json:"owner_id"`
	Title      string     `gorm:"type:varchar(128);not null" json:"title"`
	Amount     int64      `gorm:"not null" json:"amount"`
	FineAmount int64      `gorm:"not null;default:0" json:"fine_amount"`
	PaidAmount int64      `gorm:"not null;default:0" json:"paid_amount"`
	Status     string     `gorm:"type:varchar(20);index;not null" json:"status"`
	DueDate    time.Time  `gorm:"index;not null" json:"due_date"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`
	Version    int        `gorm:"not null;default:0" json:"-"` // 乐观锁版本号
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Due) TableName() string {
	return "due"
}

func (d *Due) Total() int64 {
	return d.Amount + d.FineAmount
}

func (d *Due) RemainingAmount() int64 {
	return d.Total() - d.PaidAmount
}

func (d *Due) Payable() bool {
	for _, s := range PayableDueStatuses {
		if d.Status == s {
			return true
		}
	}
	return false
}

// SettledStatus 入账后的状态：结清为 PAID，否则 PARTIAL
func (d *Due) SettledStatus(paid int64) string {
	if paid >= d.Total() {
		return DueStatusPaid
	}
	return DueStatusPartial
}
