package model

import (
	"fmt"
	"time"
)

const (
	BookingStatusPending   = "PENDING"
	BookingStatusApproved  = "APPROVED"
	BookingStatusRejected  = "REJECTED"
	BookingStatusCancelled = "CANCELLED"
)

var bookingTransitions = map[string][]string{
	BookingStatusPending: {BookingStatusApproved, BookingStatusRejected, BookingStatusCancelled},
}

func CanBookingTransition(currentStatus, targetStatus string) bool {
	return canTransition(bookingTransitions, currentStatus, targetStatus)
}

// BookingRequest 入住申请，终态后保留作为审计记录，不删除
type BookingRequest struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	StudentID    int64  `gorm:"index;not null" json:"student_id"`
	HostelID     int64  `gorm:"index;not null" json:"hostel_id"`
	OwnerID      int64  `gorm:"index;not null" json:"owner_id"`
	Floor        int    `gorm:"not null" json:"floor"`
	RoomNumber   int    `gorm:"not null" json:"room_number"`
	Status       string `gorm:"type:varchar(20);index;not null" json:"status"`
	RejectReason string `gorm:"type:varchar(256)" json:"reject_reason,omitempty"`
	// PendingKey 仅在 PENDING 时非空，唯一索引保证同一 (student, hostel) 至多一条待审批申请
	PendingKey *string    `gorm:"type:varchar(64);uniqueIndex" json:"-"`
	DecidedAt  *time.Time `json:"decided_at,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (BookingRequest) TableName() string {
	return "booking_request"
}

func PendingKeyFor(studentID, hostelID int64) string {
	return fmt.Sprintf("%d:%d", studentID, hostelID)
}
