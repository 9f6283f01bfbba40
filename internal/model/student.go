package model

import (
	"time"
)

const (
	StudentStatusSearching       = "SEARCHING"
	StudentStatusPendingApproval = "PENDING_APPROVAL"
	StudentStatusActive          = "ACTIVE"
	StudentStatusVacated         = "VACATED"
)

// Student 学生入住登记
// ACTIVE 时 CurrentHostelID 非空，且对应宿舍容量账本中恰好占用一个床位
type Student struct {
	ID              int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name            string `gorm:"type:varchar(128);not null" json:"name"`
	Email           string `gorm:"type:varchar(128);uniqueIndex;not null" json:"email"`
	CurrentHostelID *int64 `gorm:"index" json:"current_hostel_id"`
	Floor           *int   `json:"floor,omitempty"`
	RoomNumber      *int   `json:"room_number"`
	OwnerID         *int64 `gorm:"index" json:"owner_id,omitempty"`
	Status          string `gorm:"type:varchar(20);index;not null" json:"status"`
	// Balance 预存余额（分），多付的款项记入此处
	Balance   int64     `gorm:"not null;default:0" json:"balance"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Student) TableName() string {
	return "student"
}

func (s *Student) Assigned() bool {
	return s.CurrentHostelID != nil
}
