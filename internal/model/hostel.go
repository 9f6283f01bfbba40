package model

import (
	"time"
)

// Hostel 宿舍楼，TotalRooms/AvailableRooms 构成容量账本
// 不变式：0 <= AvailableRooms <= TotalRooms，只允许通过容量账本的条件更新修改
type Hostel struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID        int64     `gorm:"index;not null" json:"owner_id"`
	Name           string    `gorm:"type:varchar(128);not null" json:"name"`
	TotalRooms     int       `gorm:"not null;default:0" json:"total_rooms"`
	AvailableRooms int       `gorm:"not null;default:0" json:"available_rooms"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Hostel) TableName() string {
	return "hostel"
}

// CapacitySnapshot 面板只读视图
type CapacitySnapshot struct {
	HostelID       int64 `json:"hostel_id"`
	TotalRooms     int   `json:"total_rooms"`
	AvailableRooms int   `json:"available_rooms"`
	ActiveStudents int64 `json:"active_students"`
	Consistent     bool  `json:"consistent"`
}
