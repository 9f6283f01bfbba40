package repository

import (
	"context"
	"errors"
	"time"

	"hostelsystem/internal/model"

	"gorm.io/gorm"
)

type BookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// Create 写入 PENDING 申请；pending_key 唯一索引冲突即视为重复申请
func (r *BookingRepository) Create(ctx context.Context, tx *gorm.DB, req *model.BookingRequest) error {
	key := model.PendingKeyFor(req.StudentID, req.HostelID)
	req.PendingKey = &key
	req.Status = model.BookingStatusPending

	err := dbOr(tx, r.db).WithContext(ctx).Create(req).Error
	if IsDuplicateKey(err) {
		return ErrDuplicatePendingRequest
	}
	return err
}

func (r *BookingRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.BookingRequest, error) {
	var req model.BookingRequest
	err := dbOr(tx, r.db).WithContext(ctx).Where("id = ?", id).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *BookingRepository) HasPending(ctx context.Context, tx *gorm.DB, studentID, hostelID int64) (bool, error) {
	var count int64
	err := dbOr(tx, r.db).WithContext(ctx).
		Model(&model.BookingRequest{}).
		Where("student_id = ? AND hostel_id = ? AND status = ?", studentID, hostelID, model.BookingStatusPending).
		Count(&count).Error
	return count > 0, err
}

func (r *BookingRepository) CountPendingByStudent(ctx context.Context, tx *gorm.DB, studentID int64) (int64, error) {
	var count int64
	err := dbOr(tx, r.db).WithContext(ctx).
		Model(&model.BookingRequest{}).
		Where("student_id = ? AND status = ?", studentID, model.BookingStatusPending).
		Count(&count).Error
	return count, err
}

// UpdateStatus 乐观并发：只有当前状态仍为 fromStatus 时才生效
//
// 并发的 approve/cancel 只有一个能成功，失败方返回 ErrInvalidTransition
func (r *BookingRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, fromStatus, toStatus, reason string) error {
	if !model.CanBookingTransition(fromStatus, toStatus) {
		return ErrInvalidTransition
	}

	db := dbOr(tx, r.db)
	updates := map[string]interface{}{
		"status":      toStatus,
		"pending_key": nil,
		"decided_at":  time.Now(),
	}
	if reason != "" {
		updates["reject_reason"] = reason
	}

	result := db.WithContext(ctx).
		Model(&model.BookingRequest{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, db, id); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	return nil
}

func (r *BookingRepository) ListByHostel(ctx context.Context, hostelID int64, status string, page, pageSize int) ([]*model.BookingRequest, int64, error) {
	var requests []*model.BookingRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&model.BookingRequest{}).Where("hostel_id = ?", hostelID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&requests).Error

	return requests, total, err
}

func (r *BookingRepository) ListByStudent(ctx context.Context, studentID int64) ([]*model.BookingRequest, error) {
	var requests []*model.BookingRequest
	err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("created_at DESC").
		Find(&requests).Error
	return requests, err
}
