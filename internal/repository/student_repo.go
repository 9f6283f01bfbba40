package repository

import (
	"context"
	"errors"

	"hostelsystem/internal/model"

	"gorm.io/gorm"
)

type StudentRepository struct {
	db *gorm.DB
}

func NewStudentRepository(db *gorm.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

func (r *StudentRepository) Create(ctx context.Context, student *model.Student) error {
	err := r.db.WithContext(ctx).Create(student).Error
	if IsDuplicateKey(err) {
		return ErrEmailTaken
	}
	return err
}

func (r *StudentRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Student, error) {
	var student model.Student
	err := dbOr(tx, r.db).WithContext(ctx).Where("id = ?", id).First(&student).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	return &student, nil
}

// Assign 登记入住，只对当前未分配宿舍的学生生效
func (r *StudentRepository) Assign(ctx context.Context, tx *gorm.DB, studentID, hostelID, ownerID int64, floor, roomNumber int) error {
	db := dbOr(tx, r.db)
	result := db.WithContext(ctx).
		Model(&model.Student{}).
		Where("id = ? AND current_hostel_id IS NULL", studentID).
		Updates(map[string]interface{}{
			"current_hostel_id": hostelID,
			"owner_id":          ownerID,
			"floor":             floor,
			"room_number":       roomNumber,
			"status":            model.StudentStatusActive,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, db, studentID); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	return nil
}

// Vacate 清除入住登记；返回 false 表示学生已不在该宿舍（并发退宿或从未入住）
func (r *StudentRepository) Vacate(ctx context.Context, tx *gorm.DB, studentID, hostelID int64) (bool, error) {
	result := dbOr(tx, r.db).WithContext(ctx).
		Model(&model.Student{}).
		Where("id = ? AND current_hostel_id = ?", studentID, hostelID).
		Updates(map[string]interface{}{
			"current_hostel_id": nil,
			"owner_id":          nil,
			"floor":             nil,
			"room_number":       nil,
			"status":            model.StudentStatusVacated,
		})

	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UpdateSearchStatus 未入住学生在 SEARCHING/VACATED 与 PENDING_APPROVAL 之间切换
func (r *StudentRepository) UpdateSearchStatus(ctx context.Context, tx *gorm.DB, studentID int64, fromStatuses []string, toStatus string) error {
	return dbOr(tx, r.db).WithContext(ctx).
		Model(&model.Student{}).
		Where("id = ? AND current_hostel_id IS NULL AND status IN ?", studentID, fromStatuses).
		Update("status", toStatus).Error
}

// AddBalance 预存余额增加（多付款项），单条原子更新
func (r *StudentRepository) AddBalance(ctx context.Context, tx *gorm.DB, studentID, amount int64) error {
	result := dbOr(tx, r.db).WithContext(ctx).
		Model(&model.Student{}).
		Where("id = ?", studentID).
		UpdateColumn("balance", gorm.Expr("balance + ?", amount))

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStudentNotFound
	}
	return nil
}

func (r *StudentRepository) CountActiveInHostel(ctx context.Context, tx *gorm.DB, hostelID int64) (int64, error) {
	var count int64
	err := dbOr(tx, r.db).WithContext(ctx).
		Model(&model.Student{}).
		Where("current_hostel_id = ? AND status = ?", hostelID, model.StudentStatusActive).
		Count(&count).Error
	return count, err
}
