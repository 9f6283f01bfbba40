package repository

import (
	"context"
	"errors"

	"hostelsystem/internal/model"

	"gorm.io/gorm"
)

type HostelRepository struct {
	db *gorm.DB
}

func NewHostelRepository(db *gorm.DB) *HostelRepository {
	return &HostelRepository{db: db}
}

func (r *HostelRepository) Create(ctx context.Context, hostel *model.Hostel) error {
	return r.db.WithContext(ctx).Create(hostel).Error
}

func (r *HostelRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Hostel, error) {
	var hostel model.Hostel
	err := dbOr(tx, r.db).WithContext(ctx).Where("id = ?", id).First(&hostel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHostelNotFound
		}
		return nil, err
	}
	return &hostel, nil
}

// Reserve 占用一个床位
//
// 单条条件更新：available_rooms > 0 才扣减，避免“读-改-写”导致的超卖
func (r *HostelRepository) Reserve(ctx context.Context, tx *gorm.DB, hostelID int64) error {
	db := dbOr(tx, r.db)
	result := db.WithContext(ctx).
		Model(&model.Hostel{}).
		Where("id = ? AND available_rooms > 0", hostelID).
		UpdateColumn("available_rooms", gorm.Expr("available_rooms - 1"))

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, db, hostelID); err != nil {
			return err
		}
		return ErrCapacityExhausted
	}
	return nil
}

// Release 归还一个床位，上限为 total_rooms
//
// 返回 false 表示已达上限未做修改（重复归还）
func (r *HostelRepository) Release(ctx context.Context, tx *gorm.DB, hostelID int64) (bool, error) {
	db := dbOr(tx, r.db)
	result := db.WithContext(ctx).
		Model(&model.Hostel{}).
		Where("id = ? AND available_rooms < total_rooms", hostelID).
		UpdateColumn("available_rooms", gorm.Expr("available_rooms + 1"))

	if result.Error != nil {
		return false, result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, db, hostelID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// Resize 调整总床位数，available 随之平移；不允许缩到已占用床位数以下
func (r *HostelRepository) Resize(ctx context.Context, hostelID, ownerID int64, totalRooms int) error {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE hostel
		    SET available_rooms = available_rooms + (? - total_rooms),
		        total_rooms = ?
		  WHERE id = ? AND owner_id = ? AND available_rooms + (? - total_rooms) >= 0`,
		totalRooms, totalRooms, hostelID, ownerID, totalRooms,
	)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		hostel, err := r.GetByID(ctx, nil, hostelID)
		if err != nil {
			return err
		}
		if hostel.OwnerID != ownerID {
			return ErrForbidden
		}
		if hostel.TotalRooms == totalRooms {
			return nil
		}
		return ErrCapacityExhausted
	}
	return nil
}

func (r *HostelRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*model.Hostel, error) {
	var hostels []*model.Hostel
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("id ASC").
		Find(&hostels).Error
	return hostels, err
}
