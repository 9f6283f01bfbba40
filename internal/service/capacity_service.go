package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"hostelsystem/internal/metrics"
	"hostelsystem/internal/model"
	"hostelsystem/internal/repository"

	"gorm.io/gorm"
)

// CapacityService 容量账本，所有增减都是单条条件更新
type CapacityService struct {
	db          *gorm.DB
	hostelRepo  *repository.HostelRepository
	studentRepo *repository.StudentRepository
}

func NewCapacityService(db *gorm.DB) *CapacityService {
	return &CapacityService{
		db:          db,
		hostelRepo:  repository.NewHostelRepository(db),
		studentRepo: repository.NewStudentRepository(db),
	}
}

type CreateHostelRequest struct {
	Name       string `json:"name" binding:"required,max=128"`
	TotalRooms int    `json:"total_rooms" binding:"gte=0"`
}

type ResizeRequest struct {
	TotalRooms int `json:"total_rooms" binding:"gte=0"`
}

func (s *CapacityService) CreateHostel(ctx context.Context, ownerID int64, req *CreateHostelRequest) (*model.Hostel, error) {
	if req.TotalRooms < 0 || req.Name == "" {
		return nil, repository.ErrInvalidArgument
	}

	hostel := &model.Hostel{
		OwnerID:        ownerID,
		Name:           req.Name,
		TotalRooms:     req.TotalRooms,
		AvailableRooms: req.TotalRooms,
	}
	if err := s.hostelRepo.Create(ctx, hostel); err != nil {
		return nil, fmt.Errorf("创建宿舍失败: %w", err)
	}

	slog.Info("宿舍创建成功", "hostel_id", hostel.ID, "owner_id", ownerID, "total_rooms", hostel.TotalRooms)
	return hostel, nil
}

func (s *CapacityService) GetHostel(ctx context.Context, hostelID int64) (*model.Hostel, error) {
	return s.hostelRepo.GetByID(ctx, nil, hostelID)
}

// Reserve 占用一个床位，tx 非空时加入调用方事务
func (s *CapacityService) Reserve(ctx context.Context, tx *gorm.DB, hostelID int64) error {
	err := s.hostelRepo.Reserve(ctx, tx, hostelID)
	if errors.Is(err, repository.ErrCapacityExhausted) {
		metrics.CapacityExhausted.Inc()
	}
	return err
}

// Release 归还一个床位；已满额时为空操作
func (s *CapacityService) Release(ctx context.Context, tx *gorm.DB, hostelID int64) error {
	released, err := s.hostelRepo.Release(ctx, tx, hostelID)
	if err != nil {
		return err
	}
	if !released {
		slog.Warn("归还床位被截断，可用床位已等于总床位", "hostel_id", hostelID)
	}
	return nil
}

func (s *CapacityService) Resize(ctx context.Context, hostelID, ownerID int64, req *ResizeRequest) (*model.Hostel, error) {
	if req.TotalRooms < 0 {
		return nil, repository.ErrInvalidArgument
	}
	if err := s.hostelRepo.Resize(ctx, hostelID, ownerID, req.TotalRooms); err != nil {
		return nil, err
	}

	slog.Info("宿舍床位数调整", "hostel_id", hostelID, "total_rooms", req.TotalRooms)
	return s.hostelRepo.GetByID(ctx, nil, hostelID)
}

// Snapshot 读取容量与在住人数，Consistent 校验 available = total - active
func (s *CapacityService) Snapshot(ctx context.Context, hostelID int64) (*model.CapacitySnapshot, error) {
	var snapshot *model.CapacitySnapshot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		hostel, err := s.hostelRepo.GetByID(ctx, tx, hostelID)
		if err != nil {
			return err
		}
		active, err := s.studentRepo.CountActiveInHostel(ctx, tx, hostelID)
		if err != nil {
			return err
		}

		snapshot = &model.CapacitySnapshot{
			HostelID:       hostel.ID,
			TotalRooms:     hostel.TotalRooms,
			AvailableRooms: hostel.AvailableRooms,
			ActiveStudents: active,
			Consistent:     int64(hostel.AvailableRooms) == int64(hostel.TotalRooms)-active,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}
