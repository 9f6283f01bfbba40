package service

import (
	"context"
	"fmt"
	"log/slog"

	"hostelsystem/internal/config"
	"hostelsystem/internal/metrics"
	"hostelsystem/internal/model"
	"hostelsystem/internal/repository"

	"gorm.io/gorm"
)

// BookingService 入住申请状态机
//
// PENDING -> APPROVED | REJECTED | CANCELLED，三个终态不可再变。
// 审批时“申请转 APPROVED + 扣减床位 + 登记入住”是一个事务，任一步失败整体回滚
type BookingService struct {
	db          *gorm.DB
	cfg         *config.Config
	bookingRepo *repository.BookingRepository
	hostelRepo  *repository.HostelRepository
	studentRepo *repository.StudentRepository
	outboxRepo  *repository.OutboxRepository
	capacity    *CapacityService
	registry    *RegistryService
}

func NewBookingService(db *gorm.DB, cfg *config.Config, capacity *CapacityService, registry *RegistryService) *BookingService {
	return &BookingService{
		db:          db,
		cfg:         cfg,
		bookingRepo: repository.NewBookingRepository(db),
		hostelRepo:  repository.NewHostelRepository(db),
		studentRepo: repository.NewStudentRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		capacity:    capacity,
		registry:    registry,
	}
}

type CreateBookingRequest struct {
	StudentID  int64 `json:"student_id" binding:"required"`
	HostelID   int64 `json:"hostel_id" binding:"required"`
	Floor      int   `json:"floor" binding:"required,gte=1"`
	RoomNumber int   `json:"room_number" binding:"required,gte=1"`
}

type RejectBookingRequest struct {
	Reason string `json:"reason" binding:"max=256"`
}

// Create 提交入住申请，不占用床位
func (s *BookingService) Create(ctx context.Context, req *CreateBookingRequest) (*model.BookingRequest, error) {
	if req.Floor < 1 || req.RoomNumber < 1 {
		return nil, fmt.Errorf("%w: 楼层和房间号必须大于0", repository.ErrInvalidArgument)
	}

	hostel, err := s.hostelRepo.GetByID(ctx, nil, req.HostelID)
	if err != nil {
		return nil, err
	}
	student, err := s.studentRepo.GetByID(ctx, nil, req.StudentID)
	if err != nil {
		return nil, err
	}
	if student.Assigned() {
		return nil, fmt.Errorf("%w: 学生已入住宿舍", repository.ErrInvalidTransition)
	}

	// 唯一索引兜底并发提交，这里先查一次给出明确错误
	pending, err := s.bookingRepo.HasPending(ctx, nil, req.StudentID, req.HostelID)
	if err != nil {
		return nil, fmt.Errorf("查询待审批申请失败: %w", err)
	}
	if pending {
		return nil, repository.ErrDuplicatePendingRequest
	}

	booking := &model.BookingRequest{
		StudentID:  req.StudentID,
		HostelID:   req.HostelID,
		OwnerID:    hostel.OwnerID,
		Floor:      req.Floor,
		RoomNumber: req.RoomNumber,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.bookingRepo.Create(ctx, tx, booking); err != nil {
			return err
		}
		if err := s.studentRepo.UpdateSearchStatus(ctx, tx, req.StudentID,
			[]string{model.StudentStatusSearching, model.StudentStatusVacated},
			model.StudentStatusPendingApproval); err != nil {
			return fmt.Errorf("更新学生状态失败: %w", err)
		}
		return s.publish(ctx, tx, booking, model.EventBookingCreated)
	})
	if err != nil {
		return nil, err
	}

	metrics.BookingTransitions.WithLabelValues(model.BookingStatusPending).Inc()
	slog.Info("入住申请已提交", "request_id", booking.ID, "student_id", booking.StudentID, "hostel_id", booking.HostelID)
	return booking, nil
}

// Approve 审批通过
//
// 床位不足时返回 ErrCapacityExhausted，申请保持 PENDING；
// 并发审批/取消同一申请只有一方成功，另一方返回 ErrInvalidTransition
func (s *BookingService) Approve(ctx context.Context, requestID, ownerID int64) (*model.BookingRequest, error) {
	booking, err := s.bookingRepo.GetByID(ctx, nil, requestID)
	if err != nil {
		return nil, err
	}
	if booking.OwnerID != ownerID {
		return nil, repository.ErrForbidden
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.bookingRepo.UpdateStatus(ctx, tx, requestID, model.BookingStatusPending, model.BookingStatusApproved, ""); err != nil {
			return err
		}
		if err := s.capacity.Reserve(ctx, tx, booking.HostelID); err != nil {
			return err
		}
		if err := s.registry.assign(ctx, tx, booking); err != nil {
			return fmt.Errorf("登记入住失败: %w", err)
		}

		booking.Status = model.BookingStatusApproved
		return s.publish(ctx, tx, booking, model.EventBookingApproved)
	})
	if err != nil {
		slog.Warn("审批入住申请失败", "request_id", requestID, "error", err)
		return nil, err
	}

	metrics.BookingTransitions.WithLabelValues(model.BookingStatusApproved).Inc()
	slog.Info("入住申请已通过", "request_id", requestID, "hostel_id", booking.HostelID, "student_id", booking.StudentID)
	return s.bookingRepo.GetByID(ctx, nil, requestID)
}

func (s *BookingService) Reject(ctx context.Context, requestID, ownerID int64, reason string) (*model.BookingRequest, error) {
	booking, err := s.bookingRepo.GetByID(ctx, nil, requestID)
	if err != nil {
		return nil, err
	}
	if booking.OwnerID != ownerID {
		return nil, repository.ErrForbidden
	}

	return s.close(ctx, booking, model.BookingStatusRejected, reason, model.EventBookingRejected)
}

// Cancel 学生撤回申请，只在 PENDING 时有效
func (s *BookingService) Cancel(ctx context.Context, requestID, studentID int64) (*model.BookingRequest, error) {
	booking, err := s.bookingRepo.GetByID(ctx, nil, requestID)
	if err != nil {
		return nil, err
	}
	if booking.StudentID != studentID {
		return nil, repository.ErrForbidden
	}

	return s.close(ctx, booking, model.BookingStatusCancelled, "", model.EventBookingCancelled)
}

// close 拒绝/撤回，不涉及床位；学生不再有待审批申请时回到 SEARCHING
func (s *BookingService) close(ctx context.Context, booking *model.BookingRequest, toStatus, reason, event string) (*model.BookingRequest, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.bookingRepo.UpdateStatus(ctx, tx, booking.ID, model.BookingStatusPending, toStatus, reason); err != nil {
			return err
		}

		remaining, err := s.bookingRepo.CountPendingByStudent(ctx, tx, booking.StudentID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			if err := s.studentRepo.UpdateSearchStatus(ctx, tx, booking.StudentID,
				[]string{model.StudentStatusPendingApproval}, model.StudentStatusSearching); err != nil {
				return fmt.Errorf("更新学生状态失败: %w", err)
			}
		}

		booking.Status = toStatus
		booking.RejectReason = reason
		return s.publish(ctx, tx, booking, event)
	})
	if err != nil {
		return nil, err
	}

	metrics.BookingTransitions.WithLabelValues(toStatus).Inc()
	slog.Info("入住申请已关闭", "request_id", booking.ID, "status", toStatus)
	return s.bookingRepo.GetByID(ctx, nil, booking.ID)
}

func (s *BookingService) Get(ctx context.Context, requestID int64) (*model.BookingRequest, error) {
	return s.bookingRepo.GetByID(ctx, nil, requestID)
}

func (s *BookingService) ListByHostel(ctx context.Context, hostelID int64, status string, page, pageSize int) ([]*model.BookingRequest, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.bookingRepo.ListByHostel(ctx, hostelID, status, page, pageSize)
}

func (s *BookingService) ListByStudent(ctx context.Context, studentID int64) ([]*model.BookingRequest, error) {
	return s.bookingRepo.ListByStudent(ctx, studentID)
}

// HostelOwner 查询宿舍所属业主，供列表接口鉴权
func (s *BookingService) HostelOwner(ctx context.Context, hostelID int64) (int64, error) {
	hostel, err := s.hostelRepo.GetByID(ctx, nil, hostelID)
	if err != nil {
		return 0, err
	}
	return hostel.OwnerID, nil
}

func (s *BookingService) publish(ctx context.Context, tx *gorm.DB, booking *model.BookingRequest, event string) error {
	return s.outboxRepo.Publish(ctx, tx, s.cfg.Kafka.Topic.BookingEvents,
		fmt.Sprintf("booking-%d", booking.ID), event,
		map[string]interface{}{
			"request_id":    booking.ID,
			"student_id":    booking.StudentID,
			"hostel_id":     booking.HostelID,
			"owner_id":      booking.OwnerID,
			"floor":         booking.Floor,
			"room_number":   booking.RoomNumber,
			"status":        booking.Status,
			"reject_reason": booking.RejectReason,
		})
}
