package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"hostelsystem/internal/config"
	"hostelsystem/internal/model"
	"hostelsystem/internal/repository"

	"gorm.io/gorm"
)

// RegistryService 学生入住登记
type RegistryService struct {
	db          *gorm.DB
	cfg         *config.Config
	studentRepo *repository.StudentRepository
	bookingRepo *repository.BookingRepository
	outboxRepo  *repository.OutboxRepository
	capacity    *CapacityService
}

func NewRegistryService(db *gorm.DB, cfg *config.Config, capacity *CapacityService) *RegistryService {
	return &RegistryService{
		db:          db,
		cfg:         cfg,
		studentRepo: repository.NewStudentRepository(db),
		bookingRepo: repository.NewBookingRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		capacity:    capacity,
	}
}

type RegisterStudentRequest struct {
	Name  string `json:"name" binding:"required,max=128"`
	Email string `json:"email" binding:"required,email,max=128"`
}

func (s *RegistryService) Register(ctx context.Context, req *RegisterStudentRequest) (*model.Student, error) {
	student := &model.Student{
		Name:   strings.TrimSpace(req.Name),
		Email:  strings.ToLower(strings.TrimSpace(req.Email)),
		Status: model.StudentStatusSearching,
	}
	if student.Name == "" || student.Email == "" {
		return nil, repository.ErrInvalidArgument
	}

	if err := s.studentRepo.Create(ctx, student); err != nil {
		return nil, err
	}
	return student, nil
}

func (s *RegistryService) Get(ctx context.Context, studentID int64) (*model.Student, error) {
	return s.studentRepo.GetByID(ctx, nil, studentID)
}

// assign 只在审批事务内调用
func (s *RegistryService) assign(ctx context.Context, tx *gorm.DB, req *model.BookingRequest) error {
	return s.studentRepo.Assign(ctx, tx, req.StudentID, req.HostelID, req.OwnerID, req.Floor, req.RoomNumber)
}

// Vacate 退宿：清除登记与归还床位在同一事务内完成，未入住的学生直接返回
func (s *RegistryService) Vacate(ctx context.Context, actor Actor, studentID int64) (*model.Student, error) {
	student, err := s.studentRepo.GetByID(ctx, nil, studentID)
	if err != nil {
		return nil, err
	}

	if !actor.IsStudent(studentID) {
		if !actor.IsOwner() || student.OwnerID == nil || *student.OwnerID != actor.UserID {
			return nil, repository.ErrForbidden
		}
	}

	if !student.Assigned() {
		return student, nil
	}
	hostelID := *student.CurrentHostelID

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		vacated, err := s.studentRepo.Vacate(ctx, tx, studentID, hostelID)
		if err != nil {
			return fmt.Errorf("清除入住登记失败: %w", err)
		}
		if !vacated {
			// 并发退宿，另一方已归还床位
			return nil
		}

		if err := s.capacity.Release(ctx, tx, hostelID); err != nil {
			return fmt.Errorf("归还床位失败: %w", err)
		}

		// 其他宿舍仍有待审批申请时保持 PENDING_APPROVAL
		pending, err := s.bookingRepo.CountPendingByStudent(ctx, tx, studentID)
		if err != nil {
			return err
		}
		if pending > 0 {
			if err := s.studentRepo.UpdateSearchStatus(ctx, tx, studentID,
				[]string{model.StudentStatusVacated}, model.StudentStatusPendingApproval); err != nil {
				return fmt.Errorf("更新学生状态失败: %w", err)
			}
		}

		return s.outboxRepo.Publish(ctx, tx, s.cfg.Kafka.Topic.BookingEvents,
			fmt.Sprintf("student-%d", studentID), model.EventStudentVacated,
			map[string]interface{}{
				"student_id": studentID,
				"hostel_id":  hostelID,
				"actor_id":   actor.UserID,
			})
	})
	if err != nil {
		return nil, err
	}

	slog.Info("学生退宿", "student_id", studentID, "hostel_id", hostelID)
	return s.studentRepo.GetByID(ctx, nil, studentID)
}
