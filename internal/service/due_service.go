package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"hostelsystem/internal/config"
	"hostelsystem/internal/model"
	"hostelsystem/internal/repository"
	"hostelsystem/pkg/money"

	"gorm.io/gorm"
)

// DueService 应收款台账
type DueService struct {
	db          *gorm.DB
	cfg         *config.Config
	dueRepo     *repository.DueRepository
	studentRepo *repository.StudentRepository
	outboxRepo  *repository.OutboxRepository
}

func NewDueService(db *gorm.DB, cfg *config.Config) *DueService {
	return &DueService{
		db:          db,
		cfg:         cfg,
		dueRepo:     repository.NewDueRepository(db),
		studentRepo: repository.NewStudentRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

type CreateDueRequest struct {
	StudentID int64     `json:"student_id" binding:"required"`
	Title     string    `json:"title" binding:"required,max=128"`
	Amount    string    `json:"amount" binding:"required"` // 卢比，最多两位小数
	DueDate   time.Time `json:"due_date" binding:"required"`
}

type AddFineRequest struct {
	Amount string `json:"amount" binding:"required"`
}

// parseAmount 金额格式错误统一归为 ErrInvalidAmount
func parseAmount(rupees string) (int64, error) {
	amount, err := money.ToSubunits(rupees)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", repository.ErrInvalidAmount, err)
	}
	return amount, nil
}

// CreateDue 业主为在住学生开立应收款
func (s *DueService) CreateDue(ctx context.Context, ownerID int64, req *CreateDueRequest) (*model.Due, error) {
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, repository.ErrInvalidArgument
	}

	student, err := s.studentRepo.GetByID(ctx, nil, req.StudentID)
	if err != nil {
		return nil, err
	}
	if !student.Assigned() || student.OwnerID == nil || *student.OwnerID != ownerID {
		return nil, repository.ErrForbidden
	}

	due := &model.Due{
		StudentID: student.ID,
		HostelID:  *student.CurrentHostelID,
		OwnerID:   ownerID,
		Title:     title,
		Amount:    amount,
		Status:    model.DueStatusPending,
		DueDate:   req.DueDate,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.dueRepo.Create(ctx, tx, due); err != nil {
			return fmt.Errorf("创建应收款失败: %w", err)
		}
		return s.outboxRepo.Publish(ctx, tx, s.cfg.Kafka.Topic.PaymentEvents,
			fmt.Sprintf("due-%d", due.ID), model.EventDueCreated,
			map[string]interface{}{
				"due_id":     due.ID,
				"student_id": due.StudentID,
				"hostel_id":  due.HostelID,
				"title":      due.Title,
				"amount":     due.Amount,
				"due_date":   due.DueDate,
			})
	})
	if err != nil {
		return nil, err
	}

	slog.Info("应收款已创建", "due_id", due.ID, "student_id", due.StudentID, "amount", due.Amount)
	return due, nil
}

func (s *DueService) Get(ctx context.Context, dueID int64) (*model.Due, error) {
	return s.dueRepo.GetByID(ctx, nil, dueID)
}

// Waive 减免剩余应收，已收部分保留
func (s *DueService) Waive(ctx context.Context, ownerID, dueID int64) (*model.Due, error) {
	return s.closeDue(ctx, ownerID, dueID, model.DueStatusWaived, false)
}

// Cancel 取消开错的应收款，已有入账时不允许
func (s *DueService) Cancel(ctx context.Context, ownerID, dueID int64) (*model.Due, error) {
	return s.closeDue(ctx, ownerID, dueID, model.DueStatusCancelled, true)
}

func (s *DueService) closeDue(ctx context.Context, ownerID, dueID int64, toStatus string, requireUnpaid bool) (*model.Due, error) {
	if err := s.authorize(ctx, ownerID, dueID); err != nil {
		return nil, err
	}
	if err := s.dueRepo.Close(ctx, dueID, model.PayableDueStatuses, toStatus, requireUnpaid); err != nil {
		return nil, err
	}

	slog.Info("应收款已关闭", "due_id", dueID, "status", toStatus)
	return s.dueRepo.GetByID(ctx, nil, dueID)
}

func (s *DueService) AddFine(ctx context.Context, ownerID, dueID int64, req *AddFineRequest) (*model.Due, error) {
	fine, err := parseAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, ownerID, dueID); err != nil {
		return nil, err
	}
	if err := s.dueRepo.AddFine(ctx, dueID, fine); err != nil {
		return nil, err
	}
	return s.dueRepo.GetByID(ctx, nil, dueID)
}

// MarkOverdue 由定时任务调用
func (s *DueService) MarkOverdue(ctx context.Context) (int64, error) {
	n, err := s.dueRepo.MarkOverdue(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("标记逾期失败: %w", err)
	}
	return n, nil
}

func (s *DueService) ListByStudent(ctx context.Context, studentID int64) ([]*model.Due, error) {
	return s.dueRepo.ListByStudent(ctx, studentID)
}

func (s *DueService) authorize(ctx context.Context, ownerID, dueID int64) error {
	due, err := s.dueRepo.GetByID(ctx, nil, dueID)
	if err != nil {
		return err
	}
	if due.OwnerID != ownerID {
		return repository.ErrForbidden
	}
	return nil
}

// StudentOwner 返回学生当前所属业主，未入住返回 0
func (s *DueService) StudentOwner(ctx context.Context, studentID int64) (int64, error) {
	student, err := s.studentRepo.GetByID(ctx, nil, studentID)
	if err != nil {
		return 0, err
	}
	if student.OwnerID == nil {
		return 0, nil
	}
	return *student.OwnerID, nil
}
