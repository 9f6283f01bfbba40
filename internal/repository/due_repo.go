package repository

import (
	"context"
	"errors"
	"time"

	"hostelsystem/internal/model"

	"gorm.io/gorm"
)

type DueRepository struct {
	db *gorm.DB
}

func NewDueRepository(db *gorm.DB) *DueRepository {
	return &DueRepository{db: db}
}

func (r *DueRepository) Create(ctx context.Context, tx *gorm.DB, due *model.Due) error {
	return dbOr(tx, r.db).WithContext(ctx).Create(due).Error
}

func (r *DueRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Due, error) {
	var due model.Due
	err := dbOr(tx, r.db).WithContext(ctx).Where("id = ?", id).First(&due).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDueNotFound
		}
		return nil, err
	}
	return &due, nil
}

// ApplyPayment 按版本号把一笔已确认的款项记入应收款
//
// 入账金额不超过剩余应收，超出部分作为 excess 返回由调用方处理。
// 版本号不匹配返回 ErrConcurrencyConflict，调用方重新读取后重试
func (r *DueRepository) ApplyPayment(ctx context.Context, tx *gorm.DB, due *model.Due, amount int64) (applied, excess int64, err error) {
	if amount <= 0 {
		return 0, 0, ErrInvalidAmount
	}
	if !due.Payable() {
		return 0, amount, nil
	}

	applied = amount
	if remaining := due.RemainingAmount(); applied > remaining {
		applied = remaining
	}
	excess = amount - applied
	if applied == 0 {
		return 0, excess, nil
	}

	newPaid := due.PaidAmount + applied
	newStatus := due.SettledStatus(newPaid)
	updates := map[string]interface{}{
		"paid_amount": newPaid,
		"status":      newStatus,
		"version":     gorm.Expr("version + 1"),
	}
	if newStatus == model.DueStatusPaid {
		updates["paid_at"] = time.Now()
	}

	result := dbOr(tx, r.db).WithContext(ctx).
		Model(&model.Due{}).
		Where("id = ? AND version = ?", due.ID, due.Version).
		Updates(updates)

	if result.Error != nil {
		return 0, 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, 0, ErrConcurrencyConflict
	}

	due.PaidAmount = newPaid
	due.Status = newStatus
	due.Version++
	return applied, excess, nil
}

// Close 减免或取消，fromStatuses 之外的状态视为非法流转
func (r *DueRepository) Close(ctx context.Context, id int64, fromStatuses []string, toStatus string, requireUnpaid bool) error {
	query := r.db.WithContext(ctx).
		Model(&model.Due{}).
		Where("id = ? AND status IN ?", id, fromStatuses)
	if requireUnpaid {
		query = query.Where("paid_amount = 0")
	}

	result := query.Updates(map[string]interface{}{
		"status":  toStatus,
		"version": gorm.Expr("version + 1"),
	})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, nil, id); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	return nil
}

// AddFine 追加滞纳金，仅对可收款状态生效
func (r *DueRepository) AddFine(ctx context.Context, id int64, fine int64) error {
	result := r.db.WithContext(ctx).
		Model(&model.Due{}).
		Where("id = ? AND status IN ?", id, model.PayableDueStatuses).
		Updates(map[string]interface{}{
			"fine_amount": gorm.Expr("fine_amount + ?", fine),
			"version":     gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, nil, id); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	return nil
}

// MarkOverdue 到期未结清的应收款批量标记为 OVERDUE
func (r *DueRepository) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Due{}).
		Where("status IN ? AND due_date < ?", []string{model.DueStatusPending, model.DueStatusPartial}, now).
		Updates(map[string]interface{}{
			"status":  model.DueStatusOverdue,
			"version": gorm.Expr("version + 1"),
		})
	return result.RowsAffected, result.Error
}

func (r *DueRepository) ListByStudent(ctx context.Context, studentID int64) ([]*model.Due, error) {
	var dues []*model.Due
	err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("due_date ASC").
		Find(&dues).Error
	return dues, err
}
