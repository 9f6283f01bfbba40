package repository

import (
	"context"
	"errors"
	"time"

	"hostelsystem/internal/model"

	"gorm.io/gorm"
)

var ErrDuplicateReceipt = errors.New("收据号已存在")

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.Transaction) error {
	err := dbOr(tx, r.db).WithContext(ctx).Create(trans).Error
	if IsDuplicateKey(err) {
		return ErrDuplicateReceipt
	}
	return err
}

func (r *TransactionRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Transaction, error) {
	return r.first(ctx, tx, "id = ?", id)
}

func (r *TransactionRepository) GetByGatewayOrderID(ctx context.Context, orderID string) (*model.Transaction, error) {
	return r.first(ctx, nil, "gateway_order_id = ?", orderID)
}

// GetByReceipt 不存在时返回 nil, nil
func (r *TransactionRepository) GetByReceipt(ctx context.Context, receipt string) (*model.Transaction, error) {
	trans, err := r.first(ctx, nil, "receipt = ?", receipt)
	if errors.Is(err, ErrTransactionNotFound) {
		return nil, nil
	}
	return trans, err
}

// GetByGatewayPaymentID 不存在时返回 nil, nil
func (r *TransactionRepository) GetByGatewayPaymentID(ctx context.Context, paymentID string) (*model.Transaction, error) {
	trans, err := r.first(ctx, nil, "gateway_payment_id = ?", paymentID)
	if errors.Is(err, ErrTransactionNotFound) {
		return nil, nil
	}
	return trans, err
}

func (r *TransactionRepository) first(ctx context.Context, tx *gorm.DB, query string, arg interface{}) (*model.Transaction, error) {
	var trans model.Transaction
	err := dbOr(tx, r.db).WithContext(ctx).Where(query, arg).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

// UpdateStatus 条件更新交易状态，终态交易不会被修改
func (r *TransactionRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, fromStatuses []string, toStatus string, extra map[string]interface{}) error {
	for _, from := range fromStatuses {
		if !model.CanTransactionTransition(from, toStatus) {
			return ErrInvalidTransition
		}
	}

	db := dbOr(tx, r.db)
	updates := map[string]interface{}{
		"status": toStatus,
	}
	for k, v := range extra {
		updates[k] = v
	}
	if toStatus == model.TransactionStatusSuccess {
		updates["verified_at"] = time.Now()
	}

	result := db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ? AND status IN ?", id, fromStatuses).
		Updates(updates)

	if result.Error != nil {
		if IsDuplicateKey(result.Error) {
			return ErrInvalidTransition
		}
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

// ListStale 查询在某状态停留超过 before 的交易，供对账任务使用
func (r *TransactionRepository) ListStale(ctx context.Context, status string, before time.Time, limit int) ([]*model.Transaction, error) {
	var transactions []*model.Transaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", status, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&transactions).Error
	return transactions, err
}

// ListFailedByReason 查询 since 之后因指定原因失败的交易
func (r *TransactionRepository) ListFailedByReason(ctx context.Context, reason string, since time.Time, limit int) ([]*model.Transaction, error) {
	var transactions []*model.Transaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND failure_reason = ? AND updated_at >= ?", model.TransactionStatusFailed, reason, since).
		Order("updated_at ASC").
		Limit(limit).
		Find(&transactions).Error
	return transactions, err
}

func (r *TransactionRepository) ListByStudent(ctx context.Context, studentID int64, page, pageSize int) ([]*model.Transaction, int64, error) {
	var transactions []*model.Transaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Transaction{}).Where("student_id = ?", studentID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}
