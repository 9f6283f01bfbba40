package repository

import (
	"context"

	"hostelsystem/internal/model"

	"gorm.io/gorm"
)

type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Create(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error {
	return dbOr(tx, r.db).WithContext(ctx).Create(msg).Error
}

// Publish 组装事件并与业务数据在同一事务中落库
func (r *OutboxRepository) Publish(ctx context.Context, tx *gorm.DB, topic, key, eventType string, data any) error {
	msg, err := model.NewOutboxMessage(topic, key, eventType, data)
	if err != nil {
		return err
	}
	return r.Create(ctx, tx, msg)
}

func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ? AND status = ?", id, model.OutboxStatusPending).
		Update("status", model.OutboxStatusSent).Error
}

// RecordFailure 记录一次投递失败，达到 maxRetry 后转为 FAILED 不再投递
func (r *OutboxRepository) RecordFailure(ctx context.Context, msg *model.OutboxMessage, maxRetry int) (bool, error) {
	exhausted := msg.RetryCount+1 >= maxRetry
	status := model.OutboxStatusPending
	if exhausted {
		status = model.OutboxStatusFailed
	}

	err := r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ? AND status = ?", msg.ID, model.OutboxStatusPending).
		Updates(map[string]interface{}{
			"retry_count": gorm.Expr("retry_count + 1"),
			"status":      status,
		}).Error
	return exhausted, err
}
