package model

import (
	"encoding/json"
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// 领域事件类型，下游通知服务按 event 字段分发
const (
	EventBookingCreated   = "booking.created"
	EventBookingApproved  = "booking.approved"
	EventBookingRejected  = "booking.rejected"
	EventBookingCancelled = "booking.cancelled"
	EventStudentVacated   = "student.vacated"
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
	EventDueCreated       = "due.created"
)

// OutboxMessage 与业务数据同事务写入，由 OutboxSender 投递到 Kafka
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	EventType  string    `gorm:"type:varchar(32);not null" json:"event_type"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}

type eventEnvelope struct {
	Event      string    `json:"event"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// NewOutboxMessage 组装事件消息，payload 统一为 {event, occurred_at, data}
func NewOutboxMessage(topic, key, eventType string, data any) (*OutboxMessage, error) {
	payload, err := json.Marshal(eventEnvelope{
		Event:      eventType,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	if err != nil {
		return nil, err
	}
	return &OutboxMessage{
		MessageKey: key,
		Topic:      topic,
		EventType:  eventType,
		Payload:    string(payload),
		Status:     OutboxStatusPending,
	}, nil
}
