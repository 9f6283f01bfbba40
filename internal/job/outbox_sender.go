package job

import (
	"context"
	"log/slog"
	"time"

	"hostelsystem/internal/config"
	"hostelsystem/internal/metrics"
	"hostelsystem/internal/model"
	"hostelsystem/internal/repository"

	"gorm.io/gorm"
)

// MessageSender 由 mq.Publisher 实现
type MessageSender interface {
	Send(topic, key, value string) error
}

// OutboxSender 把事务内写入的领域事件投递到 Kafka，至少一次
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	sender     MessageSender
	cfg        *config.Config
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewOutboxSender(db *gorm.DB, sender MessageSender, cfg *config.Config) *OutboxSender {
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		sender:     sender,
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		interval:   100 * time.Millisecond,
		batchSize:  100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	slog.Info("[OutboxSender] 消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			slog.Info("[OutboxSender] 任务停止")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

func (s *OutboxSender) processPendingMessages(ctx context.Context) {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		slog.Error("[OutboxSender] 查询消息失败", "error", err)
		return
	}

	for _, msg := range messages {
		s.sendMessage(ctx, msg)
	}
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) {
	err := s.sender.Send(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		metrics.OutboxPublished.WithLabelValues("sent").Inc()
		if updateErr := s.outboxRepo.MarkSent(ctx, msg.ID); updateErr != nil {
			slog.Error("[OutboxSender] 更新消息状态失败", "id", msg.ID, "error", updateErr)
			return
		}
		slog.Debug("[OutboxSender] 消息发送成功", "id", msg.ID, "topic", msg.Topic, "event", msg.EventType)
		return
	}

	metrics.OutboxPublished.WithLabelValues("error").Inc()
	slog.Warn("[OutboxSender] 消息发送失败", "id", msg.ID, "retry", msg.RetryCount, "error", err)

	exhausted, err := s.outboxRepo.RecordFailure(ctx, msg, s.cfg.Business.MaxRetryCount)
	if err != nil {
		slog.Error("[OutboxSender] 记录失败次数失败", "id", msg.ID, "error", err)
		return
	}
	if exhausted {
		slog.Error("[OutboxSender] 消息超过最大重试次数，标记为失败", "id", msg.ID, "event", msg.EventType)
	}
}
