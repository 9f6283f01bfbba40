package job

import (
	"context"
	"log/slog"
	"time"

	"hostelsystem/internal/config"
	"hostelsystem/internal/service"
)

// PaymentReconcileJob 对账补偿：处理卡在 VERIFICATION_PENDING 或过期未支付的交易
type PaymentReconcileJob struct {
	paymentService *service.PaymentService
	cfg            *config.Config
	stopCh         chan struct{}
	interval       time.Duration
	batchSize      int
}

func NewPaymentReconcileJob(paymentService *service.PaymentService, cfg *config.Config) *PaymentReconcileJob {
	interval := time.Duration(cfg.Business.ReconcileIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &PaymentReconcileJob{
		paymentService: paymentService,
		cfg:            cfg,
		stopCh:         make(chan struct{}),
		interval:       interval,
		batchSize:      50,
	}
}

func (j *PaymentReconcileJob) Start(ctx context.Context) {
	slog.Info("[PaymentReconcileJob] 对账任务启动", "interval", j.interval)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("[PaymentReconcileJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			slog.Info("[PaymentReconcileJob] 任务停止")
			return
		case <-ticker.C:
			j.reconcile(ctx)
		}
	}
}

func (j *PaymentReconcileJob) Stop() {
	close(j.stopCh)
}

func (j *PaymentReconcileJob) reconcile(ctx context.Context) {
	result, err := j.paymentService.ReconcilePending(ctx, j.batchSize)
	if err != nil {
		slog.Error("[PaymentReconcileJob] 对账失败", "error", err)
		return
	}
	if result.Settled+result.Failed+result.Flagged > 0 {
		slog.Info("[PaymentReconcileJob] 本轮对账完成",
			"settled", result.Settled, "failed", result.Failed, "flagged", result.Flagged, "skipped", result.Skipped)
	}
}
