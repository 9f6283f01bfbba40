package job

import (
	"context"
	"log/slog"
	"time"

	"hostelsystem/internal/config"
	"hostelsystem/internal/service"
)

// DueOverdueJob 把到期未结清的应收款标记为 OVERDUE
type DueOverdueJob struct {
	dueService *service.DueService
	stopCh     chan struct{}
	interval   time.Duration
}

func NewDueOverdueJob(dueService *service.DueService, cfg *config.Config) *DueOverdueJob {
	interval := time.Duration(cfg.Business.OverdueScanIntervalSecond) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &DueOverdueJob{
		dueService: dueService,
		stopCh:     make(chan struct{}),
		interval:   interval,
	}
}

func (j *DueOverdueJob) Start(ctx context.Context) {
	slog.Info("[DueOverdueJob] 逾期扫描任务启动", "interval", j.interval)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("[DueOverdueJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			slog.Info("[DueOverdueJob] 任务停止")
			return
		case <-ticker.C:
			j.markOverdue(ctx)
		}
	}
}

func (j *DueOverdueJob) Stop() {
	close(j.stopCh)
}

func (j *DueOverdueJob) markOverdue(ctx context.Context) {
	n, err := j.dueService.MarkOverdue(ctx)
	if err != nil {
		slog.Error("[DueOverdueJob] 标记逾期失败", "error", err)
		return
	}
	if n > 0 {
		slog.Info("[DueOverdueJob] 应收款已逾期", "count", n)
	}
}
