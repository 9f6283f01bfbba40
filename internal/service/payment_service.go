package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hostelsystem/internal/config"
	"hostelsystem/internal/gateway"
	"hostelsystem/internal/infrastructure/lock"
	"hostelsystem/internal/metrics"
	"hostelsystem/internal/model"
	"hostelsystem/internal/repository"
	"hostelsystem/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// PaymentService 支付校验与入账
//
// 流程：CreateOrder 登记 PENDING 交易 -> 网关收款 -> Verify 校验签名，
// 转 VERIFICATION_PENDING -> 向网关确认实收金额（不持锁）-> 持短锁在一个事务内
// 转 SUCCESS、记入应收款、多付部分记入学生余额、写 outbox。
// 同一 gateway_payment_id 只会入账一次
type PaymentService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	gw          gateway.Gateway
	dueRepo     *repository.DueRepository
	txnRepo     *repository.TransactionRepository
	studentRepo *repository.StudentRepository
	outboxRepo  *repository.OutboxRepository
}

func NewPaymentService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, gw gateway.Gateway) *PaymentService {
	return &PaymentService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		gw:          gw,
		dueRepo:     repository.NewDueRepository(db),
		txnRepo:     repository.NewTransactionRepository(db),
		studentRepo: repository.NewStudentRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

type CreateOrderRequest struct {
	DueID     int64  `json:"due_id" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
	ReceiptID string `json:"receipt_id" binding:"required,max=40"`
}

type CreateOrderResponse struct {
	TransactionID int64  `json:"transaction_id"`
	OrderID       string `json:"order_id"`
	GatewayKey    string `json:"gateway_key"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
}

type VerifyRequest struct {
	OrderID   string `json:"order_id" binding:"required,max=64"`
	PaymentID string `json:"payment_id" binding:"required,max=64"`
	Signature string `json:"signature" binding:"required,max=128"`
	// Amount 客户端声明的金额，仅用于比对日志，入账以网关为准
	Amount string `json:"amount" binding:"omitempty"`
}

type VerifyResponse struct {
	TransactionID int64  `json:"transaction_id"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
}

type OfflinePaymentRequest struct {
	DueID     int64  `json:"due_id" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
	Mode      string `json:"mode" binding:"required,oneof=CASH BANK_TRANSFER"`
	InvoiceID string `json:"invoice_id" binding:"max=64"`
}

// CreateOrder 为应收款创建网关订单，同一 receipt 重复提交返回已有交易
func (s *PaymentService) CreateOrder(ctx context.Context, studentID int64, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	existing, err := s.txnRepo.GetByReceipt(ctx, req.ReceiptID)
	if err != nil {
		return nil, fmt.Errorf("查询交易失败: %w", err)
	}
	if existing != nil {
		if existing.StudentID != studentID {
			return nil, repository.ErrForbidden
		}
		return s.orderResponse(existing), nil
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	due, err := s.dueRepo.GetByID(ctx, nil, req.DueID)
	if err != nil {
		return nil, err
	}
	if due.StudentID != studentID {
		return nil, repository.ErrForbidden
	}
	if !due.Payable() {
		return nil, fmt.Errorf("%w: 应收款状态为 %s", repository.ErrInvalidTransition, due.Status)
	}
	if amount > due.RemainingAmount() {
		return nil, fmt.Errorf("%w: 超过剩余应收 %d", repository.ErrInvalidAmount, due.RemainingAmount())
	}

	order, err := s.gw.CreateOrder(ctx, amount, s.cfg.Gateway.Currency, req.ReceiptID)
	if err != nil {
		return nil, gatewayError(err)
	}

	trans := &model.Transaction{
		TransactionNo:  idgen.GenerateTransactionNo(),
		StudentID:      studentID,
		HostelID:       due.HostelID,
		DueID:          &due.ID,
		Amount:         amount,
		Currency:       s.cfg.Gateway.Currency,
		Mode:           model.PaymentModeOnline,
		Status:         model.TransactionStatusPending,
		Receipt:        req.ReceiptID,
		GatewayOrderID: &order.ID,
	}
	if err := s.txnRepo.Create(ctx, nil, trans); err != nil {
		if errors.Is(err, repository.ErrDuplicateReceipt) {
			// 并发的相同 receipt，网关侧按幂等键返回同一订单
			existing, err := s.txnRepo.GetByReceipt(ctx, req.ReceiptID)
			if err != nil || existing == nil {
				return nil, fmt.Errorf("查询交易失败: %w", err)
			}
			return s.orderResponse(existing), nil
		}
		return nil, fmt.Errorf("登记交易失败: %w", err)
	}

	slog.Info("支付订单已创建", "transaction_no", trans.TransactionNo, "order_id", order.ID, "due_id", due.ID, "amount", amount)
	return s.orderResponse(trans), nil
}

func (s *PaymentService) orderResponse(t *model.Transaction) *CreateOrderResponse {
	resp := &CreateOrderResponse{
		TransactionID: t.ID,
		GatewayKey:    s.gw.KeyID(),
		Amount:        t.Amount,
		Currency:      t.Currency,
	}
	if t.GatewayOrderID != nil {
		resp.OrderID = *t.GatewayOrderID
	}
	return resp
}

// Verify 校验网关回调并入账，以 paymentID 幂等
func (s *PaymentService) Verify(ctx context.Context, req *VerifyRequest) (*VerifyResponse, error) {
	trans, err := s.txnRepo.GetByGatewayOrderID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	if !gateway.VerifySignature(s.cfg.Gateway.KeySecret, req.OrderID, req.PaymentID, req.Signature) {
		metrics.PaymentVerifications.WithLabelValues("signature_mismatch").Inc()
		slog.Warn("支付签名校验失败", "transaction_id", trans.ID, "order_id", req.OrderID, "payment_id", req.PaymentID)
		if trans.Status == model.TransactionStatusPending {
			if err := s.markFailed(ctx, trans, failureSignatureMismatch); err != nil && !errors.Is(err, repository.ErrInvalidTransition) {
				return nil, err
			}
		}
		return nil, repository.ErrSignatureMismatch
	}

	// 去重：已入账的同一笔支付直接返回
	if done, resp, err := s.checkApplied(trans, req.PaymentID); done {
		return resp, err
	}

	if trans.Status == model.TransactionStatusPending {
		err := s.txnRepo.UpdateStatus(ctx, nil, trans.ID,
			[]string{model.TransactionStatusPending}, model.TransactionStatusVerificationPending,
			map[string]interface{}{
				"gateway_payment_id": req.PaymentID,
				"gateway_signature":  req.Signature,
			})
		if err != nil && !errors.Is(err, repository.ErrInvalidTransition) {
			return nil, err
		}
		// 并发回调：重新读取后按最新状态处理
		if trans, err = s.txnRepo.GetByID(ctx, nil, trans.ID); err != nil {
			return nil, err
		}
		if done, resp, err := s.checkApplied(trans, req.PaymentID); done {
			return resp, err
		}
	}

	if trans.Status != model.TransactionStatusVerificationPending ||
		trans.GatewayPaymentID == nil || *trans.GatewayPaymentID != req.PaymentID {
		return nil, fmt.Errorf("%w: 交易已绑定其他支付", repository.ErrInvalidTransition)
	}

	// 网络调用不持锁、不在事务内
	order, err := s.gw.FetchOrder(ctx, req.OrderID)
	if err != nil {
		metrics.PaymentVerifications.WithLabelValues("gateway_unavailable").Inc()
		slog.Warn("网关确认失败，交易保持 VERIFICATION_PENDING", "transaction_id", trans.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", repository.ErrGatewayUnavailable, err)
	}
	if !order.Paid() {
		metrics.PaymentVerifications.WithLabelValues("gateway_unavailable").Inc()
		return nil, fmt.Errorf("%w: 网关订单状态为 %s", repository.ErrGatewayUnavailable, order.Status)
	}

	amount := order.SettledAmount()
	if req.Amount != "" {
		if claimed, err := parseAmount(req.Amount); err != nil || claimed != amount {
			slog.Warn("客户端金额与网关实收不一致", "transaction_id", trans.ID, "claimed", req.Amount, "settled", amount)
		}
	}

	settled, err := s.settle(ctx, trans.ID, req.PaymentID, amount)
	if err != nil {
		metrics.PaymentVerifications.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.PaymentVerifications.WithLabelValues("success").Inc()
	return &VerifyResponse{TransactionID: settled.ID, Status: settled.Status, Amount: settled.Amount}, nil
}

// checkApplied 处理终态交易：同一 paymentID 的 SUCCESS 幂等返回，其余终态拒绝
func (s *PaymentService) checkApplied(trans *model.Transaction, paymentID string) (bool, *VerifyResponse, error) {
	if !trans.Final() {
		return false, nil, nil
	}
	if trans.Status == model.TransactionStatusSuccess &&
		trans.GatewayPaymentID != nil && *trans.GatewayPaymentID == paymentID {
		metrics.PaymentVerifications.WithLabelValues("duplicate").Inc()
		return true, &VerifyResponse{TransactionID: trans.ID, Status: trans.Status, Amount: trans.Amount}, nil
	}
	return true, nil, fmt.Errorf("%w: 交易状态为 %s", repository.ErrInvalidTransition, trans.Status)
}

// settle 持支付号锁入账；应收款版本冲突时整体重试一次
func (s *PaymentService) settle(ctx context.Context, transID int64, paymentID string, amount int64) (*model.Transaction, error) {
	settleLock := lock.NewSettleLock(s.redisClient, paymentID)
	if err := settleLock.Lock(ctx, 50*time.Millisecond, 100); err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrConcurrencyConflict, err)
	}
	defer settleLock.Unlock(ctx)

	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			trans, err := s.txnRepo.GetByID(ctx, tx, transID)
			if err != nil {
				return err
			}
			if trans.Status == model.TransactionStatusSuccess {
				return nil
			}

			if err := s.txnRepo.UpdateStatus(ctx, tx, transID,
				[]string{model.TransactionStatusVerificationPending}, model.TransactionStatusSuccess,
				map[string]interface{}{"amount": amount}); err != nil {
				return err
			}
			trans.Amount = amount
			trans.Status = model.TransactionStatusSuccess

			applied, excess, err := s.applyToDue(ctx, tx, trans)
			if err != nil {
				return err
			}
			return s.publishPayment(ctx, tx, trans, model.EventPaymentSucceeded, applied, excess)
		})
		if !errors.Is(err, repository.ErrConcurrencyConflict) {
			break
		}
		slog.Warn("应收款并发入账冲突，重试", "transaction_id", transID, "attempt", attempt+1)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("支付入账成功", "transaction_id", transID, "payment_id", paymentID, "amount", amount)
	return s.txnRepo.GetByID(ctx, nil, transID)
}

// applyToDue 入账到应收款，超出剩余应收的部分记入学生余额
func (s *PaymentService) applyToDue(ctx context.Context, tx *gorm.DB, trans *model.Transaction) (applied, excess int64, err error) {
	excess = trans.Amount
	if trans.DueID != nil {
		due, err := s.dueRepo.GetByID(ctx, tx, *trans.DueID)
		if err != nil {
			return 0, 0, err
		}
		applied, excess, err = s.dueRepo.ApplyPayment(ctx, tx, due, trans.Amount)
		if err != nil {
			return 0, 0, err
		}
	}

	if excess > 0 {
		if err := s.studentRepo.AddBalance(ctx, tx, trans.StudentID, excess); err != nil {
			return 0, 0, fmt.Errorf("记入预存余额失败: %w", err)
		}
		slog.Info("多付款项记入学生余额", "transaction_id", trans.ID, "student_id", trans.StudentID, "excess", excess)
	}
	return applied, excess, nil
}

// RecordOfflinePayment 业主登记现金/转账收款，直接入账
func (s *PaymentService) RecordOfflinePayment(ctx context.Context, ownerID int64, req *OfflinePaymentRequest) (*model.Transaction, error) {
	if req.Mode != model.PaymentModeCash && req.Mode != model.PaymentModeBankTransfer {
		return nil, fmt.Errorf("%w: 不支持的收款方式 %s", repository.ErrInvalidArgument, req.Mode)
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	due, err := s.dueRepo.GetByID(ctx, nil, req.DueID)
	if err != nil {
		return nil, err
	}
	if due.OwnerID != ownerID {
		return nil, repository.ErrForbidden
	}
	if !due.Payable() {
		return nil, fmt.Errorf("%w: 应收款状态为 %s", repository.ErrInvalidTransition, due.Status)
	}
	if amount > due.RemainingAmount() {
		return nil, fmt.Errorf("%w: 超过剩余应收 %d", repository.ErrInvalidAmount, due.RemainingAmount())
	}

	var invoiceID *string
	if req.InvoiceID != "" {
		invoiceID = &req.InvoiceID
	}

	trans := &model.Transaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		StudentID:     due.StudentID,
		HostelID:      due.HostelID,
		DueID:         &due.ID,
		InvoiceID:     invoiceID,
		Amount:        amount,
		Currency:      s.cfg.Gateway.Currency,
		Mode:          req.Mode,
		Receipt:       idgen.GenerateReceipt(),
	}

	for attempt := 0; attempt < 2; attempt++ {
		trans.ID = 0
		trans.Status = model.TransactionStatusPending
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.txnRepo.Create(ctx, tx, trans); err != nil {
				return fmt.Errorf("登记交易失败: %w", err)
			}
			if err := s.txnRepo.UpdateStatus(ctx, tx, trans.ID,
				[]string{model.TransactionStatusPending}, model.TransactionStatusSuccess, nil); err != nil {
				return err
			}
			trans.Status = model.TransactionStatusSuccess

			applied, excess, err := s.applyToDue(ctx, tx, trans)
			if err != nil {
				return err
			}
			return s.publishPayment(ctx, tx, trans, model.EventPaymentSucceeded, applied, excess)
		})
		if !errors.Is(err, repository.ErrConcurrencyConflict) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	slog.Info("线下收款已入账", "transaction_no", trans.TransactionNo, "due_id", due.ID, "mode", req.Mode, "amount", amount)
	return s.txnRepo.GetByID(ctx, nil, trans.ID)
}

// GetTransaction 学生只能查看自己的交易，业主只能查看自己宿舍的交易
func (s *PaymentService) GetTransaction(ctx context.Context, actor Actor, transID int64) (*model.Transaction, error) {
	trans, err := s.txnRepo.GetByID(ctx, nil, transID)
	if err != nil {
		return nil, err
	}
	if actor.IsStudent(trans.StudentID) {
		return trans, nil
	}
	if actor.IsOwner() && trans.DueID != nil {
		due, err := s.dueRepo.GetByID(ctx, nil, *trans.DueID)
		if err != nil {
			return nil, err
		}
		if due.OwnerID == actor.UserID {
			return trans, nil
		}
	}
	return nil, repository.ErrForbidden
}

func (s *PaymentService) ListTransactions(ctx context.Context, studentID int64, page, pageSize int) ([]*model.Transaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.txnRepo.ListByStudent(ctx, studentID, page, pageSize)
}

// 签名校验失败的交易原因，对账时据此找出被伪造回调抢先置为失败的已收款订单
const failureSignatureMismatch = "签名校验失败"

// ReconcileResult 一轮对账的处理结果
type ReconcileResult struct {
	Settled int
	Failed  int
	Skipped int
	Flagged int // 需人工核对
}

// ReconcilePending 对账：
//   - VERIFICATION_PENDING 停留过久：网关已收款则入账，订单过期未付则置为失败
//   - PENDING 超过订单有效期：置为失败；网关显示已收款时只告警，等待人工处理
//   - 订单有效期内因签名校验失败的交易：网关显示已收款时告警一次，等待人工处理
func (s *PaymentService) ReconcilePending(ctx context.Context, batch int) (*ReconcileResult, error) {
	result := &ReconcileResult{}
	now := time.Now()
	expireBefore := now.Add(-time.Duration(s.cfg.Business.OrderExpireMinutes) * time.Minute)
	staleBefore := now.Add(-time.Duration(s.cfg.Business.VerificationStaleMinutes) * time.Minute)

	stale, err := s.txnRepo.ListStale(ctx, model.TransactionStatusVerificationPending, staleBefore, batch)
	if err != nil {
		return nil, fmt.Errorf("查询待确认交易失败: %w", err)
	}
	for _, trans := range stale {
		if trans.GatewayOrderID == nil || trans.GatewayPaymentID == nil {
			result.Skipped++
			continue
		}
		order, err := s.gw.FetchOrder(ctx, *trans.GatewayOrderID)
		if err != nil {
			slog.Warn("对账查询网关失败", "transaction_id", trans.ID, "error", err)
			result.Skipped++
			continue
		}

		switch {
		case order.Paid():
			if _, err := s.settle(ctx, trans.ID, *trans.GatewayPaymentID, order.SettledAmount()); err != nil {
				slog.Error("对账入账失败", "transaction_id", trans.ID, "error", err)
				result.Skipped++
				continue
			}
			result.Settled++
		case trans.CreatedAt.Before(expireBefore):
			if err := s.markFailed(ctx, trans, "网关订单过期未支付"); err != nil {
				slog.Error("对账置失败出错", "transaction_id", trans.ID, "error", err)
				result.Skipped++
				continue
			}
			result.Failed++
		default:
			result.Skipped++
		}
	}

	expired, err := s.txnRepo.ListStale(ctx, model.TransactionStatusPending, expireBefore, batch)
	if err != nil {
		return nil, fmt.Errorf("查询过期交易失败: %w", err)
	}
	for _, trans := range expired {
		if trans.Mode != model.PaymentModeOnline || trans.GatewayOrderID == nil {
			result.Skipped++
			continue
		}
		order, err := s.gw.FetchOrder(ctx, *trans.GatewayOrderID)
		if err != nil {
			slog.Warn("对账查询网关失败", "transaction_id", trans.ID, "error", err)
			result.Skipped++
			continue
		}
		if order.Paid() {
			slog.Warn("网关已收款但未收到校验回调，需人工核对", "transaction_id", trans.ID, "order_id", order.ID)
			result.Skipped++
			continue
		}
		if err := s.markFailed(ctx, trans, "订单过期未支付"); err != nil {
			slog.Error("对账置失败出错", "transaction_id", trans.ID, "error", err)
			result.Skipped++
			continue
		}
		result.Failed++
	}

	suspects, err := s.txnRepo.ListFailedByReason(ctx, failureSignatureMismatch, expireBefore, batch)
	if err != nil {
		return nil, fmt.Errorf("查询签名失败交易失败: %w", err)
	}
	for _, trans := range suspects {
		if trans.GatewayOrderID == nil {
			continue
		}
		order, err := s.gw.FetchOrder(ctx, *trans.GatewayOrderID)
		if err != nil {
			slog.Warn("对账查询网关失败", "transaction_id", trans.ID, "error", err)
			result.Skipped++
			continue
		}
		if !order.Paid() {
			continue
		}
		// 同一笔交易只告警一次
		first, err := s.redisClient.SetNX(ctx, fmt.Sprintf("reconcile:flagged:%d", trans.ID), 1, 24*time.Hour).Result()
		if err != nil {
			slog.Warn("记录告警标记失败", "transaction_id", trans.ID, "error", err)
			result.Skipped++
			continue
		}
		if !first {
			continue
		}
		slog.Warn("交易因签名校验失败已关闭，但网关显示已收款，需人工核对",
			"transaction_id", trans.ID, "order_id", order.ID, "amount", order.SettledAmount())
		result.Flagged++
	}

	return result, nil
}

func (s *PaymentService) markFailed(ctx context.Context, trans *model.Transaction, reason string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.txnRepo.UpdateStatus(ctx, tx, trans.ID,
			[]string{model.TransactionStatusPending, model.TransactionStatusVerificationPending},
			model.TransactionStatusFailed,
			map[string]interface{}{"failure_reason": reason}); err != nil {
			return err
		}
		trans.Status = model.TransactionStatusFailed
		trans.FailureReason = reason
		return s.publishPayment(ctx, tx, trans, model.EventPaymentFailed, 0, 0)
	})
}

func (s *PaymentService) publishPayment(ctx context.Context, tx *gorm.DB, trans *model.Transaction, event string, applied, excess int64) error {
	return s.outboxRepo.Publish(ctx, tx, s.cfg.Kafka.Topic.PaymentEvents, trans.TransactionNo, event,
		map[string]interface{}{
			"transaction_id": trans.ID,
			"transaction_no": trans.TransactionNo,
			"student_id":     trans.StudentID,
			"hostel_id":      trans.HostelID,
			"due_id":         trans.DueID,
			"amount":         trans.Amount,
			"applied":        applied,
			"excess":         excess,
			"mode":           trans.Mode,
			"status":         trans.Status,
			"failure_reason": trans.FailureReason,
		})
}

// gatewayError 网关故障统一映射为 ErrGatewayUnavailable，网关明确拒绝的请求原样返回
func gatewayError(err error) error {
	if errors.Is(err, gateway.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", repository.ErrGatewayUnavailable, err)
	}
	return fmt.Errorf("支付网关拒绝请求: %w", err)
}
