package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hostelsystem/internal/gateway"
	"hostelsystem/internal/model"
	"hostelsystem/internal/repository"
	"hostelsystem/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type paymentFixture struct {
	env     *testEnv
	hostel  *model.Hostel
	student *model.Student
	due     *model.Due
}

func newPaymentFixture(t *testing.T, amount string) *paymentFixture {
	env := newTestEnv(t)
	h := env.hostel(t, 1, 5)
	s := env.activeStudent(t, h)
	return &paymentFixture{env: env, hostel: h, student: s, due: env.due(t, h, s.ID, amount)}
}

func (f *paymentFixture) order(t *testing.T, amount, receipt string) *CreateOrderResponse {
	t.Helper()
	resp, err := f.env.payments.CreateOrder(context.Background(), f.student.ID, &CreateOrderRequest{
		DueID: f.due.ID, Amount: amount, ReceiptID: receipt,
	})
	require.NoError(t, err)
	return resp
}

func (f *paymentFixture) transaction(t *testing.T, id int64) *model.Transaction {
	t.Helper()
	trans, err := f.env.payments.GetTransaction(context.Background(), Actor{UserID: f.student.ID, Role: RoleStudent}, id)
	require.NoError(t, err)
	return trans
}

func TestCreateOrderIsIdempotentByReceipt(t *testing.T) {
	f := newPaymentFixture(t, "5000")

	first := f.order(t, "5000", "rcpt-1")
	assert.Equal(t, int64(500000), first.Amount)
	assert.Equal(t, "INR", first.Currency)
	assert.Equal(t, "rzp_test_key", first.GatewayKey)
	assert.NotEmpty(t, first.OrderID)

	second := f.order(t, "5000", "rcpt-1")
	assert.Equal(t, first, second)

	trans := f.transaction(t, first.TransactionID)
	assert.Equal(t, model.TransactionStatusPending, trans.Status)
	assert.Equal(t, model.PaymentModeOnline, trans.Mode)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newPaymentFixture(t, "5000")
	ctx := context.Background()

	_, err := f.env.payments.CreateOrder(ctx, f.student.ID, &CreateOrderRequest{DueID: f.due.ID, Amount: "5000.01", ReceiptID: "r1"})
	assert.ErrorIs(t, err, repository.ErrInvalidAmount)

	_, err = f.env.payments.CreateOrder(ctx, f.student.ID, &CreateOrderRequest{DueID: f.due.ID, Amount: "-1", ReceiptID: "r2"})
	assert.ErrorIs(t, err, repository.ErrInvalidAmount)

	_, err = f.env.payments.CreateOrder(ctx, f.student.ID+1, &CreateOrderRequest{DueID: f.due.ID, Amount: "10", ReceiptID: "r3"})
	assert.ErrorIs(t, err, repository.ErrForbidden)

	f.env.gw.CreateErr = gateway.ErrUnavailable
	_, err = f.env.payments.CreateOrder(ctx, f.student.ID, &CreateOrderRequest{DueID: f.due.ID, Amount: "10", ReceiptID: "r4"})
	assert.ErrorIs(t, err, repository.ErrGatewayUnavailable)
}

func TestVerifySettlesDueScenario(t *testing.T) {
	f := newPaymentFixture(t, "5000")
	order := f.order(t, "5000", "rcpt-1")
	paymentID, sig := f.env.gw.Pay(order.OrderID, 500000)

	resp, err := f.env.payments.Verify(context.Background(), &VerifyRequest{
		OrderID: order.OrderID, PaymentID: paymentID, Signature: sig, Amount: "5000",
	})
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusSuccess, resp.Status)

	due := f.env.reloadDue(t, f.due.ID)
	assert.Equal(t, int64(500000), due.PaidAmount)
	assert.Equal(t, model.DueStatusPaid, due.Status)
	assert.Equal(t, int64(0), due.RemainingAmount())
	assert.NotNil(t, due.PaidAt)

	trans := f.transaction(t, order.TransactionID)
	assert.Equal(t, paymentID, *trans.GatewayPaymentID)
	assert.NotNil(t, trans.VerifiedAt)
	assert.Equal(t, int64(1), f.env.outboxEvents(t, model.EventPaymentSucceeded))
}

func TestVerifyIsIdempotent(t *testing.T) {
	f := newPaymentFixture(t, "5000")
	order := f.order(t, "2000", "rcpt-1")
	paymentID, sig := f.env.gw.Pay(order.OrderID, 200000)
	req := &VerifyRequest{OrderID: order.OrderID, PaymentID: paymentID, Signature: sig}

	first, err := f.env.payments.Verify(context.Background(), req)
	require.NoError(t, err)
	second, err := f.env.payments.Verify(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.Equal(t, model.TransactionStatusSuccess, second.Status)

	due := f.env.reloadDue(t, f.due.ID)
	assert.Equal(t, int64(200000), due.PaidAmount)
	assert.Equal(t, model.DueStatusPartial, due.Status)
	assert.Equal(t, int64(1), f.env.outboxEvents(t, model.EventPaymentSucceeded))
}

func TestConcurrentVerifyAppliesOnce(t *testing.T) {
	f := newPaymentFixture(t, "5000")
	order := f.order(t, "5000", "rcpt-1")
	paymentID, sig := f.env.gw.Pay(order.OrderID, 500000)
	req := &VerifyRequest{OrderID: order.OrderID, PaymentID: paymentID, Signature: sig}

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := f.env.payments.Verify(context.Background(), req)
			if assert.NoError(t, err) {
				assert.Equal(t, model.TransactionStatusSuccess, resp.Status)
			}
		}()
	}
	wg.Wait()

	due := f.env.reloadDue(t, f.due.ID)
	assert.Equal(t, int64(500000), due.PaidAmount)
	assert.Equal(t, int64(1), f.env.outboxEvents(t, model.EventPaymentSucceeded))
}

func TestVerifyRejectsTamperedPaymentID(t *testing.T) {
	f := newPaymentFixture(t, "5000")
	order := f.order(t, "5000", "rcpt-1")
	_, sig := f.env.gw.Pay(order.OrderID, 500000)

	_, err := f.env.payments.Verify(context.Background(), &VerifyRequest{
		OrderID: order.OrderID, PaymentID: "pay_forged", Signature: sig,
	})
	assert.ErrorIs(t, err, repository.ErrSignatureMismatch)

	due := f.env.reloadDue(t, f.due.ID)
	assert.Equal(t, int64(500000), due.RemainingAmount())
	assert.Equal(t, int64(0), due.PaidAmount)

	trans := f.transaction(t, order.TransactionID)
	assert.Equal(t, model.TransactionStatusFailed, trans.Status)
	assert.Equal(t, 0, f.env.gw.FetchCalls)
}

func TestVerifyGatewayFailureLeavesVerificationPending(t *testing.T) {
	f := newPaymentFixture(t, "5000")
	order := f.order(t, "5000", "rcpt-1")
	paymentID, sig := f.env.gw.Pay(order.OrderID, 500000)
	req := &VerifyRequest{OrderID: order.OrderID, PaymentID: paymentID, Signature: sig}

	f.env.gw.SetFetchErr(errors.New("timeout"))
	_, err := f.env.payments.Verify(context.Background(), req)
	assert.ErrorIs(t, err, repository.ErrGatewayUnavailable)

	trans := f.transaction(t, order.TransactionID)
	assert.Equal(t, model.TransactionStatusVerificationPending, trans.Status)
	assert.Equal(t, int64(0), f.env.reloadDue(t, f.due.ID).PaidAmount)

	// 网关恢复后重试成功
	f.env.gw.SetFetchErr(nil)
	resp, err := f.env.payments.Verify(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusSuccess, resp.Status)
	assert.Equal(t, int64(500000), f.env.reloadDue(t, f.due.ID).PaidAmount)
}

func TestVerifyUsesGatewayAmount(t *testing.T) {
	f := newPaymentFixture(t, "5000")
	order := f.order(t, "3000", "rcpt-1")
	// 网关实收与客户端声明不一致时以网关为准
	paymentID, sig := f.env.gw.Pay(order.OrderID, 100000)

	resp, err := f.env.payments.Verify(context.Background(), &VerifyRequest{
		OrderID: order.OrderID, PaymentID: paymentID, Signature: sig, Amount: "3000",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100000), resp.Amount)
	assert.Equal(t, int64(100000), f.env.reloadDue(t, f.due.ID).PaidAmount)
}

func TestVerifyUnknownOrder(t *testing.T) {
	f := newPaymentFixture(t, "5000")
	_, err := f.env.payments.Verify(context.Background(), &VerifyRequest{
		OrderID: "order_missing", PaymentID: "pay_1", Signature: gateway.Sign(testutil.GatewaySecret, "order_missing", "pay_1"),
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRacingPaymentsCreditExcessToBalance(t *testing.T) {
	f := newPaymentFixture(t, "5000")
	ctx := context.Background()

	// 两笔订单各 3000，在剩余 5000 时分别创建
	o1 := f.order(t, "3000", "rcpt-1")
	o2 := f.order(t, "3000", "rcpt-2")
	p1, s1 := f.env.gw.Pay(o1.OrderID, 300000)
	p2, s2 := f.env.gw.Pay(o2.OrderID, 300000)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := f.env.payments.Verify(ctx, &VerifyRequest{OrderID: o1.OrderID, PaymentID: p1, Signature: s1})
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := f.env.payments.Verify(ctx, &VerifyRequest{OrderID: o2.OrderID, PaymentID: p2, Signature: s2})
		assert.NoError(t, err)
	}()
	wg.Wait()

	due := f.env.reloadDue(t, f.due.ID)
	assert.Equal(t, int64(500000), due.PaidAmount)
	assert.Equal(t, model.DueStatusPaid, due.Status)

	student, err := f.env.registry.Get(ctx, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), student.Balance)
}

func TestRecordOfflinePayment(t *testing.T) {
	f := newPaymentFixture(t, "5000")
	ctx := context.Background()

	trans, err := f.env.payments.RecordOfflinePayment(ctx, 1, &OfflinePaymentRequest{DueID: f.due.ID, Amount: "5000", Mode: model.PaymentModeCash})
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusSuccess, trans.Status)
	assert.Equal(t, model.DueStatusPaid, f.env.reloadDue(t, f.due.ID).Status)

	_, err = f.env.payments.RecordOfflinePayment(ctx, 1, &OfflinePaymentRequest{DueID: f.due.ID, Amount: "1", Mode: model.PaymentModeCash})
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)

	_, err = f.env.payments.RecordOfflinePayment(ctx, 2, &OfflinePaymentRequest{DueID: f.due.ID, Amount: "1", Mode: model.PaymentModeCash})
	assert.ErrorIs(t, err, repository.ErrForbidden)

	list, total, err := f.env.payments.ListTransactions(ctx, f.student.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, list, 1)

	// 业主可查看自己宿舍的交易
	_, err = f.env.payments.GetTransaction(ctx, Actor{UserID: 1, Role: RoleOwner}, trans.ID)
	assert.NoError(t, err)
	_, err = f.env.payments.GetTransaction(ctx, Actor{UserID: 2, Role: RoleOwner}, trans.ID)
	assert.ErrorIs(t, err, repository.ErrForbidden)
}

func TestReconcilePending(t *testing.T) {
	f := newPaymentFixture(t, "5000")
	ctx := context.Background()
	env := f.env

	// 1. 校验时网关故障，之后网关确认已收款 -> 入账
	paidOrder := f.order(t, "1000", "rcpt-paid")
	p1, s1 := env.gw.Pay(paidOrder.OrderID, 100000)
	env.gw.SetFetchErr(errors.New("down"))
	_, err := env.payments.Verify(ctx, &VerifyRequest{OrderID: paidOrder.OrderID, PaymentID: p1, Signature: s1})
	require.ErrorIs(t, err, repository.ErrGatewayUnavailable)
	env.gw.SetFetchErr(nil)

	// 2. 长期未支付的订单 -> 失败
	expiredOrder := f.order(t, "1000", "rcpt-expired")

	// 3. 刚创建的订单 -> 不处理
	freshOrder := f.order(t, "1000", "rcpt-fresh")

	old := time.Now().Add(-time.Hour)
	require.NoError(t, env.db.Model(&model.Transaction{}).
		Where("id IN ?", []int64{paidOrder.TransactionID, expiredOrder.TransactionID}).
		UpdateColumns(map[string]interface{}{"created_at": old, "updated_at": old}).Error)

	result, err := env.payments.ReconcilePending(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Settled)
	assert.Equal(t, 1, result.Failed)

	assert.Equal(t, model.TransactionStatusSuccess, f.transaction(t, paidOrder.TransactionID).Status)
	assert.Equal(t, model.TransactionStatusFailed, f.transaction(t, expiredOrder.TransactionID).Status)
	assert.Equal(t, model.TransactionStatusPending, f.transaction(t, freshOrder.TransactionID).Status)
	assert.Equal(t, int64(100000), env.reloadDue(t, f.due.ID).PaidAmount)
	assert.Equal(t, int64(1), env.outboxEvents(t, model.EventPaymentFailed))
}

func TestReconcileFlagsPaidOrderClosedByForgedVerify(t *testing.T) {
	f := newPaymentFixture(t, "5000")
	ctx := context.Background()
	order := f.order(t, "5000", "rcpt-forged")

	// 伪造回调先到，交易被置为失败
	_, err := f.env.payments.Verify(ctx, &VerifyRequest{OrderID: order.OrderID, PaymentID: "pay_x", Signature: "bad"})
	require.ErrorIs(t, err, repository.ErrSignatureMismatch)

	// 未收款的订单不告警
	result, err := f.env.payments.ReconcilePending(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Flagged)

	// 用户随后在网关完成支付，真实回调已无法入账
	paymentID, sig := f.env.gw.Pay(order.OrderID, 500000)
	_, err = f.env.payments.Verify(ctx, &VerifyRequest{OrderID: order.OrderID, PaymentID: paymentID, Signature: sig})
	require.ErrorIs(t, err, repository.ErrInvalidTransition)

	result, err = f.env.payments.ReconcilePending(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Flagged)

	again, err := f.env.payments.ReconcilePending(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Flagged)

	assert.Equal(t, model.TransactionStatusFailed, f.transaction(t, order.TransactionID).Status)
	assert.Equal(t, int64(0), f.env.reloadDue(t, f.due.ID).PaidAmount)
}
