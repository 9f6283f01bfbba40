package service

import (
	"context"
	"testing"
	"time"

	"hostelsystem/internal/model"
	"hostelsystem/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDueRequiresActiveStudentOfOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h := env.hostel(t, 1, 2)
	s := env.activeStudent(t, h)

	d := env.due(t, h, s.ID, "5000")
	assert.Equal(t, int64(500000), d.Amount)
	assert.Equal(t, model.DueStatusPending, d.Status)
	assert.Equal(t, h.ID, d.HostelID)
	assert.Equal(t, int64(1), env.outboxEvents(t, model.EventDueCreated))

	req := &CreateDueRequest{StudentID: s.ID, Title: "rent", Amount: "100", DueDate: time.Now()}
	_, err := env.dues.CreateDue(ctx, 2, req)
	assert.ErrorIs(t, err, repository.ErrForbidden)

	outsider := env.student(t)
	req.StudentID = outsider.ID
	_, err = env.dues.CreateDue(ctx, 1, req)
	assert.ErrorIs(t, err, repository.ErrForbidden)

	req.StudentID = s.ID
	req.Amount = "0"
	_, err = env.dues.CreateDue(ctx, 1, req)
	assert.ErrorIs(t, err, repository.ErrInvalidAmount)

	req.Amount = "10.001"
	_, err = env.dues.CreateDue(ctx, 1, req)
	assert.ErrorIs(t, err, repository.ErrInvalidAmount)
}

func TestWaiveAndCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h := env.hostel(t, 1, 2)
	s := env.activeStudent(t, h)

	d1 := env.due(t, h, s.ID, "100")
	cancelled, err := env.dues.Cancel(ctx, 1, d1.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DueStatusCancelled, cancelled.Status)

	_, err = env.dues.Waive(ctx, 1, d1.ID)
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)

	d2 := env.due(t, h, s.ID, "100")
	_, err = env.payments.RecordOfflinePayment(ctx, 1, &OfflinePaymentRequest{DueID: d2.ID, Amount: "40", Mode: model.PaymentModeCash})
	require.NoError(t, err)

	// 已有入账不能取消，只能减免
	_, err = env.dues.Cancel(ctx, 1, d2.ID)
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)

	waived, err := env.dues.Waive(ctx, 1, d2.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DueStatusWaived, waived.Status)
	assert.Equal(t, int64(4000), waived.PaidAmount)

	_, err = env.dues.Waive(ctx, 2, d2.ID)
	assert.ErrorIs(t, err, repository.ErrForbidden)
}

func TestAddFineAndMarkOverdue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h := env.hostel(t, 1, 2)
	s := env.activeStudent(t, h)

	d, err := env.dues.CreateDue(ctx, 1, &CreateDueRequest{
		StudentID: s.ID, Title: "rent", Amount: "100", DueDate: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)
	future := env.due(t, h, s.ID, "100")

	n, err := env.dues.MarkOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, model.DueStatusOverdue, env.reloadDue(t, d.ID).Status)
	assert.Equal(t, model.DueStatusPending, env.reloadDue(t, future.ID).Status)

	fined, err := env.dues.AddFine(ctx, 1, d.ID, &AddFineRequest{Amount: "25.50"})
	require.NoError(t, err)
	assert.Equal(t, int64(2550), fined.FineAmount)
	assert.Equal(t, int64(12550), fined.RemainingAmount())

	// 逾期应收款部分入账后转为 PARTIAL
	_, err = env.payments.RecordOfflinePayment(ctx, 1, &OfflinePaymentRequest{DueID: d.ID, Amount: "50", Mode: model.PaymentModeBankTransfer})
	require.NoError(t, err)
	assert.Equal(t, model.DueStatusPartial, env.reloadDue(t, d.ID).Status)

	dues, err := env.dues.ListByStudent(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, dues, 2)
}
