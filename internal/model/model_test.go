package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingTransitions(t *testing.T) {
	assert.True(t, CanBookingTransition(BookingStatusPending, BookingStatusApproved))
	assert.True(t, CanBookingTransition(BookingStatusPending, BookingStatusCancelled))
	assert.False(t, CanBookingTransition(BookingStatusApproved, BookingStatusCancelled))
	assert.False(t, CanBookingTransition(BookingStatusRejected, BookingStatusApproved))
}

func TestTransactionTransitions(t *testing.T) {
	assert.True(t, CanTransactionTransition(TransactionStatusPending, TransactionStatusVerificationPending))
	assert.True(t, CanTransactionTransition(TransactionStatusVerificationPending, TransactionStatusSuccess))
	assert.False(t, CanTransactionTransition(TransactionStatusSuccess, TransactionStatusFailed))
	assert.False(t, CanTransactionTransition(TransactionStatusFailed, TransactionStatusSuccess))
}

func TestDueAmounts(t *testing.T) {
	d := &Due{Amount: 5000, FineAmount: 200, PaidAmount: 1000, Status: DueStatusOverdue}
	assert.Equal(t, int64(4200), d.RemainingAmount())
	assert.True(t, d.Payable())
	assert.Equal(t, DueStatusPartial, d.SettledStatus(3000))
	assert.Equal(t, DueStatusPaid, d.SettledStatus(5200))

	d.Status = DueStatusWaived
	assert.False(t, d.Payable())
}

func TestNewOutboxMessage(t *testing.T) {
	msg, err := NewOutboxMessage("hostel.booking", "BR-1", EventBookingApproved, map[string]any{"request_id": 1})
	require.NoError(t, err)
	assert.Equal(t, OutboxStatusPending, msg.Status)

	var env map[string]any
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
	assert.Equal(t, EventBookingApproved, env["event"])
	assert.Equal(t, float64(1), env["data"].(map[string]any)["request_id"])
}
