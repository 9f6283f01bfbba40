package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"hostelsystem/internal/config"
	"hostelsystem/internal/model"
	"hostelsystem/internal/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	db       *gorm.DB
	cfg      *config.Config
	gw       *testutil.FakeGateway
	capacity *CapacityService
	registry *RegistryService
	booking  *BookingService
	dues     *DueService
	payments *PaymentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewDB(t)
	redisClient, _ := testutil.NewRedis(t)
	cfg := testutil.Config()
	gw := testutil.NewFakeGateway()

	capacity := NewCapacityService(db)
	registry := NewRegistryService(db, cfg, capacity)
	return &testEnv{
		db:       db,
		cfg:      cfg,
		gw:       gw,
		capacity: capacity,
		registry: registry,
		booking:  NewBookingService(db, cfg, capacity, registry),
		dues:     NewDueService(db, cfg),
		payments: NewPaymentService(db, redisClient, cfg, gw),
	}
}

func (e *testEnv) hostel(t *testing.T, ownerID int64, total int) *model.Hostel {
	t.Helper()
	h, err := e.capacity.CreateHostel(context.Background(), ownerID, &CreateHostelRequest{Name: "Hostel", TotalRooms: total})
	require.NoError(t, err)
	return h
}

// setAvailable 直接调整可用床位，构造“已部分入住”的宿舍
func (e *testEnv) setAvailable(t *testing.T, hostelID int64, available int) {
	t.Helper()
	require.NoError(t, e.db.Model(&model.Hostel{}).Where("id = ?", hostelID).
		Update("available_rooms", available).Error)
}

var studentSeq int

func (e *testEnv) student(t *testing.T) *model.Student {
	t.Helper()
	studentSeq++
	s, err := e.registry.Register(context.Background(), &RegisterStudentRequest{
		Name:  fmt.Sprintf("student-%d", studentSeq),
		Email: fmt.Sprintf("student-%d@example.com", studentSeq),
	})
	require.NoError(t, err)
	return s
}

func (e *testEnv) request(t *testing.T, studentID, hostelID int64) *model.BookingRequest {
	t.Helper()
	r, err := e.booking.Create(context.Background(), &CreateBookingRequest{
		StudentID: studentID, HostelID: hostelID, Floor: 1, RoomNumber: 101,
	})
	require.NoError(t, err)
	return r
}

// activeStudent 创建一个已入住 hostel 的学生
func (e *testEnv) activeStudent(t *testing.T, hostel *model.Hostel) *model.Student {
	t.Helper()
	s := e.student(t)
	r := e.request(t, s.ID, hostel.ID)
	_, err := e.booking.Approve(context.Background(), r.ID, hostel.OwnerID)
	require.NoError(t, err)
	return s
}

func (e *testEnv) due(t *testing.T, hostel *model.Hostel, studentID int64, amount string) *model.Due {
	t.Helper()
	d, err := e.dues.CreateDue(context.Background(), hostel.OwnerID, &CreateDueRequest{
		StudentID: studentID,
		Title:     "Monthly rent",
		Amount:    amount,
		DueDate:   time.Now().Add(7 * 24 * time.Hour),
	})
	require.NoError(t, err)
	return d
}

func (e *testEnv) reloadHostel(t *testing.T, id int64) *model.Hostel {
	t.Helper()
	h, err := e.capacity.GetHostel(context.Background(), id)
	require.NoError(t, err)
	return h
}

func (e *testEnv) reloadDue(t *testing.T, id int64) *model.Due {
	t.Helper()
	d, err := e.dues.Get(context.Background(), id)
	require.NoError(t, err)
	return d
}

func (e *testEnv) outboxEvents(t *testing.T, eventType string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&model.OutboxMessage{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}
