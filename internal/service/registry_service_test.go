package service

import (
	"context"
	"sync"
	"testing"

	"hostelsystem/internal/model"
	"hostelsystem/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.registry.Register(ctx, &RegisterStudentRequest{Name: "A", Email: "a@example.com"})
	require.NoError(t, err)
	_, err = env.registry.Register(ctx, &RegisterStudentRequest{Name: "B", Email: "A@Example.com"})
	assert.ErrorIs(t, err, repository.ErrEmailTaken)
}

func TestVacateReleasesRoom(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h := env.hostel(t, 1, 2)
	s := env.activeStudent(t, h)
	assert.Equal(t, 1, env.reloadHostel(t, h.ID).AvailableRooms)

	vacated, err := env.registry.Vacate(ctx, Actor{UserID: s.ID, Role: RoleStudent}, s.ID)
	require.NoError(t, err)
	assert.Nil(t, vacated.CurrentHostelID)
	assert.Nil(t, vacated.RoomNumber)
	assert.Equal(t, model.StudentStatusVacated, vacated.Status)
	assert.Equal(t, 2, env.reloadHostel(t, h.ID).AvailableRooms)
	assert.Equal(t, int64(1), env.outboxEvents(t, model.EventStudentVacated))

	// 再次退宿为空操作
	again, err := env.registry.Vacate(ctx, Actor{UserID: s.ID, Role: RoleStudent}, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StudentStatusVacated, again.Status)
	assert.Equal(t, 2, env.reloadHostel(t, h.ID).AvailableRooms)
	assert.Equal(t, int64(1), env.outboxEvents(t, model.EventStudentVacated))
}

func TestVacateIsBoundedByTotalRooms(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h := env.hostel(t, 1, 2)
	s := env.activeStudent(t, h)

	// 账本已被外部修正为满额，退宿不能超过 total
	env.setAvailable(t, h.ID, 2)
	_, err := env.registry.Vacate(ctx, Actor{UserID: 1, Role: RoleOwner}, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, env.reloadHostel(t, h.ID).AvailableRooms)
}

func TestConcurrentVacateReleasesOnce(t *testing.T) {
	env := newTestEnv(t)
	h := env.hostel(t, 1, 3)
	s := env.activeStudent(t, h)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.registry.Vacate(context.Background(), Actor{UserID: s.ID, Role: RoleStudent}, s.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, env.reloadHostel(t, h.ID).AvailableRooms)
	assert.Equal(t, int64(1), env.outboxEvents(t, model.EventStudentVacated))
}

func TestVacateAuthorization(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h := env.hostel(t, 1, 2)
	s := env.activeStudent(t, h)

	_, err := env.registry.Vacate(ctx, Actor{UserID: 2, Role: RoleOwner}, s.ID)
	assert.ErrorIs(t, err, repository.ErrForbidden)
	_, err = env.registry.Vacate(ctx, Actor{UserID: s.ID + 1, Role: RoleStudent}, s.ID)
	assert.ErrorIs(t, err, repository.ErrForbidden)

	_, err = env.registry.Vacate(ctx, Actor{UserID: 1, Role: RoleOwner}, s.ID)
	assert.NoError(t, err)
}

func TestVacateKeepsPendingApprovalForOpenRequests(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.hostel(t, 1, 2)
	second := env.hostel(t, 2, 2)
	s := env.student(t)

	r1 := env.request(t, s.ID, first.ID)
	r2 := env.request(t, s.ID, second.ID)
	_, err := env.booking.Approve(ctx, r1.ID, first.OwnerID)
	require.NoError(t, err)

	vacated, err := env.registry.Vacate(ctx, Actor{UserID: s.ID, Role: RoleStudent}, s.ID)
	require.NoError(t, err)
	assert.Nil(t, vacated.CurrentHostelID)
	assert.Equal(t, model.StudentStatusPendingApproval, vacated.Status)
	assert.Equal(t, 2, env.reloadHostel(t, first.ID).AvailableRooms)

	_, err = env.booking.Cancel(ctx, r2.ID, s.ID)
	require.NoError(t, err)
	got, err := env.registry.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StudentStatusSearching, got.Status)
}
