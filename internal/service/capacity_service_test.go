package service

import (
	"context"
	"testing"

	"hostelsystem/internal/model"
	"hostelsystem/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveAndReleaseBounds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h := env.hostel(t, 1, 1)

	require.NoError(t, env.capacity.Reserve(ctx, nil, h.ID))
	assert.ErrorIs(t, env.capacity.Reserve(ctx, nil, h.ID), repository.ErrCapacityExhausted)
	assert.Equal(t, 0, env.reloadHostel(t, h.ID).AvailableRooms)

	require.NoError(t, env.capacity.Release(ctx, nil, h.ID))
	// 已满额时再次归还为空操作
	require.NoError(t, env.capacity.Release(ctx, nil, h.ID))
	assert.Equal(t, 1, env.reloadHostel(t, h.ID).AvailableRooms)

	assert.ErrorIs(t, env.capacity.Reserve(ctx, nil, 999), repository.ErrNotFound)
	assert.ErrorIs(t, env.capacity.Release(ctx, nil, 999), repository.ErrNotFound)
}

func TestResize(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h := env.hostel(t, 1, 3)
	env.activeStudent(t, h)
	env.activeStudent(t, h)

	grown, err := env.capacity.Resize(ctx, h.ID, 1, &ResizeRequest{TotalRooms: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, grown.TotalRooms)
	assert.Equal(t, 3, grown.AvailableRooms)

	shrunk, err := env.capacity.Resize(ctx, h.ID, 1, &ResizeRequest{TotalRooms: 2})
	require.NoError(t, err)
	assert.Equal(t, 0, shrunk.AvailableRooms)

	// 不能缩到在住人数以下
	_, err = env.capacity.Resize(ctx, h.ID, 1, &ResizeRequest{TotalRooms: 1})
	assert.ErrorIs(t, err, repository.ErrCapacityExhausted)

	_, err = env.capacity.Resize(ctx, h.ID, 2, &ResizeRequest{TotalRooms: 8})
	assert.ErrorIs(t, err, repository.ErrForbidden)

	_, err = env.capacity.Resize(ctx, h.ID, 1, &ResizeRequest{TotalRooms: 2})
	assert.NoError(t, err)

	snap, err := env.capacity.Snapshot(ctx, h.ID)
	require.NoError(t, err)
	assert.True(t, snap.Consistent)
}

func TestSnapshotDetectsDrift(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h := env.hostel(t, 1, 4)
	env.activeStudent(t, h)

	snap, err := env.capacity.Snapshot(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, &model.CapacitySnapshot{HostelID: h.ID, TotalRooms: 4, AvailableRooms: 3, ActiveStudents: 1, Consistent: true}, snap)

	env.setAvailable(t, h.ID, 4)
	snap, err = env.capacity.Snapshot(ctx, h.ID)
	require.NoError(t, err)
	assert.False(t, snap.Consistent)
}

func TestCreateHostelRejectsNegativeRooms(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.capacity.CreateHostel(context.Background(), 1, &CreateHostelRequest{Name: "x", TotalRooms: -1})
	assert.ErrorIs(t, err, repository.ErrInvalidArgument)
}
