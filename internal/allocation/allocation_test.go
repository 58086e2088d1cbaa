package allocation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"dormitory-housing-backend/internal/apperr"
	"dormitory-housing-backend/internal/ledger"
	"dormitory-housing-backend/internal/lock"
	"dormitory-housing-backend/internal/metrics"
	"dormitory-housing-backend/internal/model"
	"dormitory-housing-backend/internal/registry"
	"dormitory-housing-backend/internal/testutil"
)

type fixture struct {
	db     *gorm.DB
	locks  *lock.Manager
	apps   *registry.Service
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithLocks(t, lock.NewManager(2*time.Second))
}

func newFixtureWithLocks(t *testing.T, locks *lock.Manager) *fixture {
	db := testutil.NewDB(t)
	apps := registry.NewService(db, locks, zap.NewNop())
	return &fixture{
		db:     db,
		locks:  locks,
		apps:   apps,
		engine: NewEngine(db, locks, apps, metrics.New(), zap.NewNop()),
	}
}

func (f *fixture) dorm(t *testing.T, name string, rooms ...model.Room) []model.Room {
	d := model.Dormitory{Name: name, Address: name + " street"}
	require.NoError(t, f.db.Create(&d).Error)
	for i := range rooms {
		rooms[i].DormitoryID = d.ID
		require.NoError(t, f.db.Create(&rooms[i]).Error)
	}
	return rooms
}

func (f *fixture) approved(t *testing.T, ticket string) *model.Application {
	ctx := context.Background()
	app, err := f.apps.Submit(ctx, "Student", ticket)
	require.NoError(t, err)
	app, err = f.apps.SetStatus(ctx, app.ID, model.StatusApproved, "")
	require.NoError(t, err)
	return app
}

func (f *fixture) occupancy(t *testing.T, roomID int64) int {
	n, err := ledger.Occupancy(context.Background(), f.db, roomID)
	require.NoError(t, err)
	return n
}

func TestAllocate_LastPlace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rooms := f.dorm(t, "A", model.Room{FloorNumber: 1, RoomNumber: "101", Capacity: 1})
	room101 := rooms[0]

	x := f.approved(t, "X")
	y := f.approved(t, "Y")

	got, err := f.engine.Allocate(ctx, x.ID, room101.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAllocated, got.Status)
	assert.True(t, got.IsAllocatedTo(room101.ID))
	assert.Equal(t, 1, f.occupancy(t, room101.ID))

	_, err = f.engine.Allocate(ctx, y.ID, room101.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, 1, f.occupancy(t, room101.ID))

	stored, err := f.apps.Get(ctx, y.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, stored.Status)
}

func TestAllocate_Reassign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.dorm(t, "A", model.Room{FloorNumber: 1, RoomNumber: "101", Capacity: 2})
	b := f.dorm(t, "B", model.Room{FloorNumber: 2, RoomNumber: "201", Capacity: 2})

	app := f.approved(t, "R1")
	_, err := f.engine.Allocate(ctx, app.ID, a[0].ID)
	require.NoError(t, err)

	moved, err := f.engine.Allocate(ctx, app.ID, b[0].ID)
	require.NoError(t, err)
	assert.True(t, moved.IsAllocatedTo(b[0].ID))
	assert.Equal(t, 0, f.occupancy(t, a[0].ID))
	assert.Equal(t, 1, f.occupancy(t, b[0].ID))

	// Same room again is a no-op.
	same, err := f.engine.Allocate(ctx, app.ID, b[0].ID)
	require.NoError(t, err)
	assert.True(t, same.IsAllocatedTo(b[0].ID))
	assert.Equal(t, 1, f.occupancy(t, b[0].ID))
}

func TestAllocate_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rooms := f.dorm(t, "A", model.Room{FloorNumber: 1, RoomNumber: "101", Capacity: 3})

	pending, err := f.apps.Submit(ctx, "Pending", "P1")
	require.NoError(t, err)
	rejected, err := f.apps.Submit(ctx, "Rejected", "P2")
	require.NoError(t, err)
	_, err = f.apps.SetStatus(ctx, rejected.ID, model.StatusRejected, "duplicate")
	require.NoError(t, err)
	ok := f.approved(t, "P3")

	testCases := []struct {
		name    string
		appID   int64
		roomID  int64
		wantErr error
	}{
		{name: "unknown room", appID: ok.ID, roomID: 999, wantErr: apperr.ErrNotFound},
		{name: "unknown application", appID: 999, roomID: rooms[0].ID, wantErr: apperr.ErrNotFound},
		{name: "pending application", appID: pending.ID, roomID: rooms[0].ID, wantErr: apperr.ErrConflict},
		{name: "rejected application", appID: rejected.ID, roomID: rooms[0].ID, wantErr: apperr.ErrConflict},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.Allocate(ctx, tc.appID, tc.roomID)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
	assert.Equal(t, 0, f.occupancy(t, rooms[0].ID))
}

func TestAllocate_ConcurrentLastPlace(t *testing.T) {
	f := newFixture(t)
	rooms := f.dorm(t, "A", model.Room{FloorNumber: 1, RoomNumber: "101", Capacity: 1})

	apps := []*model.Application{f.approved(t, "C1"), f.approved(t, "C2"), f.approved(t, "C3")}

	var wg sync.WaitGroup
	errs := make([]error, len(apps))
	for i, app := range apps {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			_, errs[i] = f.engine.Allocate(context.Background(), id, rooms[0].ID)
		}(i, app.ID)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrConflict)
		lost++
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 2, lost)
	assert.Equal(t, 1, f.occupancy(t, rooms[0].ID))
}

func TestListAvailableRooms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.dorm(t, "A",
		model.Room{FloorNumber: 2, RoomNumber: "201", Capacity: 1},
		model.Room{FloorNumber: 1, RoomNumber: "102", Capacity: 2},
		model.Room{FloorNumber: 1, RoomNumber: "101", Capacity: 1},
	)
	f.dorm(t, "Empty")
	b := f.dorm(t, "B", model.Room{FloorNumber: 0, RoomNumber: "G1", Capacity: 1})

	app := f.approved(t, "L1")
	_, err := f.engine.Allocate(ctx, app.ID, a[2].ID)
	require.NoError(t, err)

	available, err := f.engine.ListAvailableRooms(ctx)
	require.NoError(t, err)
	require.Len(t, available, 2)

	assert.Equal(t, "A", available[0].Name)
	require.Len(t, available[0].Rooms, 2, "101 is full")
	assert.Equal(t, "102", available[0].Rooms[0].RoomNumber)
	assert.Equal(t, "201", available[0].Rooms[1].RoomNumber)

	assert.Equal(t, "B", available[1].Name)
	require.Len(t, available[1].Rooms, 1)
	assert.Equal(t, b[0].ID, available[1].Rooms[0].ID)
	assert.Equal(t, 0, available[1].Rooms[0].Occupancy)
}

func TestProcessAutomatic_FirstComeFirstServed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rooms := f.dorm(t, "A", model.Room{FloorNumber: 1, RoomNumber: "101", Capacity: 1})

	first := f.approved(t, "T1")
	second := f.approved(t, "T2")

	summary, err := f.engine.ProcessAutomatic(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Allocated: 1, Skipped: 1}, summary)

	got, err := f.apps.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAllocatedTo(rooms[0].ID))

	got, err = f.apps.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, got.Status)
	assert.Nil(t, got.AllocatedRoomID)
}

func TestProcessAutomatic_RoomOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.dorm(t, "A",
		model.Room{FloorNumber: 2, RoomNumber: "201", Capacity: 1},
		model.Room{FloorNumber: 1, RoomNumber: "101", Capacity: 2},
	)
	b := f.dorm(t, "B", model.Room{FloorNumber: 0, RoomNumber: "001", Capacity: 5})

	var ids []int64
	for _, ticket := range []string{"O1", "O2", "O3", "O4"} {
		ids = append(ids, f.approved(t, ticket).ID)
	}
	pending, err := f.apps.Submit(ctx, "Waiting", "O5")
	require.NoError(t, err)

	summary, err := f.engine.ProcessAutomatic(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Allocated: 4, Skipped: 0}, summary)

	want := []int64{a[1].ID, a[1].ID, a[0].ID, b[0].ID}
	for i, id := range ids {
		got, err := f.apps.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.IsAllocatedTo(want[i]), "application %d", i)
	}

	got, err := f.apps.Get(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status, "only approved applications are placed")

	// A second pass has nothing left to do.
	summary, err = f.engine.ProcessAutomatic(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
}

func TestProcessAutomatic_NoRooms(t *testing.T) {
	f := newFixture(t)
	f.approved(t, "N1")
	f.approved(t, "N2")

	summary, err := f.engine.ProcessAutomatic(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Skipped: 2}, summary)
}

func TestProcessAutomatic_BusyApplicationKeepsRoomOpen(t *testing.T) {
	f := newFixtureWithLocks(t, lock.NewManager(50*time.Millisecond))
	ctx := context.Background()
	rooms := f.dorm(t, "A", model.Room{FloorNumber: 1, RoomNumber: "101", Capacity: 2})

	x := f.approved(t, "X")
	y := f.approved(t, "Y")

	// Someone else is working on x for the whole pass.
	release, err := f.locks.Keys(ctx, lock.ApplicationKey(x.ID))
	require.NoError(t, err)
	defer release()

	summary, err := f.engine.ProcessAutomatic(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Allocated: 1, Skipped: 1}, summary)

	gotX, err := f.apps.Get(ctx, x.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, gotX.Status)

	gotY, err := f.apps.Get(ctx, y.ID)
	require.NoError(t, err)
	assert.True(t, gotY.IsAllocatedTo(rooms[0].ID))
	assert.Equal(t, 1, f.occupancy(t, rooms[0].ID))
}
