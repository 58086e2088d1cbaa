// Package allocation binds approved applications to rooms.
package allocation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"dormitory-housing-backend/internal/apperr"
	"dormitory-housing-backend/internal/ledger"
	"dormitory-housing-backend/internal/lock"
	"dormitory-housing-backend/internal/metrics"
	"dormitory-housing-backend/internal/model"
	"dormitory-housing-backend/internal/registry"
	"dormitory-housing-backend/internal/structure"
)

const autoBatch = "auto-allocation"

// errNotApproved marks an automatic attempt on an application that left
// the approved state after the queue was built.
var errNotApproved = errors.New("application is no longer approved")

// Engine is the allocation engine.
type Engine struct {
	db      *gorm.DB
	locks   *lock.Manager
	apps    *registry.Service
	metrics *metrics.Metrics
	log     *zap.Logger

	onChange []func()
}

// NewEngine creates an allocation engine. m may be nil.
func NewEngine(db *gorm.DB, locks *lock.Manager, apps *registry.Service, m *metrics.Metrics, log *zap.Logger) *Engine {
	return &Engine{db: db, locks: locks, apps: apps, metrics: m, log: log.Named("allocation")}
}

// OnChange registers fn to run after occupancy changed. Hooks must be
// registered before the engine is used concurrently.
func (e *Engine) OnChange(fn func()) {
	e.onChange = append(e.onChange, fn)
}

func (e *Engine) changed() {
	for _, fn := range e.onChange {
		fn()
	}
}

// AvailableDormitory groups rooms with free places under their dormitory.
type AvailableDormitory struct {
	ID      int64              `json:"id"`
	Name    string             `json:"name"`
	Address string             `json:"address"`
	Rooms   []ledger.RoomUsage `json:"rooms"`
}

// Summary is the outcome of an automatic allocation pass.
type Summary struct {
	Allocated int `json:"allocated"`
	Skipped   int `json:"skipped"`
}

// Allocate binds an approved or allocated application to roomID. An
// application already placed elsewhere is moved; its old room is released
// in the same transaction.
func (e *Engine) Allocate(ctx context.Context, appID, roomID int64) (*model.Application, error) {
	app, err := e.allocate(ctx, appID, roomID, false)
	switch {
	case err == nil:
		e.metrics.RecordAllocation(metrics.ModeManual)
		e.changed()
	case errors.Is(err, apperr.ErrConflict):
		e.metrics.RecordConflict(metrics.ModeManual)
	}
	return app, err
}

func (e *Engine) allocate(ctx context.Context, appID, roomID int64, auto bool) (*model.Application, error) {
	releaseApp, err := e.locks.Keys(ctx, lock.ApplicationKey(appID))
	if err != nil {
		return nil, err
	}
	defer releaseApp()

	room, err := structure.FindRoom(ctx, e.db, roomID)
	if err != nil {
		return nil, err
	}
	current, err := registry.Load(ctx, e.db, appID)
	if err != nil {
		return nil, err
	}

	dormIDs := []int64{room.DormitoryID}
	if current.AllocatedRoomID != nil && *current.AllocatedRoomID != roomID {
		prev, err := structure.FindRoom(ctx, e.db, *current.AllocatedRoomID)
		switch {
		case err == nil:
			dormIDs = append(dormIDs, prev.DormitoryID)
		case !errors.Is(err, apperr.ErrNotFound):
			return nil, err
		}
	}

	releaseDorms, err := e.locks.Dormitories(ctx, dormIDs...)
	if err != nil {
		return nil, err
	}
	defer releaseDorms()

	var app *model.Application
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Both rows may have changed while the locks were contended.
		room, err := structure.FindRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		app, err = registry.Load(ctx, tx, appID)
		if err != nil {
			return err
		}

		switch {
		case auto && app.Status != model.StatusApproved:
			return errNotApproved
		case app.Status != model.StatusApproved && app.Status != model.StatusAllocated:
			return apperr.Conflict("application %d is %s; only approved or allocated applications can be placed", app.ID, app.Status)
		case app.IsAllocatedTo(room.ID):
			return nil
		}

		occupancy, err := ledger.Occupancy(ctx, tx, room.ID)
		if err != nil {
			return err
		}
		if occupancy >= room.Capacity {
			return apperr.Conflict("room %s is full (%d/%d)", room.RoomNumber, occupancy, room.Capacity)
		}

		var from *int64
		if app.AllocatedRoomID != nil {
			prev := *app.AllocatedRoomID
			from = &prev
		}
		if err := registry.Assign(ctx, tx, app, room.ID); err != nil {
			return err
		}

		fields := []zap.Field{
			zap.Int64("application_id", app.ID),
			zap.Int64("room_id", room.ID),
			zap.Int("occupancy", occupancy+1),
			zap.Int("capacity", room.Capacity),
			zap.Bool("automatic", auto),
		}
		if from != nil {
			fields = append(fields, zap.Int64("previous_room_id", *from))
		}
		e.log.Info("application allocated", fields...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

// ListAvailableRooms returns rooms with headroom grouped by dormitory,
// ordered by dormitory, floor and room number.
func (e *Engine) ListAvailableRooms(ctx context.Context) ([]AvailableDormitory, error) {
	rooms, err := structure.AllRooms(ctx, e.db)
	if err != nil {
		return nil, err
	}
	usage, err := ledger.Usage(ctx, e.db, rooms)
	if err != nil {
		return nil, err
	}

	var dorms []model.Dormitory
	if err := e.db.WithContext(ctx).Order("id").Find(&dorms).Error; err != nil {
		return nil, fmt.Errorf("failed to list dormitories: %w", err)
	}
	byID := make(map[int64]model.Dormitory, len(dorms))
	for _, d := range dorms {
		byID[d.ID] = d
	}

	result := []AvailableDormitory{}
	for _, u := range usage {
		if u.Full() {
			continue
		}
		if n := len(result); n == 0 || result[n-1].ID != u.DormitoryID {
			d := byID[u.DormitoryID]
			result = append(result, AvailableDormitory{ID: d.ID, Name: d.Name, Address: d.Address})
		}
		last := &result[len(result)-1]
		last.Rooms = append(last.Rooms, u)
	}
	return result, nil
}

// ProcessAutomatic places every approved application, oldest first, in the
// first room with headroom. Each placement is its own transaction; an
// application that fits nowhere stays approved and is counted as skipped.
func (e *Engine) ProcessAutomatic(ctx context.Context) (Summary, error) {
	var summary Summary

	release, err := e.locks.Keys(ctx, lock.BatchKey(autoBatch))
	if err != nil {
		return summary, err
	}
	defer release()
	defer func() {
		if summary.Allocated > 0 {
			e.changed()
		}
	}()

	queue, err := e.apps.ApprovedQueue(ctx)
	if err != nil {
		return summary, err
	}
	if len(queue) == 0 {
		return summary, nil
	}

	rooms, err := structure.AllRooms(ctx, e.db)
	if err != nil {
		return summary, err
	}
	usage, err := ledger.Usage(ctx, e.db, rooms)
	if err != nil {
		return summary, err
	}
	headroom := make([]int, len(usage))
	for i, u := range usage {
		headroom[i] = u.Headroom()
	}

	for _, appID := range queue {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		placed, stale, busy := false, false, false
		for i := range usage {
			if headroom[i] == 0 {
				continue
			}
			_, err := e.allocate(ctx, appID, usage[i].ID, true)
			switch {
			case err == nil:
				headroom[i]--
				placed = true
				e.metrics.RecordAllocation(metrics.ModeAutomatic)
			case errors.Is(err, errNotApproved):
				stale = true
			case errors.Is(err, lock.ErrBusy):
				// Contention says nothing about the room; leave the
				// application for the next pass.
				busy = true
			case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrNotFound):
				// Filled or removed by someone else since the pass started.
				headroom[i] = 0
				e.metrics.RecordConflict(metrics.ModeAutomatic)
				continue
			default:
				return summary, err
			}
			break
		}

		switch {
		case placed:
			summary.Allocated++
		case stale:
			e.log.Debug("application changed during automatic allocation", zap.Int64("application_id", appID))
		case busy:
			summary.Skipped++
			e.log.Warn("application busy, left for the next pass", zap.Int64("application_id", appID))
		default:
			summary.Skipped++
		}
	}

	e.metrics.RecordAutoSkipped(summary.Skipped)
	e.log.Info("automatic allocation finished",
		zap.Int("allocated", summary.Allocated),
		zap.Int("skipped", summary.Skipped))
	return summary, nil
}
