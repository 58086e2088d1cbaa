package transfer

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"dormitory-housing-backend/internal/ledger"
	"dormitory-housing-backend/internal/lock"
	"dormitory-housing-backend/internal/metrics"
	"dormitory-housing-backend/internal/model"
	"dormitory-housing-backend/internal/registry"
	"dormitory-housing-backend/internal/structure"
)

// Service is the structure transfer component.
type Service struct {
	db      *gorm.DB
	locks   *lock.Manager
	metrics *metrics.Metrics
	log     *zap.Logger

	onChange []func()
}

// NewService creates a transfer service. m may be nil.
func NewService(db *gorm.DB, locks *lock.Manager, m *metrics.Metrics, log *zap.Logger) *Service {
	return &Service{db: db, locks: locks, metrics: m, log: log.Named("transfer")}
}

// OnChange registers fn to run after every successful import.
func (s *Service) OnChange(fn func()) {
	s.onChange = append(s.onChange, fn)
}

// ImportSummary reports what an import changed.
type ImportSummary struct {
	DormitoriesCreated int `json:"dormitories_created"`
	DormitoriesUpdated int `json:"dormitories_updated"`
	DormitoriesRemoved int `json:"dormitories_removed"`
	structure.SyncResult
	Notices []model.ReconciliationNotice `json:"notices"`
}

// Export returns every dormitory by id with rooms by floor and room number.
func (s *Service) Export(ctx context.Context) (*Snapshot, error) {
	var dorms []model.Dormitory
	if err := s.db.WithContext(ctx).
		Preload("Rooms", func(db *gorm.DB) *gorm.DB {
			return db.Order("floor_number, room_number, id")
		}).
		Order("id").
		Find(&dorms).Error; err != nil {
		return nil, fmt.Errorf("failed to load structure: %w", err)
	}

	snap := &Snapshot{Dormitories: make([]DormitorySnapshot, 0, len(dorms))}
	for _, d := range dorms {
		ds := DormitorySnapshot{Name: d.Name, Address: d.Address, Rooms: make([]model.RoomSpec, 0, len(d.Rooms))}
		for _, r := range d.Rooms {
			ds.Rooms = append(ds.Rooms, r.Spec())
		}
		snap.Dormitories = append(snap.Dormitories, ds)
	}
	return snap, nil
}

// Import replaces the whole structure with snap. Dormitories are matched by
// name and rooms by room number, so unchanged rooms keep their identity and
// occupants. Occupants of removed or shrunk rooms are demoted to approved
// and reported as notices. Nothing changes if the snapshot is invalid.
func (s *Service) Import(ctx context.Context, snap *Snapshot) (*ImportSummary, error) {
	snap, err := Validate(snap)
	if err != nil {
		return nil, err
	}

	release, err := s.locks.Structure(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	summary := &ImportSummary{Notices: []model.ReconciliationNotice{}}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []model.Dormitory
		if err := tx.Order("id").Find(&existing).Error; err != nil {
			return fmt.Errorf("failed to load dormitories: %w", err)
		}
		byName := make(map[string]model.Dormitory, len(existing))
		for _, d := range existing {
			byName[d.Name] = d
		}

		for _, ds := range snap.Dormitories {
			dorm, found := byName[ds.Name]
			switch {
			case !found:
				dorm = model.Dormitory{Name: ds.Name, Address: ds.Address}
				if err := tx.Create(&dorm).Error; err != nil {
					return fmt.Errorf("failed to create dormitory %q: %w", ds.Name, err)
				}
				summary.DormitoriesCreated++
			case dorm.Address != ds.Address:
				if err := tx.Model(&dorm).Update("address", ds.Address).Error; err != nil {
					return fmt.Errorf("failed to update dormitory %q: %w", ds.Name, err)
				}
				summary.DormitoriesUpdated++
			}
			delete(byName, ds.Name)

			result, err := structure.SyncRooms(ctx, tx, &dorm, ds.Rooms, s.demoter(ctx, tx, dorm.Name, summary))
			if err != nil {
				return err
			}
			summary.Add(result)
		}

		for _, d := range existing {
			if _, gone := byName[d.Name]; !gone {
				continue
			}
			result, err := structure.SyncRooms(ctx, tx, &d, nil, s.demoter(ctx, tx, d.Name, summary))
			if err != nil {
				return err
			}
			summary.Add(result)
			if err := tx.Delete(&model.Dormitory{}, d.ID).Error; err != nil {
				return fmt.Errorf("failed to delete dormitory %q: %w", d.Name, err)
			}
			summary.DormitoriesRemoved++
		}

		return s.reconcileUnresolved(ctx, tx, summary)
	})
	if err != nil {
		return nil, err
	}
	for _, fn := range s.onChange {
		fn()
	}

	for _, n := range summary.Notices {
		s.metrics.RecordReconciliation(n.Reason)
		s.log.Warn("allocation released by structure import",
			zap.Int64("application_id", n.ApplicationID),
			zap.Int64("room_id", n.RoomID),
			zap.String("dormitory", n.DormitoryName),
			zap.String("room_number", n.RoomNumber),
			zap.String("reason", n.Reason))
	}
	s.log.Info("structure imported",
		zap.Int("dormitories_created", summary.DormitoriesCreated),
		zap.Int("dormitories_updated", summary.DormitoriesUpdated),
		zap.Int("dormitories_removed", summary.DormitoriesRemoved),
		zap.Int("rooms_created", summary.Created),
		zap.Int("rooms_updated", summary.Updated),
		zap.Int("rooms_removed", summary.Removed),
		zap.Int("notices", len(summary.Notices)))
	return summary, nil
}

// demoter returns the displacement policy used by imports: occupants go back
// to approved and a notice is recorded for each.
func (s *Service) demoter(ctx context.Context, tx *gorm.DB, dormName string, summary *ImportSummary) structure.DisplacementFunc {
	return func(room ledger.RoomUsage, displaced []model.Application, reason string) error {
		ids := make([]int64, len(displaced))
		for i, app := range displaced {
			ids[i] = app.ID
			summary.Notices = append(summary.Notices, model.ReconciliationNotice{
				ApplicationID: app.ID,
				RoomID:        room.ID,
				DormitoryName: dormName,
				RoomNumber:    room.RoomNumber,
				Reason:        reason,
			})
		}
		return registry.Demote(ctx, tx, ids)
	}
}

// reconcileUnresolved demotes allocations whose room no longer exists at all.
func (s *Service) reconcileUnresolved(ctx context.Context, tx *gorm.DB, summary *ImportSummary) error {
	var dangling []model.Application
	if err := tx.WithContext(ctx).
		Where("status = ? AND (allocated_room_id IS NULL OR allocated_room_id NOT IN (?))",
			model.StatusAllocated, tx.Model(&model.Room{}).Select("id")).
		Order("id").
		Find(&dangling).Error; err != nil {
		return fmt.Errorf("failed to find unresolved allocations: %w", err)
	}
	if len(dangling) == 0 {
		return nil
	}

	ids := make([]int64, len(dangling))
	for i, app := range dangling {
		ids[i] = app.ID
		var roomID int64
		if app.AllocatedRoomID != nil {
			roomID = *app.AllocatedRoomID
		}
		summary.Notices = append(summary.Notices, model.ReconciliationNotice{
			ApplicationID: app.ID,
			RoomID:        roomID,
			Reason:        model.ReasonRoomUnresolved,
		})
	}
	return registry.Demote(ctx, tx, ids)
}
