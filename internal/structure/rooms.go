package structure

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"dormitory-housing-backend/internal/apperr"
	"dormitory-housing-backend/internal/ledger"
	"dormitory-housing-backend/internal/model"
)

// SyncResult counts what SyncRooms did.
type SyncResult struct {
	Created int `json:"rooms_created"`
	Updated int `json:"rooms_updated"`
	Removed int `json:"rooms_removed"`
}

// Add accumulates another result.
func (r *SyncResult) Add(o SyncResult) {
	r.Created += o.Created
	r.Updated += o.Updated
	r.Removed += o.Removed
}

// DisplacementFunc decides what happens to occupants that no longer fit: the
// room is being removed (reason model.ReasonRoomRemoved) or shrunk
// (model.ReasonCapacityReduced). Returning an error aborts the sync.
type DisplacementFunc func(room ledger.RoomUsage, displaced []model.Application, reason string) error

func refuseDisplacement(room ledger.RoomUsage, displaced []model.Application, reason string) error {
	if reason == model.ReasonRoomRemoved {
		return apperr.Conflict("room %s has %d occupant(s) and cannot be removed", room.RoomNumber, room.Occupancy)
	}
	return apperr.Conflict("room %s has %d occupant(s); capacity cannot drop below that", room.RoomNumber, room.Occupancy)
}

// CheckRoomSpecs validates specs and returns a trimmed copy. path prefixes
// error messages so callers can point at the offending entry.
func CheckRoomSpecs(path string, specs []model.RoomSpec) ([]model.RoomSpec, error) {
	out := make([]model.RoomSpec, len(specs))
	seen := make(map[string]int, len(specs))
	for i, spec := range specs {
		spec.RoomNumber = strings.TrimSpace(spec.RoomNumber)
		switch {
		case spec.FloorNumber < 0:
			return nil, apperr.Validation("%s[%d]: floor number must not be negative", path, i)
		case spec.RoomNumber == "":
			return nil, apperr.Validation("%s[%d]: room number is required", path, i)
		case len(spec.RoomNumber) > 32:
			return nil, apperr.Validation("%s[%d]: room number %q is longer than 32 characters", path, i, spec.RoomNumber)
		case spec.Capacity < 1:
			return nil, apperr.Validation("%s[%d]: capacity must be at least 1", path, i)
		}
		if first, dup := seen[spec.RoomNumber]; dup {
			return nil, apperr.Validation("%s[%d]: room number %q duplicates %s[%d]", path, i, spec.RoomNumber, path, first)
		}
		seen[spec.RoomNumber] = i
		out[i] = spec
	}
	return out, nil
}

// SyncRooms makes the rooms of dorm equal to specs inside tx. specs must
// already have passed CheckRoomSpecs.
func SyncRooms(ctx context.Context, tx *gorm.DB, dorm *model.Dormitory, specs []model.RoomSpec, onDisplaced DisplacementFunc) (SyncResult, error) {
	var result SyncResult

	rooms, err := roomsOf(ctx, tx, dorm.ID)
	if err != nil {
		return result, err
	}
	usage, err := ledger.Usage(ctx, tx, rooms)
	if err != nil {
		return result, err
	}

	wanted := make(map[string]model.RoomSpec, len(specs))
	for _, spec := range specs {
		wanted[spec.RoomNumber] = spec
	}
	existing := make(map[string]struct{}, len(rooms))

	// Phase 1: remove rooms that are gone, shrink or move the rest.
	for _, u := range usage {
		existing[u.RoomNumber] = struct{}{}
		spec, keep := wanted[u.RoomNumber]

		if !keep {
			if u.Occupancy > 0 {
				if err := displace(ctx, tx, u, u.Occupancy, model.ReasonRoomRemoved, onDisplaced); err != nil {
					return result, err
				}
			}
			if err := tx.WithContext(ctx).Delete(&model.Room{}, u.ID).Error; err != nil {
				return result, fmt.Errorf("failed to delete room %d: %w", u.ID, err)
			}
			result.Removed++
			continue
		}

		if spec.Capacity < u.Occupancy {
			if err := displace(ctx, tx, u, u.Occupancy-spec.Capacity, model.ReasonCapacityReduced, onDisplaced); err != nil {
				return result, err
			}
		}
		if spec.FloorNumber != u.FloorNumber || spec.Capacity != u.Capacity {
			if err := tx.WithContext(ctx).Model(&model.Room{}).Where("id = ?", u.ID).
				Updates(map[string]any{"floor_number": spec.FloorNumber, "capacity": spec.Capacity}).Error; err != nil {
				return result, fmt.Errorf("failed to update room %d: %w", u.ID, err)
			}
			result.Updated++
		}
	}

	// Phase 2: create new room numbers in the order given.
	var toCreate []model.Room
	for _, spec := range specs {
		if _, ok := existing[spec.RoomNumber]; ok {
			continue
		}
		toCreate = append(toCreate, model.Room{
			DormitoryID: dorm.ID,
			FloorNumber: spec.FloorNumber,
			RoomNumber:  spec.RoomNumber,
			Capacity:    spec.Capacity,
		})
	}
	if len(toCreate) > 0 {
		if err := tx.WithContext(ctx).Create(&toCreate).Error; err != nil {
			return result, apperr.FromDB(err, fmt.Sprintf("failed to create rooms for dormitory %d", dorm.ID))
		}
		result.Created = len(toCreate)
	}
	return result, nil
}

// displace hands the last n occupants of a room (highest application ids)
// to onDisplaced.
func displace(ctx context.Context, tx *gorm.DB, room ledger.RoomUsage, n int, reason string, onDisplaced DisplacementFunc) error {
	occupants, err := ledger.Occupants(ctx, tx, []int64{room.ID})
	if err != nil {
		return err
	}
	apps := occupants[room.ID]
	if n < len(apps) {
		apps = apps[len(apps)-n:]
	}
	return onDisplaced(room, apps, reason)
}

// FindDormitory loads a dormitory without rooms.
func FindDormitory(ctx context.Context, db *gorm.DB, id int64) (*model.Dormitory, error) {
	var dorm model.Dormitory
	if err := db.WithContext(ctx).First(&dorm, id).Error; err != nil {
		return nil, apperr.FromDB(err, fmt.Sprintf("dormitory %d not found", id))
	}
	return &dorm, nil
}

// FindRoom loads a single room.
func FindRoom(ctx context.Context, db *gorm.DB, id int64) (*model.Room, error) {
	var room model.Room
	if err := db.WithContext(ctx).First(&room, id).Error; err != nil {
		return nil, apperr.FromDB(err, fmt.Sprintf("room %d not found", id))
	}
	return &room, nil
}

// AllRooms returns every room ordered by dormitory creation, floor, and room number.
func AllRooms(ctx context.Context, db *gorm.DB) ([]model.Room, error) {
	var rooms []model.Room
	if err := db.WithContext(ctx).Order("dormitory_id, floor_number, room_number, id").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

func roomsOf(ctx context.Context, db *gorm.DB, dormID int64) ([]model.Room, error) {
	var rooms []model.Room
	if err := db.WithContext(ctx).
		Where("dormitory_id = ?", dormID).
		Order("floor_number, room_number, id").
		Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("failed to load rooms of dormitory %d: %w", dormID, err)
	}
	return rooms, nil
}
