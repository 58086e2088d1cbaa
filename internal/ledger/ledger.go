// Package ledger answers capacity questions about rooms. Occupancy is always
// counted from allocated applications; nothing here stores a counter.
package ledger

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"dormitory-housing-backend/internal/model"
)

// RoomUsage pairs a room with its derived occupancy.
type RoomUsage struct {
	model.Room
	Occupancy int `json:"current_occupancy"`
}

// Headroom is the number of free places left in the room.
func (u RoomUsage) Headroom() int {
	if free := u.Capacity - u.Occupancy; free > 0 {
		return free
	}
	return 0
}

// Full reports whether no place is left.
func (u RoomUsage) Full() bool { return u.Headroom() == 0 }

type occupancyRow struct {
	AllocatedRoomID int64
	Occupancy       int
}

// OccupancyByRoom counts allocated applications per room. Rooms without
// occupants are absent from the result. db may be a transaction.
func OccupancyByRoom(ctx context.Context, db *gorm.DB, roomIDs []int64) (map[int64]int, error) {
	result := make(map[int64]int, len(roomIDs))
	if len(roomIDs) == 0 {
		return result, nil
	}

	var rows []occupancyRow
	if err := db.WithContext(ctx).
		Model(&model.Application{}).
		Select("allocated_room_id, COUNT(*) AS occupancy").
		Where("status = ? AND allocated_room_id IN ?", model.StatusAllocated, roomIDs).
		Group("allocated_room_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count room occupancy: %w", err)
	}

	for _, r := range rows {
		result[r.AllocatedRoomID] = r.Occupancy
	}
	return result, nil
}

// Occupancy counts the allocated applications of a single room.
func Occupancy(ctx context.Context, db *gorm.DB, roomID int64) (int, error) {
	counts, err := OccupancyByRoom(ctx, db, []int64{roomID})
	if err != nil {
		return 0, err
	}
	return counts[roomID], nil
}

// Usage attaches derived occupancy to each room, keeping the input order.
func Usage(ctx context.Context, db *gorm.DB, rooms []model.Room) ([]RoomUsage, error) {
	ids := make([]int64, len(rooms))
	for i, r := range rooms {
		ids[i] = r.ID
	}
	counts, err := OccupancyByRoom(ctx, db, ids)
	if err != nil {
		return nil, err
	}

	usage := make([]RoomUsage, len(rooms))
	for i, r := range rooms {
		usage[i] = RoomUsage{Room: r, Occupancy: counts[r.ID]}
	}
	return usage, nil
}

// Occupants returns the applications allocated to the given rooms, keyed by
// room id and ordered by allocation id.
func Occupants(ctx context.Context, db *gorm.DB, roomIDs []int64) (map[int64][]model.Application, error) {
	result := make(map[int64][]model.Application, len(roomIDs))
	if len(roomIDs) == 0 {
		return result, nil
	}

	var apps []model.Application
	if err := db.WithContext(ctx).
		Where("status = ? AND allocated_room_id IN ?", model.StatusAllocated, roomIDs).
		Order("id").
		Find(&apps).Error; err != nil {
		return nil, fmt.Errorf("failed to load room occupants: %w", err)
	}

	for _, app := range apps {
		result[*app.AllocatedRoomID] = append(result[*app.AllocatedRoomID], app)
	}
	return result, nil
}
