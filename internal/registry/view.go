package registry

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"dormitory-housing-backend/internal/model"
)

// Placement describes where an allocated application lives.
type Placement struct {
	DormitoryID      int64  `json:"dormitory_id"`
	DormitoryName    string `json:"dormitory_name"`
	DormitoryAddress string `json:"dormitory_address"`
	RoomID           int64  `json:"room_id"`
	RoomNumber       string `json:"room_number"`
	FloorNumber      int    `json:"floor_number"`
}

// View is an application with its placement resolved.
type View struct {
	model.Application
	Placement *Placement `json:"placement,omitempty"`
}

// Status returns the latest application of a student with its placement.
func (s *Service) Status(ctx context.Context, lastName, ticketNumber string) (*View, error) {
	app, err := s.FindByIdentity(ctx, lastName, ticketNumber)
	if err != nil {
		return nil, err
	}
	views, err := Describe(ctx, s.db, []model.Application{*app})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// ListViews is List with placements resolved.
func (s *Service) ListViews(ctx context.Context, opts ListOptions) ([]View, int64, error) {
	apps, total, err := s.List(ctx, opts)
	if err != nil {
		return nil, 0, err
	}
	views, err := Describe(ctx, s.db, apps)
	if err != nil {
		return nil, 0, err
	}
	return views, total, nil
}

// Describe resolves the placement of every allocated application in apps.
func Describe(ctx context.Context, db *gorm.DB, apps []model.Application) ([]View, error) {
	roomIDs := make([]int64, 0, len(apps))
	for _, a := range apps {
		if a.AllocatedRoomID != nil {
			roomIDs = append(roomIDs, *a.AllocatedRoomID)
		}
	}

	rooms := make(map[int64]model.Room, len(roomIDs))
	dorms := make(map[int64]model.Dormitory)
	if len(roomIDs) > 0 {
		var rs []model.Room
		if err := db.WithContext(ctx).Where("id IN ?", roomIDs).Find(&rs).Error; err != nil {
			return nil, fmt.Errorf("failed to load rooms: %w", err)
		}
		dormIDs := make([]int64, 0, len(rs))
		for _, r := range rs {
			rooms[r.ID] = r
			dormIDs = append(dormIDs, r.DormitoryID)
		}

		var ds []model.Dormitory
		if err := db.WithContext(ctx).Where("id IN ?", dormIDs).Find(&ds).Error; err != nil {
			return nil, fmt.Errorf("failed to load dormitories: %w", err)
		}
		for _, d := range ds {
			dorms[d.ID] = d
		}
	}

	views := make([]View, len(apps))
	for i, a := range apps {
		views[i] = View{Application: a}
		if a.AllocatedRoomID == nil {
			continue
		}
		room, ok := rooms[*a.AllocatedRoomID]
		if !ok {
			continue
		}
		dorm := dorms[room.DormitoryID]
		views[i].Placement = &Placement{
			DormitoryID:      dorm.ID,
			DormitoryName:    dorm.Name,
			DormitoryAddress: dorm.Address,
			RoomID:           room.ID,
			RoomNumber:       room.RoomNumber,
			FloorNumber:      room.FloorNumber,
		}
	}
	return views, nil
}
