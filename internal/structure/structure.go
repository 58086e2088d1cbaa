// Package structure owns dormitories and their rooms.
package structure

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"dormitory-housing-backend/internal/apperr"
	"dormitory-housing-backend/internal/ledger"
	"dormitory-housing-backend/internal/lock"
	"dormitory-housing-backend/internal/model"
)

// Service is the structure store.
type Service struct {
	db    *gorm.DB
	locks *lock.Manager
	log   *zap.Logger
}

// NewService creates a structure store.
func NewService(db *gorm.DB, locks *lock.Manager, log *zap.Logger) *Service {
	return &Service{db: db, locks: locks, log: log.Named("structure")}
}

// DormitoryView is a dormitory with its rooms and their derived occupancy.
type DormitoryView struct {
	ID        int64              `json:"id"`
	Name      string             `json:"name"`
	Address   string             `json:"address"`
	CreatedAt time.Time          `json:"created_at"`
	Rooms     []ledger.RoomUsage `json:"rooms"`
}

// Occupant is an allocated application as shown inside a room.
type Occupant struct {
	ApplicationID int64     `json:"application_id"`
	LastName      string    `json:"last_name"`
	TicketNumber  string    `json:"ticket_number"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// RoomDetails is a room with its occupants resolved.
type RoomDetails struct {
	ledger.RoomUsage
	Occupants []Occupant `json:"occupants"`
}

// Details is the read-only aggregation returned by GetDetails.
type Details struct {
	ID      int64         `json:"id"`
	Name    string        `json:"name"`
	Address string        `json:"address"`
	Rooms   []RoomDetails `json:"rooms"`
}

// CreateDormitory adds an empty dormitory.
func (s *Service) CreateDormitory(ctx context.Context, name, address string) (*model.Dormitory, error) {
	name = strings.TrimSpace(name)
	address = strings.TrimSpace(address)
	if name == "" {
		return nil, apperr.Validation("dormitory name is required")
	}

	dorm := model.Dormitory{Name: name, Address: address}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Dormitory{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check dormitory name: %w", err)
		}
		if count > 0 {
			return apperr.Conflict("dormitory %q already exists", name)
		}
		if err := tx.Create(&dorm).Error; err != nil {
			return apperr.FromDB(err, fmt.Sprintf("failed to create dormitory %q", name))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("dormitory created", zap.Int64("dormitory_id", dorm.ID), zap.String("name", dorm.Name))
	return &dorm, nil
}

// ListDormitories returns every dormitory in creation order.
func (s *Service) ListDormitories(ctx context.Context) ([]DormitoryView, error) {
	var dorms []model.Dormitory
	if err := s.db.WithContext(ctx).
		Preload("Rooms", func(db *gorm.DB) *gorm.DB { return db.Order("floor_number, room_number, id") }).
		Order("id").
		Find(&dorms).Error; err != nil {
		return nil, fmt.Errorf("failed to list dormitories: %w", err)
	}

	views := make([]DormitoryView, 0, len(dorms))
	for _, d := range dorms {
		usage, err := ledger.Usage(ctx, s.db, d.Rooms)
		if err != nil {
			return nil, err
		}
		views = append(views, newView(d, usage))
	}
	return views, nil
}

// GetDormitory returns one dormitory with room usage.
func (s *Service) GetDormitory(ctx context.Context, id int64) (*DormitoryView, error) {
	return s.view(ctx, s.db, id)
}

// DeleteDormitory removes a dormitory and its rooms, refusing while anyone lives there.
func (s *Service) DeleteDormitory(ctx context.Context, id int64) error {
	release, err := s.locks.Dormitories(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dorm, err := FindDormitory(ctx, tx, id)
		if err != nil {
			return err
		}

		rooms, err := roomsOf(ctx, tx, id)
		if err != nil {
			return err
		}
		usage, err := ledger.Usage(ctx, tx, rooms)
		if err != nil {
			return err
		}
		for _, u := range usage {
			if u.Occupancy > 0 {
				return apperr.Conflict("dormitory %q still has %d occupant(s) in room %s", dorm.Name, u.Occupancy, u.RoomNumber)
			}
		}

		if err := tx.Where("dormitory_id = ?", id).Delete(&model.Room{}).Error; err != nil {
			return fmt.Errorf("failed to delete rooms of dormitory %d: %w", id, err)
		}
		if err := tx.Delete(&model.Dormitory{}, id).Error; err != nil {
			return fmt.Errorf("failed to delete dormitory %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("dormitory deleted", zap.Int64("dormitory_id", id))
	return nil
}

// ReplaceStructure redefines every room of a dormitory in one step. Rooms are
// matched by room number: matches are updated in place, missing rooms are
// removed and new numbers are created. Nothing changes if any spec is invalid
// or if an occupied room would be removed or shrunk below its occupancy.
func (s *Service) ReplaceStructure(ctx context.Context, id int64, specs []model.RoomSpec) (*DormitoryView, error) {
	specs, err := CheckRoomSpecs("rooms", specs)
	if err != nil {
		return nil, err
	}

	release, err := s.locks.Dormitories(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	var view *DormitoryView
	var result SyncResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dorm, err := FindDormitory(ctx, tx, id)
		if err != nil {
			return err
		}
		result, err = SyncRooms(ctx, tx, dorm, specs, refuseDisplacement)
		if err != nil {
			return err
		}
		view, err = s.view(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("dormitory structure replaced",
		zap.Int64("dormitory_id", id),
		zap.Int("rooms_created", result.Created),
		zap.Int("rooms_updated", result.Updated),
		zap.Int("rooms_removed", result.Removed))
	return view, nil
}

// GetDetails returns a dormitory with each room's occupants.
func (s *Service) GetDetails(ctx context.Context, id int64) (*Details, error) {
	dorm, err := FindDormitory(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	rooms, err := roomsOf(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(rooms))
	for i, r := range rooms {
		ids[i] = r.ID
	}
	occupants, err := ledger.Occupants(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}

	details := &Details{ID: dorm.ID, Name: dorm.Name, Address: dorm.Address, Rooms: make([]RoomDetails, 0, len(rooms))}
	for _, r := range rooms {
		apps := occupants[r.ID]
		rd := RoomDetails{
			RoomUsage: ledger.RoomUsage{Room: r, Occupancy: len(apps)},
			Occupants: make([]Occupant, 0, len(apps)),
		}
		for _, a := range apps {
			rd.Occupants = append(rd.Occupants, Occupant{
				ApplicationID: a.ID,
				LastName:      a.LastName,
				TicketNumber:  a.TicketNumber,
				SubmittedAt:   a.SubmittedAt,
			})
		}
		details.Rooms = append(details.Rooms, rd)
	}
	return details, nil
}

func (s *Service) view(ctx context.Context, db *gorm.DB, id int64) (*DormitoryView, error) {
	dorm, err := FindDormitory(ctx, db, id)
	if err != nil {
		return nil, err
	}
	rooms, err := roomsOf(ctx, db, id)
	if err != nil {
		return nil, err
	}
	usage, err := ledger.Usage(ctx, db, rooms)
	if err != nil {
		return nil, err
	}
	v := newView(*dorm, usage)
	return &v, nil
}

func newView(d model.Dormitory, usage []ledger.RoomUsage) DormitoryView {
	if usage == nil {
		usage = []ledger.RoomUsage{}
	}
	return DormitoryView{ID: d.ID, Name: d.Name, Address: d.Address, CreatedAt: d.CreatedAt, Rooms: usage}
}
