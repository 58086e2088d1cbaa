// Package registry owns housing applications and their lifecycle.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"dormitory-housing-backend/internal/apperr"
	"dormitory-housing-backend/internal/lock"
	"dormitory-housing-backend/internal/model"
	"dormitory-housing-backend/internal/parse"
	"dormitory-housing-backend/internal/structure"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// Service is the application registry.
type Service struct {
	db    *gorm.DB
	locks *lock.Manager
	log   *zap.Logger
	now   func() time.Time
}

// NewService creates an application registry.
func NewService(db *gorm.DB, locks *lock.Manager, log *zap.Logger) *Service {
	return &Service{
		db:    db,
		locks: locks,
		log:   log.Named("registry"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// ListOptions filters and pages List.
type ListOptions struct {
	Offset int
	Limit  int
	Status *model.ApplicationStatus
}

// Submit records a new pending application. A student may hold only one
// active application at a time.
func (s *Service) Submit(ctx context.Context, lastName, ticketNumber string) (*model.Application, error) {
	id, err := parse.ParseIdentity(lastName, ticketNumber)
	if err != nil {
		return nil, err
	}

	release, err := s.locks.Keys(ctx, lock.ApplicantKey(id.TicketNumber))
	if err != nil {
		return nil, err
	}
	defer release()

	app := model.Application{
		LastName:     id.LastName,
		LastNameKey:  id.LastNameKey,
		TicketNumber: id.TicketNumber,
		SubmittedAt:  s.now(),
		Status:       model.StatusPending,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active model.Application
		err := identityScope(tx, id).
			Where("status IN ?", model.ActiveStatuses).
			Order("submitted_at DESC, id DESC").
			Take(&active).Error
		switch {
		case err == nil:
			return apperr.Conflict("student already has an active application (id %d, status %s)", active.ID, active.Status)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("failed to check active applications: %w", err)
		}

		if err := tx.Create(&app).Error; err != nil {
			return fmt.Errorf("failed to create application: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("application submitted", zap.Int64("application_id", app.ID), zap.String("ticket_number", app.TicketNumber))
	return &app, nil
}

// SetStatus moves an application to a new status. Leaving "allocated"
// releases the room, and reopening a rejected application is refused while
// the student has another active one. Moving to "allocated" is refused: rooms are assigned
// through the allocation engine so capacity is checked.
func (s *Service) SetStatus(ctx context.Context, id int64, status model.ApplicationStatus, reason string) (*model.Application, error) {
	reason = strings.TrimSpace(reason)
	switch status {
	case model.StatusAllocated:
		return nil, apperr.Validation("status %q can only be set by allocating a room", status)
	case model.StatusRejected:
		if reason == "" {
			return nil, apperr.Validation("a reason is required to reject an application")
		}
	case model.StatusPending, model.StatusApproved:
	default:
		return nil, apperr.Validation("unknown application status %q", status)
	}

	// Ticket numbers never change, so the applicant key can be read before locking.
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	keys := []string{lock.ApplicationKey(id)}
	if status.IsActive() {
		keys = append(keys, lock.ApplicantKey(current.TicketNumber))
	}
	releaseKeys, err := s.locks.Keys(ctx, keys...)
	if err != nil {
		return nil, err
	}
	defer releaseKeys()

	current, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// Releasing a room changes its occupancy, so the dormitory is locked too.
	if current.Status == model.StatusAllocated && current.AllocatedRoomID != nil {
		room, err := structure.FindRoom(ctx, s.db, *current.AllocatedRoomID)
		switch {
		case err == nil:
			releaseDorm, err := s.locks.Dormitories(ctx, room.DormitoryID)
			if err != nil {
				return nil, err
			}
			defer releaseDorm()
		case !errors.Is(err, apperr.ErrNotFound):
			return nil, err
		}
	}

	var app model.Application
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := Load(ctx, tx, id)
		if err != nil {
			return err
		}
		app = *loaded

		from := app.Status
		if !from.IsActive() && status.IsActive() {
			var other model.Application
			err := identityScope(tx, parse.Identity{TicketNumber: app.TicketNumber, LastNameKey: app.LastNameKey}).
				Where("status IN ?", model.ActiveStatuses).
				Where("id <> ?", id).
				Take(&other).Error
			switch {
			case err == nil:
				return apperr.Conflict("student already has an active application (id %d, status %s)", other.ID, other.Status)
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return fmt.Errorf("failed to check active applications: %w", err)
			}
		}
		if from == model.StatusAllocated {
			app.Release(status)
		}
		app.Status = status
		app.Comment = reason

		if err := tx.Save(&app).Error; err != nil {
			return fmt.Errorf("failed to update application %d: %w", id, err)
		}
		s.log.Info("application status changed",
			zap.Int64("application_id", id),
			zap.String("from", string(from)),
			zap.String("to", string(status)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &app, nil
}

// FindByIdentity returns the most recent application of a student.
func (s *Service) FindByIdentity(ctx context.Context, lastName, ticketNumber string) (*model.Application, error) {
	id, err := parse.ParseIdentity(lastName, ticketNumber)
	if err != nil {
		return nil, err
	}

	var app model.Application
	if err := identityScope(s.db.WithContext(ctx), id).
		Order("submitted_at DESC, id DESC").
		Take(&app).Error; err != nil {
		return nil, apperr.FromDB(err, "no application found for the given last name and ticket number")
	}
	return &app, nil
}

// Get loads one application.
func (s *Service) Get(ctx context.Context, id int64) (*model.Application, error) {
	return Load(ctx, s.db, id)
}

// List returns applications newest first together with the total count.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]model.Application, int64, error) {
	if opts.Offset < 0 {
		return nil, 0, apperr.Validation("offset must not be negative")
	}
	switch {
	case opts.Limit <= 0:
		opts.Limit = DefaultListLimit
	case opts.Limit > MaxListLimit:
		opts.Limit = MaxListLimit
	}

	q := s.db.WithContext(ctx).Model(&model.Application{})
	if opts.Status != nil {
		q = q.Where("status = ?", *opts.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count applications: %w", err)
	}

	var apps []model.Application
	if err := q.Order("submitted_at DESC, id DESC").Offset(opts.Offset).Limit(opts.Limit).Find(&apps).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list applications: %w", err)
	}
	return apps, total, nil
}

// ApprovedQueue returns the ids of approved applications, first come first served.
func (s *Service) ApprovedQueue(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.WithContext(ctx).
		Model(&model.Application{}).
		Where("status = ?", model.StatusApproved).
		Order("submitted_at, id").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to load approved applications: %w", err)
	}
	return ids, nil
}

// Load reads an application through db, which may be a transaction.
func Load(ctx context.Context, db *gorm.DB, id int64) (*model.Application, error) {
	var app model.Application
	if err := db.WithContext(ctx).First(&app, id).Error; err != nil {
		return nil, apperr.FromDB(err, fmt.Sprintf("application %d not found", id))
	}
	return &app, nil
}

// Assign binds app to roomID and marks it allocated. Capacity checks and
// locking are the caller's job.
func Assign(ctx context.Context, tx *gorm.DB, app *model.Application, roomID int64) error {
	app.Status = model.StatusAllocated
	app.AllocatedRoomID = &roomID
	app.Comment = ""
	if err := tx.WithContext(ctx).Save(app).Error; err != nil {
		return fmt.Errorf("failed to allocate application %d: %w", app.ID, err)
	}
	return nil
}

// Demote releases the room of every given application and returns them to
// approved, used when a structure change removes their place.
func Demote(ctx context.Context, tx *gorm.DB, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := tx.WithContext(ctx).
		Model(&model.Application{}).
		Where("id IN ? AND status = ?", ids, model.StatusAllocated).
		Updates(map[string]any{"status": model.StatusApproved, "allocated_room_id": nil}).Error; err != nil {
		return fmt.Errorf("failed to demote applications: %w", err)
	}
	return nil
}

func identityScope(db *gorm.DB, id parse.Identity) *gorm.DB {
	return db.Model(&model.Application{}).
		Where("ticket_number = ? AND last_name_key = ?", id.TicketNumber, id.LastNameKey)
}
