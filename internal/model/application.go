package model

import (
	"fmt"
	"strings"
	"time"
)

// ApplicationStatus is the lifecycle state of a housing application.
type ApplicationStatus string

const (
	StatusPending   ApplicationStatus = "pending"
	StatusApproved  ApplicationStatus = "approved"
	StatusRejected  ApplicationStatus = "rejected"
	StatusAllocated ApplicationStatus = "allocated"
)

// ActiveStatuses are the states that block a new submission for the same student.
var ActiveStatuses = []ApplicationStatus{StatusPending, StatusApproved, StatusAllocated}

// ParseApplicationStatus maps a boundary string onto the closed status set.
func ParseApplicationStatus(raw string) (ApplicationStatus, error) {
	switch s := ApplicationStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusPending, StatusApproved, StatusRejected, StatusAllocated:
		return s, nil
	default:
		return "", fmt.Errorf("unknown application status %q", raw)
	}
}

// IsActive reports whether the status counts as an open application.
func (s ApplicationStatus) IsActive() bool {
	return s == StatusPending || s == StatusApproved || s == StatusAllocated
}

// Application is a student's request for a dormitory place.
//
// AllocatedRoomID is set if and only if Status is StatusAllocated.
type Application struct {
	ID              int64             `gorm:"primaryKey" json:"id"`
	LastName        string            `gorm:"size:100;not null" json:"last_name"`
	LastNameKey     string            `gorm:"size:100;not null;index:idx_applications_identity" json:"-"`
	TicketNumber    string            `gorm:"size:50;not null;index:idx_applications_identity" json:"ticket_number"`
	SubmittedAt     time.Time         `gorm:"not null;index" json:"submitted_at"`
	Status          ApplicationStatus `gorm:"size:16;not null;index" json:"status"`
	AllocatedRoomID *int64            `gorm:"index" json:"allocated_room_id"`
	Comment         string            `gorm:"size:512" json:"comment,omitempty"`
	CreatedAt       time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"not null" json:"updated_at"`
}

// IsAllocatedTo reports whether the application currently occupies roomID.
func (a *Application) IsAllocatedTo(roomID int64) bool {
	return a.Status == StatusAllocated && a.AllocatedRoomID != nil && *a.AllocatedRoomID == roomID
}

// Release clears the room reference and moves the application to status.
func (a *Application) Release(status ApplicationStatus) {
	a.AllocatedRoomID = nil
	a.Status = status
}
