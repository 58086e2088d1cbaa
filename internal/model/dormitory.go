package model

import "time"

// Dormitory represents a dormitory building.
type Dormitory struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:128;not null" json:"name"`
	Address   string    `gorm:"size:256;not null" json:"address"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`

	// Associations
	Rooms []Room `gorm:"foreignKey:DormitoryID;constraint:OnDelete:CASCADE" json:"rooms,omitempty"`
}

// Room is a bookable room inside a dormitory. Its occupancy is never stored;
// it is counted from allocated applications.
type Room struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	DormitoryID int64     `gorm:"not null;uniqueIndex:idx_rooms_dormitory_number" json:"dormitory_id"`
	FloorNumber int       `gorm:"not null" json:"floor_number"`
	RoomNumber  string    `gorm:"size:32;not null;uniqueIndex:idx_rooms_dormitory_number" json:"room_number"`
	Capacity    int       `gorm:"not null" json:"capacity"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

// RoomSpec is the editable part of a room, used by structure definitions
// and snapshots.
type RoomSpec struct {
	FloorNumber int    `json:"floor_number" yaml:"floor_number"`
	RoomNumber  string `json:"room_number" yaml:"room_number"`
	Capacity    int    `json:"capacity" yaml:"capacity"`
}

// Spec returns the editable fields of the room.
func (r Room) Spec() RoomSpec {
	return RoomSpec{FloorNumber: r.FloorNumber, RoomNumber: r.RoomNumber, Capacity: r.Capacity}
}
