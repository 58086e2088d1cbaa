package model

// ReconciliationNotice records an allocation that a structural change
// displaced. It is informational: the change itself succeeded.
type ReconciliationNotice struct {
	ApplicationID int64  `json:"application_id"`
	RoomID        int64  `json:"room_id"`
	DormitoryName string `json:"dormitory_name"`
	RoomNumber    string `json:"room_number"`
	Reason        string `json:"reason"`
}

const (
	ReasonRoomRemoved     = "room_removed"
	ReasonCapacityReduced = "capacity_reduced"
	ReasonRoomUnresolved  = "room_unresolved"
)
