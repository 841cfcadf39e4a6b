package model

import "time"

type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotReserved  SlotStatus = "reserved"
	SlotBlocked   SlotStatus = "blocked"
)

func (s SlotStatus) Valid() bool {
	switch s {
	case SlotAvailable, SlotReserved, SlotBlocked:
		return true
	}
	return false
}

type TimeSlot struct {
	ID         string
	ProviderID string
	StartTime  time.Time
	EndTime    time.Time
	Status     SlotStatus
}
