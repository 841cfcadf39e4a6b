package model

import "time"

type Break struct {
	Start Clock
	End   Clock
}

// WeeklyAvailability is the stored working window for one weekday of a provider.
// Slot length and buffer are repeated on every row of the same provider.
type WeeklyAvailability struct {
	ProviderID          string
	DayOfWeek           time.Weekday
	Start               Clock
	End                 Clock
	SlotDurationMinutes int
	BufferMinutes       int
	Breaks              []Break
}

func (w WeeklyAvailability) SlotDuration() time.Duration {
	return time.Duration(w.SlotDurationMinutes) * time.Minute
}

func (w WeeklyAvailability) Buffer() time.Duration {
	return time.Duration(w.BufferMinutes) * time.Minute
}

// WeeklyConfig is the provider-facing shape of a weekly schedule.
type WeeklyConfig struct {
	SlotDurationMinutes int         `json:"slot_duration_minutes" validate:"min=15,max=120"`
	BufferMinutes       int         `json:"buffer_minutes" validate:"min=0,max=60"`
	Days                []DayConfig `json:"days" validate:"dive"`
}

// DayConfig times and breaks are only checked when IsWorking is set; a
// non-working day may carry whatever a client left in them.
type DayConfig struct {
	DayOfWeek time.Weekday  `json:"day_of_week" validate:"min=0,max=6"`
	IsWorking bool          `json:"is_working"`
	StartTime string        `json:"start_time"`
	EndTime   string        `json:"end_time"`
	Breaks    []BreakConfig `json:"breaks"`
}

type BreakConfig struct {
	StartTime string `json:"start_time" validate:"required,clock"`
	EndTime   string `json:"end_time" validate:"required,clock"`
}

type Provider struct {
	ID         string
	BusinessID string
	Name       string
	IsActive   bool
	UpdatedAt  time.Time
}
