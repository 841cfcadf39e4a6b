package scheduling

import (
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/model"
)

type configuredPayload struct {
	ProviderID          string         `json:"provider_id"`
	SlotDurationMinutes int            `json:"slot_duration_minutes"`
	BufferMinutes       int            `json:"buffer_minutes"`
	WorkingDays         []time.Weekday `json:"working_days"`
	ConfiguredAt        time.Time      `json:"configured_at"`
}

func newConfiguredPayload(providerID string, cfg model.WeeklyConfig, rows []model.WeeklyAvailability, at time.Time) configuredPayload {
	days := make([]time.Weekday, 0, len(rows))
	for _, r := range rows {
		days = append(days, r.DayOfWeek)
	}
	return configuredPayload{
		ProviderID:          providerID,
		SlotDurationMinutes: cfg.SlotDurationMinutes,
		BufferMinutes:       cfg.BufferMinutes,
		WorkingDays:         days,
		ConfiguredAt:        at.UTC(),
	}
}

type regeneratedPayload struct {
	ProviderID  string    `json:"provider_id"`
	RangeStart  time.Time `json:"range_start"`
	RangeEnd    time.Time `json:"range_end"`
	Deleted     int64     `json:"deleted"`
	Generated   int       `json:"generated"`
	GeneratedAt time.Time `json:"generated_at"`
}
