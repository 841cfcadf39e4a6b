package availability

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/model"
)

// Interval is a half-open wall-clock window [Start, End) within one day.
type Interval struct {
	Start model.Clock
	End   model.Clock
}

// DaySlots walks a single working day and returns the slot windows that do not
// touch any break. The cursor always advances by duration+buffer, so a slot
// rejected because of a break still consumes its buffer.
func DaySlots(day model.WeeklyAvailability) []Interval {
	duration := model.Clock(day.SlotDurationMinutes)
	buffer := model.Clock(day.BufferMinutes)
	if duration <= 0 || buffer < 0 || day.End <= day.Start {
		return nil
	}

	breaks := sortedBreaks(day.Breaks)
	var slots []Interval
	for cursor := day.Start; cursor+duration <= day.End; cursor += duration + buffer {
		slotEnd := cursor + duration
		if overlapsAny(cursor, slotEnd, breaks) {
			continue
		}
		slots = append(slots, Interval{Start: cursor, End: slotEnd})
	}
	return slots
}

// Generate expands the weekly template onto every UTC calendar date from
// rangeStart's date through rangeEnd's date inclusive. Slots starting before
// rangeStart are left out so a mid-day range does not duplicate slots that were
// kept by the caller. Returned slots carry no ID.
func Generate(providerID string, schedule []model.WeeklyAvailability, rangeStart, rangeEnd time.Time) []model.TimeSlot {
	rangeStart = rangeStart.UTC()
	rangeEnd = rangeEnd.UTC()
	if rangeEnd.Before(rangeStart) || len(schedule) == 0 {
		return nil
	}

	byDay := make(map[time.Weekday]model.WeeklyAvailability, len(schedule))
	for _, row := range schedule {
		if _, dup := byDay[row.DayOfWeek]; dup {
			continue
		}
		byDay[row.DayOfWeek] = row
	}

	var out []model.TimeSlot
	last := DateOf(rangeEnd)
	for d := DateOf(rangeStart); !d.After(last); d = d.AddDate(0, 0, 1) {
		row, ok := byDay[d.Weekday()]
		if !ok {
			continue
		}
		for _, iv := range DaySlots(row) {
			start := iv.Start.On(d)
			if start.Before(rangeStart) {
				continue
			}
			out = append(out, model.TimeSlot{
				ProviderID: providerID,
				StartTime:  start,
				EndTime:    iv.End.On(d),
				Status:     model.SlotAvailable,
			})
		}
	}
	return out
}

// DateOf truncates t to midnight of its UTC calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sortedBreaks(in []model.Break) []model.Break {
	out := append([]model.Break(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func overlapsAny(start, end model.Clock, breaks []model.Break) bool {
	for _, b := range breaks {
		// [start,end) is clear of [b.Start,b.End) only when it ends before or starts after.
		if !(end <= b.Start || start >= b.End) {
			return true
		}
	}
	return false
}
