package scheduling

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/model"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := model.ParseClock(fl.Field().String())
		return err == nil
	})
	return v
}

// BuildSchedule checks cfg and converts its working days into availability rows
// ordered by weekday. Non-working days produce no row.
func BuildSchedule(providerID string, cfg model.WeeklyConfig) ([]model.WeeklyAvailability, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, describe(err)
	}

	seen := make(map[time.Weekday]bool, len(cfg.Days))
	var rows []model.WeeklyAvailability
	for i, day := range cfg.Days {
		if seen[day.DayOfWeek] {
			return nil, invalid(fmt.Sprintf("day_of_week %d appears more than once", day.DayOfWeek))
		}
		seen[day.DayOfWeek] = true
		if !day.IsWorking {
			continue
		}

		row, err := buildDay(providerID, cfg, day, fmt.Sprintf("days[%d].", i))
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, invalid("at least one working day required")
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].DayOfWeek < rows[j].DayOfWeek })
	return rows, nil
}

func buildDay(providerID string, cfg model.WeeklyConfig, day model.DayConfig, path string) (model.WeeklyAvailability, error) {
	name := day.DayOfWeek.String()
	if day.StartTime == "" || day.EndTime == "" {
		return model.WeeklyAvailability{}, invalid(name + ": start_time and end_time are required for a working day")
	}
	start, err := parseClock(path+"start_time", day.StartTime)
	if err != nil {
		return model.WeeklyAvailability{}, err
	}
	end, err := parseClock(path+"end_time", day.EndTime)
	if err != nil {
		return model.WeeklyAvailability{}, err
	}
	for i, b := range day.Breaks {
		if err := validate.Struct(b); err != nil {
			return model.WeeklyAvailability{}, describeAt(fmt.Sprintf("%sbreaks[%d].", path, i), err)
		}
	}
	if start >= end {
		return model.WeeklyAvailability{}, invalid(name + ": start_time must be before end_time")
	}

	breaks := make([]model.Break, 0, len(day.Breaks))
	for _, b := range day.Breaks {
		bs, _ := model.ParseClock(b.StartTime)
		be, _ := model.ParseClock(b.EndTime)
		if bs >= be {
			return model.WeeklyAvailability{}, invalid(fmt.Sprintf("%s: break %s-%s must start before it ends", name, b.StartTime, b.EndTime))
		}
		if bs < start || be > end {
			return model.WeeklyAvailability{}, invalid(fmt.Sprintf("%s: break %s-%s is outside working hours %s-%s", name, b.StartTime, b.EndTime, day.StartTime, day.EndTime))
		}
		breaks = append(breaks, model.Break{Start: bs, End: be})
	}
	sort.Slice(breaks, func(i, j int) bool { return breaks[i].Start < breaks[j].Start })
	for i := 1; i < len(breaks); i++ {
		if breaks[i].Start < breaks[i-1].End {
			return model.WeeklyAvailability{}, invalid(fmt.Sprintf("%s: breaks %s-%s and %s-%s overlap", name,
				breaks[i-1].Start, breaks[i-1].End, breaks[i].Start, breaks[i].End))
		}
	}

	return model.WeeklyAvailability{
		ProviderID:          providerID,
		DayOfWeek:           day.DayOfWeek,
		Start:               start,
		End:                 end,
		SlotDurationMinutes: cfg.SlotDurationMinutes,
		BufferMinutes:       cfg.BufferMinutes,
		Breaks:              breaks,
	}, nil
}

func parseClock(field, value string) (model.Clock, error) {
	if err := validate.Var(value, "clock"); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return 0, reason(field, verrs[0])
		}
		return 0, invalid(err.Error())
	}
	c, _ := model.ParseClock(value)
	return c, nil
}

func describe(err error) error {
	return describeAt("", err)
}

// describeAt reports the first validation failure, naming the field by its
// json path below the validated struct with prefix prepended.
func describeAt(prefix string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return invalid(err.Error())
	}
	fe := verrs[0]
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	return reason(prefix+field, fe)
}

func reason(field string, fe validator.FieldError) error {
	switch fe.Tag() {
	case "min":
		return invalid(fmt.Sprintf("%s must be at least %s", field, fe.Param()))
	case "max":
		return invalid(fmt.Sprintf("%s must be at most %s", field, fe.Param()))
	case "clock":
		return invalid(field + " must be formatted as HH:MM")
	case "required":
		return invalid(field + " is required")
	default:
		return invalid(fmt.Sprintf("%s failed %s validation", field, fe.Tag()))
	}
}

// ToConfig renders stored rows as a full seven-day week starting on Sunday.
func ToConfig(rows []model.WeeklyAvailability) model.WeeklyConfig {
	var cfg model.WeeklyConfig
	byDay := make(map[time.Weekday]model.WeeklyAvailability, len(rows))
	for _, r := range rows {
		if _, ok := byDay[r.DayOfWeek]; !ok {
			byDay[r.DayOfWeek] = r
		}
	}
	if len(rows) > 0 {
		cfg.SlotDurationMinutes = rows[0].SlotDurationMinutes
		cfg.BufferMinutes = rows[0].BufferMinutes
	}

	cfg.Days = make([]model.DayConfig, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		row, ok := byDay[d]
		if !ok {
			cfg.Days = append(cfg.Days, model.DayConfig{DayOfWeek: d, Breaks: []model.BreakConfig{}})
			continue
		}
		day := model.DayConfig{
			DayOfWeek: d,
			IsWorking: true,
			StartTime: row.Start.String(),
			EndTime:   row.End.String(),
			Breaks:    make([]model.BreakConfig, 0, len(row.Breaks)),
		}
		for _, b := range row.Breaks {
			day.Breaks = append(day.Breaks, model.BreakConfig{StartTime: b.Start.String(), EndTime: b.End.String()})
		}
		cfg.Days = append(cfg.Days, day)
	}
	return cfg
}
