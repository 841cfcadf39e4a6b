package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotkeeper/libs/db"
	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/model"
)

type AvailabilityRepository struct {
	q db.Querier
}

func NewAvailabilityRepository(q db.Querier) *AvailabilityRepository {
	return &AvailabilityRepository{q: q}
}

func (r *AvailabilityRepository) GetByProvider(ctx context.Context, providerID string) ([]model.WeeklyAvailability, error) {
	if !validID(providerID) {
		return nil, nil
	}
	rows, err := r.q.Query(ctx, `
		SELECT a.id, a.day_of_week, a.start_minute, a.end_minute, a.slot_duration_minutes, a.buffer_minutes,
			b.start_minute, b.end_minute
		FROM weekly_availability a
		LEFT JOIN availability_breaks b ON b.availability_id = a.id
		WHERE a.provider_id = $1
		ORDER BY a.day_of_week, b.start_minute
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WeeklyAvailability
	lastID := int64(-1)
	for rows.Next() {
		var (
			id                   int64
			day                  int16
			start, end           int
			duration, buffer     int
			breakStart, breakEnd *int
		)
		if err := rows.Scan(&id, &day, &start, &end, &duration, &buffer, &breakStart, &breakEnd); err != nil {
			return nil, err
		}
		if id != lastID {
			out = append(out, model.WeeklyAvailability{
				ProviderID:          providerID,
				DayOfWeek:           time.Weekday(day),
				Start:               model.Clock(start),
				End:                 model.Clock(end),
				SlotDurationMinutes: duration,
				BufferMinutes:       buffer,
			})
			lastID = id
		}
		if breakStart != nil && breakEnd != nil {
			cur := &out[len(out)-1]
			cur.Breaks = append(cur.Breaks, model.Break{Start: model.Clock(*breakStart), End: model.Clock(*breakEnd)})
		}
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ReplaceAll swaps the provider's rows for the given set. Run it inside a
// transaction; on the pool each statement commits on its own.
func (r *AvailabilityRepository) ReplaceAll(ctx context.Context, providerID string, rows []model.WeeklyAvailability) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM weekly_availability WHERE provider_id = $1`, providerID); err != nil {
		return err
	}

	var breaks [][]any
	for _, row := range rows {
		var id int64
		err := r.q.QueryRow(ctx, `
			INSERT INTO weekly_availability (provider_id, day_of_week, start_minute, end_minute, slot_duration_minutes, buffer_minutes)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, providerID, int16(row.DayOfWeek), int(row.Start), int(row.End), row.SlotDurationMinutes, row.BufferMinutes).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert %s: %w", row.DayOfWeek, err)
		}
		for _, b := range row.Breaks {
			breaks = append(breaks, []any{id, int32(b.Start), int32(b.End)})
		}
	}
	if len(breaks) == 0 {
		return nil
	}

	_, err := r.q.CopyFrom(ctx,
		pgx.Identifier{"availability_breaks"},
		[]string{"availability_id", "start_minute", "end_minute"},
		pgx.CopyFromRows(breaks),
	)
	return err
}

func (r *AvailabilityRepository) ListConfiguredProviders(ctx context.Context) ([]string, error) {
	rows, err := r.q.Query(ctx, `
		SELECT DISTINCT a.provider_id::text
		FROM weekly_availability a
		JOIN providers p ON p.id = a.provider_id
		WHERE p.is_active
		ORDER BY 1
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return ids, nil
}
