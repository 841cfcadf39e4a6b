package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotkeeper/libs/db"
	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/model"
)

type SlotRepository struct {
	q db.Querier
}

func NewSlotRepository(q db.Querier) *SlotRepository {
	return &SlotRepository{q: q}
}

func (r *SlotRepository) DeleteFrom(ctx context.Context, providerID string, from time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		DELETE FROM time_slots
		WHERE provider_id = $1 AND start_time >= $2
	`, providerID, from.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var slotColumns = []string{"id", "provider_id", "start_time", "end_time", "status"}

// InsertAll bulk loads slots with COPY.
func (r *SlotRepository) InsertAll(ctx context.Context, slots []model.TimeSlot) error {
	if len(slots) == 0 {
		return nil
	}
	n, err := r.q.CopyFrom(ctx, pgx.Identifier{"time_slots"}, slotColumns, pgx.CopyFromSlice(len(slots), func(i int) ([]any, error) {
		return slotRow(slots[i])
	}))
	if err != nil {
		return err
	}
	if n != int64(len(slots)) {
		return fmt.Errorf("copied %d of %d slots", n, len(slots))
	}
	return nil
}

func slotRow(s model.TimeSlot) ([]any, error) {
	id, err := uuid.Parse(s.ID)
	if err != nil {
		return nil, fmt.Errorf("slot id %q: %w", s.ID, err)
	}
	providerID, err := uuid.Parse(s.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("provider id %q: %w", s.ProviderID, err)
	}
	status := s.Status
	if status == "" {
		status = model.SlotAvailable
	}
	return []any{id, providerID, s.StartTime.UTC(), s.EndTime.UTC(), string(status)}, nil
}

// QueryByProviderAndDate returns slots with the given status that start within
// [date, date+1 day), ordered by start time.
func (r *SlotRepository) QueryByProviderAndDate(ctx context.Context, providerID string, date time.Time, status model.SlotStatus) ([]model.TimeSlot, error) {
	out := []model.TimeSlot{}
	if !validID(providerID) {
		return out, nil
	}
	from := date.UTC()
	rows, err := r.q.Query(ctx, `
		SELECT id::text, provider_id::text, start_time, end_time, status
		FROM time_slots
		WHERE provider_id = $1 AND status = $2 AND start_time >= $3 AND start_time < $4
		ORDER BY start_time ASC
	`, providerID, string(status), from, from.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var s model.TimeSlot
		var st string
		if err := rows.Scan(&s.ID, &s.ProviderID, &s.StartTime, &s.EndTime, &st); err != nil {
			return nil, err
		}
		s.StartTime = s.StartTime.UTC()
		s.EndTime = s.EndTime.UTC()
		s.Status = model.SlotStatus(st)
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// SetStatus moves a single slot between available, reserved and blocked.
func (r *SlotRepository) SetStatus(ctx context.Context, providerID, slotID string, status model.SlotStatus) (bool, error) {
	if !validID(providerID) || !validID(slotID) {
		return false, nil
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE time_slots
		SET status = $3
		WHERE provider_id = $1 AND id = $2
	`, providerID, slotID, string(status))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
