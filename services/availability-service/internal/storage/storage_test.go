package storage

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotkeeper/libs/db"
	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/scheduling"
)

func TestSlotRow(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.FixedZone("X", 3600))
	row, err := slotRow(model.TimeSlot{
		ID:         "9b2d1f0e-44a4-4c1e-8f0b-000000000001",
		ProviderID: "9b2d1f0e-44a4-4c1e-8f0b-000000000002",
		StartTime:  start,
		EndTime:    start.Add(30 * time.Minute),
	})
	if err != nil {
		t.Fatalf("slot row: %v", err)
	}
	if _, ok := row[0].(uuid.UUID); !ok {
		t.Fatalf("expected uuid id, got %T", row[0])
	}
	if ts := row[2].(time.Time); ts.Location() != time.UTC || ts.Hour() != 8 {
		t.Fatalf("expected start converted to UTC, got %s", ts)
	}
	if row[4] != "available" {
		t.Fatalf("expected default status available, got %v", row[4])
	}

	if _, err := slotRow(model.TimeSlot{ID: "nope", ProviderID: "9b2d1f0e-44a4-4c1e-8f0b-000000000002"}); err == nil {
		t.Fatal("expected invalid slot id to be rejected")
	}
}

func TestSchemaIsEmbedded(t *testing.T) {
	for _, table := range []string{"providers", "weekly_availability", "availability_breaks", "time_slots", "outbox_events", "inbox_events"} {
		if !strings.Contains(schema, "CREATE TABLE IF NOT EXISTS "+table+" (") {
			t.Fatalf("schema is missing table %s", table)
		}
	}
}

// The tests below talk to a real Postgres when TEST_DATABASE_URL is set.
func openTestStore(t *testing.T) (*Store, *db.Pool) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := db.Open(ctx, url)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewStore(pool), pool
}

func TestStoreRoundTrip(t *testing.T) {
	store, pool := openTestStore(t)
	ctx := context.Background()
	providerID := uuid.NewString()

	providers := NewProviderRepository(pool)
	if err := providers.Upsert(ctx, model.Provider{ID: providerID, Name: "Dr. Test", IsActive: true}); err != nil {
		t.Fatalf("upsert provider: %v", err)
	}
	if ok, err := store.Providers().Exists(ctx, providerID); err != nil || !ok {
		t.Fatalf("expected provider to exist, ok=%v err=%v", ok, err)
	}

	rows := []model.WeeklyAvailability{{
		ProviderID:          providerID,
		DayOfWeek:           time.Monday,
		Start:               9 * 60,
		End:                 18 * 60,
		SlotDurationMinutes: 30,
		BufferMinutes:       10,
		Breaks:              []model.Break{{Start: 15 * 60, End: 15*60 + 15}, {Start: 13 * 60, End: 14 * 60}},
	}}
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	slot := model.TimeSlot{ID: uuid.NewString(), ProviderID: providerID, StartTime: monday.Add(9 * time.Hour), EndTime: monday.Add(9*time.Hour + 30*time.Minute), Status: model.SlotAvailable}

	err := store.InTx(ctx, func(tx scheduling.Repositories) error {
		if ok, err := tx.Providers.Lock(ctx, providerID); err != nil || !ok {
			t.Fatalf("lock: ok=%v err=%v", ok, err)
		}
		if err := tx.Availability.ReplaceAll(ctx, providerID, rows); err != nil {
			return err
		}
		if _, err := tx.Slots.DeleteFrom(ctx, providerID, monday); err != nil {
			return err
		}
		return tx.Slots.InsertAll(ctx, []model.TimeSlot{slot})
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	got, err := store.Availability().GetByProvider(ctx, providerID)
	if err != nil {
		t.Fatalf("get availability: %v", err)
	}
	if len(got) != 1 || len(got[0].Breaks) != 2 || got[0].Breaks[0].Start != 13*60 {
		t.Fatalf("unexpected availability %+v", got)
	}

	slots, err := store.Slots().QueryByProviderAndDate(ctx, providerID, monday, model.SlotAvailable)
	if err != nil {
		t.Fatalf("query slots: %v", err)
	}
	if len(slots) != 1 || slots[0].ID != slot.ID || !slots[0].StartTime.Equal(slot.StartTime) || slots[0].StartTime.Location() != time.UTC {
		t.Fatalf("unexpected slots %+v", slots)
	}

	if ok, err := store.Slots().SetStatus(ctx, providerID, slot.ID, model.SlotReserved); err != nil || !ok {
		t.Fatalf("set status: ok=%v err=%v", ok, err)
	}
	if slots, _ := store.Slots().QueryByProviderAndDate(ctx, providerID, monday, model.SlotAvailable); len(slots) != 0 {
		t.Fatalf("expected reserved slot to be filtered, got %d", len(slots))
	}
}

func registerTestProvider(t *testing.T, pool *db.Pool) string {
	t.Helper()
	id := uuid.NewString()
	if err := NewProviderRepository(pool).Upsert(context.Background(), model.Provider{ID: id, Name: "Dr. Test", IsActive: true}); err != nil {
		t.Fatalf("upsert provider: %v", err)
	}
	return id
}

func TestProviderLockBlocksSecondTransaction(t *testing.T) {
	store, pool := openTestStore(t)
	ctx := context.Background()
	providerID := registerTestProvider(t, pool)

	holder, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer func() { _ = holder.Rollback(ctx) }()
	if ok, err := NewProviderRepository(holder).Lock(ctx, providerID); err != nil || !ok {
		t.Fatalf("first lock: ok=%v err=%v", ok, err)
	}

	acquired := make(chan error, 1)
	go func() {
		acquired <- store.InTx(ctx, func(tx scheduling.Repositories) error {
			_, err := tx.Providers.Lock(ctx, providerID)
			return err
		})
	}()

	select {
	case err := <-acquired:
		t.Fatalf("second lock returned while the first was held: %v", err)
	case <-time.After(300 * time.Millisecond):
	}

	if err := holder.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("second lock: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("second lock never acquired after the first committed")
	}
}

func TestConcurrentConfigureLeavesOneSchedule(t *testing.T) {
	store, pool := openTestStore(t)
	ctx := context.Background()
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	svc := scheduling.NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)), scheduling.Config{
		HorizonDays: 13,
		Now:         func() time.Time { return monday.Add(8 * time.Hour) },
	})

	mondayOnly := func(slotMinutes int) model.WeeklyConfig {
		return model.WeeklyConfig{
			SlotDurationMinutes: slotMinutes,
			Days:                []model.DayConfig{{DayOfWeek: time.Monday, IsWorking: true, StartTime: "09:00", EndTime: "12:00"}},
		}
	}

	for round := 0; round < 5; round++ {
		providerID := registerTestProvider(t, pool)

		var wg sync.WaitGroup
		errs := make(chan error, 2)
		for _, minutes := range []int{30, 60} {
			wg.Add(1)
			go func(cfg model.WeeklyConfig) {
				defer wg.Done()
				_, err := svc.Configure(ctx, providerID, cfg)
				errs <- err
			}(mondayOnly(minutes))
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("round %d: concurrent configure failed: %v", round, err)
			}
		}

		rows, err := store.Availability().GetByProvider(ctx, providerID)
		if err != nil || len(rows) != 1 {
			t.Fatalf("round %d: expected one stored row, got %d (err=%v)", round, len(rows), err)
		}
		from, to := svc.Horizon()
		want := availability.Generate(providerID, rows, from, to)

		var total, starts, durations int
		err = pool.QueryRow(ctx, `
			SELECT count(*), count(DISTINCT start_time), count(DISTINCT end_time - start_time)
			FROM time_slots
			WHERE provider_id = $1
		`, providerID).Scan(&total, &starts, &durations)
		if err != nil {
			t.Fatalf("round %d: count slots: %v", round, err)
		}
		if total != starts || durations != 1 {
			t.Fatalf("round %d: slots from both schedules interleaved: total=%d starts=%d durations=%d", round, total, starts, durations)
		}
		if total != len(want) {
			t.Fatalf("round %d: expected %d slots for the %d-minute schedule, got %d", round, len(want), rows[0].SlotDurationMinutes, total)
		}
	}
}
