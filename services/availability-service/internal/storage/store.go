package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotkeeper/libs/db"
	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/outbox"
	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/scheduling"
)

// Store hands out repositories bound either to the pool or to a transaction.
type Store struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

var _ scheduling.Store = (*Store)(nil)

func NewStore(pool *db.Pool) *Store {
	return &Store{pool: pool, outbox: outbox.NewRepository()}
}

func (s *Store) Providers() scheduling.ProviderRepository {
	return NewProviderRepository(s.pool)
}

func (s *Store) Availability() scheduling.AvailabilityRepository {
	return NewAvailabilityRepository(s.pool)
}

func (s *Store) Slots() scheduling.SlotRepository {
	return NewSlotRepository(s.pool)
}

func (s *Store) InTx(ctx context.Context, fn func(tx scheduling.Repositories) error) error {
	return s.pool.InTx(ctx, func(tx pgx.Tx) error {
		return fn(scheduling.Repositories{
			Providers:    NewProviderRepository(tx),
			Availability: NewAvailabilityRepository(tx),
			Slots:        NewSlotRepository(tx),
			Events:       eventWriter{q: tx, repo: s.outbox},
		})
	})
}

type eventWriter struct {
	q    db.Querier
	repo *outbox.Repository
}

func (w eventWriter) Append(ctx context.Context, evt outbox.Event) error {
	return w.repo.Insert(ctx, w.q, evt)
}

// validID filters ids that Postgres would reject as uuid input.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
