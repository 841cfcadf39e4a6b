package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotkeeper/libs/db"
	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/model"
)

var ErrInvalidProviderID = errors.New("provider id must be a uuid")

type ProviderRepository struct {
	q db.Querier
}

func NewProviderRepository(q db.Querier) *ProviderRepository {
	return &ProviderRepository{q: q}
}

func (r *ProviderRepository) Exists(ctx context.Context, providerID string) (bool, error) {
	if !validID(providerID) {
		return false, nil
	}
	var ok bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM providers WHERE id = $1 AND is_active)
	`, providerID).Scan(&ok)
	return ok, err
}

func (r *ProviderRepository) Lock(ctx context.Context, providerID string) (bool, error) {
	if !validID(providerID) {
		return false, nil
	}
	var id string
	err := r.q.QueryRow(ctx, `
		SELECT id::text
		FROM providers
		WHERE id = $1 AND is_active
		FOR UPDATE
	`, providerID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// Upsert registers or updates a provider. Updates carrying an older UpdatedAt than
// the stored one are ignored so out-of-order deliveries cannot roll state back.
func (r *ProviderRepository) Upsert(ctx context.Context, p model.Provider) error {
	if !validID(p.ID) {
		return ErrInvalidProviderID
	}
	var businessID any
	if validID(p.BusinessID) {
		businessID = p.BusinessID
	}
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO providers (id, business_id, name, is_active, source_updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET business_id = EXCLUDED.business_id,
			name = EXCLUDED.name,
			is_active = EXCLUDED.is_active,
			source_updated_at = EXCLUDED.source_updated_at,
			updated_at = now()
		WHERE providers.source_updated_at <= EXCLUDED.source_updated_at
	`, p.ID, businessID, p.Name, p.IsActive, updatedAt.UTC())
	return err
}

func (r *ProviderRepository) Get(ctx context.Context, providerID string) (model.Provider, bool, error) {
	if !validID(providerID) {
		return model.Provider{}, false, nil
	}
	var p model.Provider
	var businessID *string
	err := r.q.QueryRow(ctx, `
		SELECT id::text, business_id::text, name, is_active, source_updated_at
		FROM providers
		WHERE id = $1
	`, providerID).Scan(&p.ID, &businessID, &p.Name, &p.IsActive, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Provider{}, false, nil
	}
	if err != nil {
		return model.Provider{}, false, err
	}
	if businessID != nil {
		p.BusinessID = *businessID
	}
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, true, nil
}
