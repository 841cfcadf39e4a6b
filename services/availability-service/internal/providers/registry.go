package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/md-rashed-zaman/slotkeeper/libs/kafkax"
	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/consumer"
	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/model"
	"github.com/segmentio/kafka-go"
)

// Repository persists the local copy of providers.
type Repository interface {
	Upsert(ctx context.Context, p model.Provider) error
}

// Registration is the wire shape of a provider update, shared by the staff
// event topic and the internal HTTP endpoint. StaffID is accepted as an alias
// of ID because the business service publishes staff records.
type Registration struct {
	ID         string `json:"provider_id" validate:"omitempty,uuid"`
	StaffID    string `json:"staff_id" validate:"omitempty,uuid"`
	BusinessID string `json:"business_id" validate:"omitempty,uuid"`
	Name       string `json:"name" validate:"max=200"`
	IsActive   *bool  `json:"is_active"`
	UpdatedAt  string `json:"updated_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

var ErrInvalidRegistration = errors.New("invalid provider registration")

type Registry struct {
	repo     Repository
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

func NewRegistry(repo Repository, logger *slog.Logger) *Registry {
	return &Registry{
		repo:     repo,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
}

// Register validates r and upserts the provider it describes.
func (g *Registry) Register(ctx context.Context, r Registration) (model.Provider, error) {
	if err := g.validate.Struct(r); err != nil {
		return model.Provider{}, fmt.Errorf("%w: %v", ErrInvalidRegistration, err)
	}
	if r.ID == "" && r.StaffID == "" {
		return model.Provider{}, fmt.Errorf("%w: provider_id is required", ErrInvalidRegistration)
	}

	p := model.Provider{
		ID:         r.ID,
		BusinessID: r.BusinessID,
		Name:       r.Name,
		IsActive:   r.IsActive == nil || *r.IsActive,
		UpdatedAt:  g.now().UTC(),
	}
	if p.ID == "" {
		p.ID = r.StaffID
	}
	if r.UpdatedAt != "" {
		if ts, err := time.Parse(time.RFC3339, r.UpdatedAt); err == nil {
			p.UpdatedAt = ts.UTC()
		}
	}

	if err := g.repo.Upsert(ctx, p); err != nil {
		return model.Provider{}, fmt.Errorf("upsert provider: %w", err)
	}
	g.logger.Info("provider registered", "provider_id", p.ID, "business_id", p.BusinessID, "is_active", p.IsActive)
	return p, nil
}

// EventHandler consumes staff upsert events. Malformed payloads are logged and
// dropped so they do not block the partition.
func (g *Registry) EventHandler() consumer.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		meta := kafkax.ExtractEventMeta(msg)
		var r Registration
		if err := json.Unmarshal(msg.Value, &r); err != nil {
			g.logger.Error("invalid provider event", "err", err, "event_id", meta.EventID)
			return nil
		}
		_, err := g.Register(ctx, r)
		if errors.Is(err, ErrInvalidRegistration) {
			g.logger.Error("provider event rejected", "err", err, "event_id", meta.EventID)
			return nil
		}
		return err
	}
}
