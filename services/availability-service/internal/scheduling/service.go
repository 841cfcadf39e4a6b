package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/slotkeeper/libs/otel"
	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/outbox"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultHorizonDays  = 60
	DefaultMaxRangeDays = 366
)

type ProviderRepository interface {
	// Exists reports whether the provider is registered and active.
	Exists(ctx context.Context, providerID string) (bool, error)
	// Lock is Exists plus a row lock held until the surrounding transaction ends.
	Lock(ctx context.Context, providerID string) (bool, error)
}

type AvailabilityRepository interface {
	GetByProvider(ctx context.Context, providerID string) ([]model.WeeklyAvailability, error)
	ReplaceAll(ctx context.Context, providerID string, rows []model.WeeklyAvailability) error
	ListConfiguredProviders(ctx context.Context) ([]string, error)
}

type SlotRepository interface {
	DeleteFrom(ctx context.Context, providerID string, from time.Time) (int64, error)
	InsertAll(ctx context.Context, slots []model.TimeSlot) error
	QueryByProviderAndDate(ctx context.Context, providerID string, date time.Time, status model.SlotStatus) ([]model.TimeSlot, error)
	SetStatus(ctx context.Context, providerID, slotID string, status model.SlotStatus) (bool, error)
}

type EventWriter interface {
	Append(ctx context.Context, evt outbox.Event) error
}

// Repositories groups the repositories bound to one transaction.
type Repositories struct {
	Providers    ProviderRepository
	Availability AvailabilityRepository
	Slots        SlotRepository
	Events       EventWriter
}

type Store interface {
	Providers() ProviderRepository
	Availability() AvailabilityRepository
	Slots() SlotRepository
	// InTx commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(tx Repositories) error) error
}

// SlotCache holds public slot listings per provider and date. Version is read on
// lookup and handed back on store so a listing read before an invalidation
// is never written under the newer version.
type SlotCache interface {
	Get(ctx context.Context, providerID string, date time.Time) (slots []model.TimeSlot, version int64, ok bool)
	Set(ctx context.Context, providerID string, date time.Time, version int64, slots []model.TimeSlot)
	Invalidate(ctx context.Context, providerID string)
}

type Config struct {
	HorizonDays  int
	MaxRangeDays int
	Cache        SlotCache
	Metrics      *Metrics
	Now          func() time.Time
}

type Service struct {
	store        Store
	cache        SlotCache
	metrics      *Metrics
	logger       *slog.Logger
	tracer       trace.Tracer
	now          func() time.Time
	horizonDays  int
	maxRangeDays int
}

func NewService(store Store, logger *slog.Logger, cfg Config) *Service {
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = DefaultHorizonDays
	}
	if cfg.MaxRangeDays <= 0 {
		cfg.MaxRangeDays = DefaultMaxRangeDays
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:        store,
		cache:        cfg.Cache,
		metrics:      cfg.Metrics,
		logger:       logger,
		tracer:       otelx.Tracer("availability-service/scheduling"),
		now:          cfg.Now,
		horizonDays:  cfg.HorizonDays,
		maxRangeDays: cfg.MaxRangeDays,
	}
}

// Horizon is the window regenerated after a configuration change: today's UTC
// date through HorizonDays later.
func (s *Service) Horizon() (time.Time, time.Time) {
	today := availability.DateOf(s.now())
	return today, today.AddDate(0, 0, s.horizonDays)
}

// Configure replaces the provider's weekly schedule and regenerates the horizon
// in the same transaction. The generated slots are returned.
func (s *Service) Configure(ctx context.Context, providerID string, cfg model.WeeklyConfig) ([]model.TimeSlot, error) {
	ctx, span := s.tracer.Start(ctx, "scheduling.Configure", trace.WithAttributes(attribute.String("provider.id", providerID)))
	defer span.End()

	rows, err := BuildSchedule(providerID, cfg)
	if err != nil {
		s.metrics.configured("invalid")
		span.SetStatus(codes.Error, "invalid")
		return nil, err
	}

	started := time.Now()
	from, to := s.Horizon()
	var res regeneration
	err = s.store.InTx(ctx, func(tx Repositories) error {
		if err := lockProvider(ctx, tx, providerID); err != nil {
			return err
		}
		if err := tx.Availability.ReplaceAll(ctx, providerID, rows); err != nil {
			return fmt.Errorf("replace availability: %w", err)
		}
		if err := appendEvent(ctx, tx, outbox.EventAvailabilityConfigured, providerID, newConfiguredPayload(providerID, cfg, rows, s.now())); err != nil {
			return err
		}
		res, err = s.regenerate(ctx, tx, providerID, rows, from, to)
		return err
	})
	if err != nil {
		s.metrics.configured(outcome(err))
		recordError(span, err)
		return nil, err
	}

	s.finish(ctx, "configure", providerID, res, time.Since(started))
	s.metrics.configured("ok")
	s.logger.Info("availability configured",
		"provider_id", providerID,
		"working_days", len(rows),
		"slot_duration_minutes", cfg.SlotDurationMinutes,
		"buffer_minutes", cfg.BufferMinutes,
		"slots", len(res.slots),
	)
	return res.slots, nil
}

// GetConfiguration returns the stored schedule as a seven-day week.
func (s *Service) GetConfiguration(ctx context.Context, providerID string) (model.WeeklyConfig, error) {
	ctx, span := s.tracer.Start(ctx, "scheduling.GetConfiguration", trace.WithAttributes(attribute.String("provider.id", providerID)))
	defer span.End()

	rows, err := s.store.Availability().GetByProvider(ctx, providerID)
	if err != nil {
		recordError(span, err)
		return model.WeeklyConfig{}, fmt.Errorf("load availability: %w", err)
	}
	if len(rows) == 0 {
		ok, err := s.store.Providers().Exists(ctx, providerID)
		if err != nil {
			recordError(span, err)
			return model.WeeklyConfig{}, fmt.Errorf("lookup provider: %w", err)
		}
		if !ok {
			return model.WeeklyConfig{}, ErrProviderNotFound
		}
		return model.WeeklyConfig{}, ErrNotConfigured
	}
	return ToConfig(rows), nil
}

// GenerateSlots rebuilds the provider's slots from rangeStart onwards using the
// stored schedule. The whole calendar date of rangeEnd is included.
func (s *Service) GenerateSlots(ctx context.Context, providerID string, rangeStart, rangeEnd time.Time) ([]model.TimeSlot, error) {
	if rangeEnd.Before(rangeStart) {
		return nil, invalid("range end must not be before range start")
	}
	if rangeEnd.Sub(rangeStart) > time.Duration(s.maxRangeDays)*24*time.Hour {
		return nil, invalid(fmt.Sprintf("range must not exceed %d days", s.maxRangeDays))
	}
	return s.generate(ctx, "manual", providerID, rangeStart.UTC(), rangeEnd.UTC())
}

func (s *Service) generate(ctx context.Context, trigger, providerID string, from, to time.Time) ([]model.TimeSlot, error) {
	ctx, span := s.tracer.Start(ctx, "scheduling.GenerateSlots", trace.WithAttributes(
		attribute.String("provider.id", providerID),
		attribute.String("trigger", trigger),
	))
	defer span.End()

	started := time.Now()
	var res regeneration
	err := s.store.InTx(ctx, func(tx Repositories) error {
		if err := lockProvider(ctx, tx, providerID); err != nil {
			return err
		}
		rows, err := tx.Availability.GetByProvider(ctx, providerID)
		if err != nil {
			return fmt.Errorf("load availability: %w", err)
		}
		res, err = s.regenerate(ctx, tx, providerID, rows, from, to)
		return err
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	s.finish(ctx, trigger, providerID, res, time.Since(started))
	return res.slots, nil
}

// GetAvailableSlotsForDate lists the provider's available slots starting on the
// UTC calendar date of date, ordered by start time.
func (s *Service) GetAvailableSlotsForDate(ctx context.Context, providerID string, date time.Time) ([]model.TimeSlot, error) {
	day := availability.DateOf(date)

	var version int64
	if s.cache != nil {
		cached, v, ok := s.cache.Get(ctx, providerID, day)
		s.metrics.cacheLookup(ok)
		if ok {
			return cached, nil
		}
		version = v
	}

	slots, err := s.store.Slots().QueryByProviderAndDate(ctx, providerID, day, model.SlotAvailable)
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	if s.cache != nil {
		s.cache.Set(ctx, providerID, day, version, slots)
	}
	return slots, nil
}

// SetSlotStatus marks one generated slot available, reserved or blocked. A later
// regeneration over the slot's date resets it to available.
func (s *Service) SetSlotStatus(ctx context.Context, providerID, slotID string, status model.SlotStatus) error {
	if !status.Valid() {
		return invalid(fmt.Sprintf("status must be one of %s, %s, %s", model.SlotAvailable, model.SlotReserved, model.SlotBlocked))
	}
	ok, err := s.store.Slots().SetStatus(ctx, providerID, slotID, status)
	if err != nil {
		return fmt.Errorf("update slot: %w", err)
	}
	if !ok {
		return ErrSlotNotFound
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, providerID)
	}
	s.logger.Info("slot status changed", "provider_id", providerID, "slot_id", slotID, "status", status)
	return nil
}

// RefreshHorizon regenerates the horizon for every configured provider so the
// window keeps rolling forward. Failures are collected and do not stop the run.
func (s *Service) RefreshHorizon(ctx context.Context) (int, error) {
	ids, err := s.store.Availability().ListConfiguredProviders(ctx)
	if err != nil {
		return 0, fmt.Errorf("list providers: %w", err)
	}

	from, to := s.Horizon()
	refreshed := 0
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return refreshed, err
		}
		if _, err := s.generate(ctx, "horizon", id, from, to); err != nil {
			if errors.Is(err, ErrProviderNotFound) {
				continue
			}
			s.logger.Error("horizon refresh failed", "provider_id", id, "err", err)
			errs = append(errs, fmt.Errorf("provider %s: %w", id, err))
			continue
		}
		refreshed++
	}
	return refreshed, errors.Join(errs...)
}

type regeneration struct {
	slots   []model.TimeSlot
	deleted int64
	from    time.Time
	to      time.Time
}

func (s *Service) regenerate(ctx context.Context, tx Repositories, providerID string, rows []model.WeeklyAvailability, from, to time.Time) (regeneration, error) {
	deleted, err := tx.Slots.DeleteFrom(ctx, providerID, from)
	if err != nil {
		return regeneration{}, fmt.Errorf("delete slots: %w", err)
	}

	slots := availability.Generate(providerID, rows, from, to)
	if slots == nil {
		slots = []model.TimeSlot{}
	}
	for i := range slots {
		slots[i].ID = uuid.NewString()
	}
	if len(slots) > 0 {
		if err := tx.Slots.InsertAll(ctx, slots); err != nil {
			return regeneration{}, fmt.Errorf("insert slots: %w", err)
		}
	}

	payload := regeneratedPayload{
		ProviderID:  providerID,
		RangeStart:  from,
		RangeEnd:    to,
		Deleted:     deleted,
		Generated:   len(slots),
		GeneratedAt: s.now().UTC(),
	}
	if err := appendEvent(ctx, tx, outbox.EventSlotsRegenerated, providerID, payload); err != nil {
		return regeneration{}, err
	}
	return regeneration{slots: slots, deleted: deleted, from: from, to: to}, nil
}

func (s *Service) finish(ctx context.Context, trigger, providerID string, res regeneration, took time.Duration) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, providerID)
	}
	s.metrics.regenerated(trigger, res.deleted, len(res.slots), took)
	s.logger.Debug("slots regenerated",
		"provider_id", providerID,
		"trigger", trigger,
		"range_start", res.from.Format(time.RFC3339),
		"range_end", res.to.Format(time.RFC3339),
		"deleted", res.deleted,
		"generated", len(res.slots),
	)
}

func lockProvider(ctx context.Context, tx Repositories, providerID string) error {
	ok, err := tx.Providers.Lock(ctx, providerID)
	if err != nil {
		return fmt.Errorf("lock provider: %w", err)
	}
	if !ok {
		return ErrProviderNotFound
	}
	return nil
}

func appendEvent(ctx context.Context, tx Repositories, eventType, providerID string, payload any) error {
	if tx.Events == nil {
		return nil
	}
	evt, err := outbox.NewEvent(eventType, providerID, payload)
	if err != nil {
		return err
	}
	if err := tx.Events.Append(ctx, evt); err != nil {
		return fmt.Errorf("append %s: %w", eventType, err)
	}
	return nil
}

func outcome(err error) string {
	switch {
	case IsValidation(err):
		return "invalid"
	case IsNotFound(err):
		return "not_found"
	default:
		return "error"
	}
}

func recordError(span trace.Span, err error) {
	if IsValidation(err) || IsNotFound(err) {
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "internal")
}
