package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/model"
	"github.com/redis/go-redis/v9"
)

// SlotCache stores public slot listings in Redis. Each provider has a version
// counter that is part of every listing key; bumping it orphans old listings,
// which then expire on their TTL.
type SlotCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewSlotCache(rdb redis.Cmdable, ttl time.Duration, prefix string, logger *slog.Logger) *SlotCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "slots"
	}
	return &SlotCache{rdb: rdb, ttl: ttl, prefix: prefix, logger: logger}
}

func (c *SlotCache) versionKey(providerID string) string {
	return c.prefix + ":v:" + providerID
}

func (c *SlotCache) listingKey(providerID string, version int64, date time.Time) string {
	return fmt.Sprintf("%s:%s:%d:%s", c.prefix, providerID, version, date.UTC().Format(time.DateOnly))
}

// Get reports a miss, never an error, when Redis is unavailable.
func (c *SlotCache) Get(ctx context.Context, providerID string, date time.Time) ([]model.TimeSlot, int64, bool) {
	version, err := c.rdb.Get(ctx, c.versionKey(providerID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.warn("slot cache version read failed", err)
		return nil, 0, false
	}

	raw, err := c.rdb.Get(ctx, c.listingKey(providerID, version, date)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.warn("slot cache read failed", err)
		}
		return nil, version, false
	}
	slots, err := decode(raw)
	if err != nil {
		c.warn("slot cache decode failed", err)
		return nil, version, false
	}
	return slots, version, true
}

func (c *SlotCache) Set(ctx context.Context, providerID string, date time.Time, version int64, slots []model.TimeSlot) {
	raw, err := encode(slots)
	if err != nil {
		c.warn("slot cache encode failed", err)
		return
	}
	if err := c.rdb.Set(ctx, c.listingKey(providerID, version, date), raw, c.ttl).Err(); err != nil {
		c.warn("slot cache write failed", err)
	}
}

func (c *SlotCache) Invalidate(ctx context.Context, providerID string) {
	if err := c.rdb.Incr(ctx, c.versionKey(providerID)).Err(); err != nil {
		c.warn("slot cache invalidate failed", err)
	}
}

func (c *SlotCache) warn(msg string, err error) {
	if c.logger != nil {
		c.logger.Warn(msg, "err", err)
	}
}

type entry struct {
	ID         string `json:"id"`
	ProviderID string `json:"provider_id"`
	Start      int64  `json:"start"`
	End        int64  `json:"end"`
	Status     string `json:"status"`
}

func encode(slots []model.TimeSlot) ([]byte, error) {
	entries := make([]entry, 0, len(slots))
	for _, s := range slots {
		entries = append(entries, entry{
			ID:         s.ID,
			ProviderID: s.ProviderID,
			Start:      s.StartTime.Unix(),
			End:        s.EndTime.Unix(),
			Status:     string(s.Status),
		})
	}
	return json.Marshal(entries)
}

func decode(raw []byte) ([]model.TimeSlot, error) {
	var entries []entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	slots := make([]model.TimeSlot, 0, len(entries))
	for _, e := range entries {
		slots = append(slots, model.TimeSlot{
			ID:         e.ID,
			ProviderID: e.ProviderID,
			StartTime:  time.Unix(e.Start, 0).UTC(),
			EndTime:    time.Unix(e.End, 0).UTC(),
			Status:     model.SlotStatus(e.Status),
		})
	}
	return slots, nil
}

// ReadyCheck pings Redis.
func ReadyCheck(rdb redis.Cmdable) func(context.Context) error {
	return func(ctx context.Context) error {
		if rdb == nil {
			return errors.New("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
}
