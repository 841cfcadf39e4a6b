package scheduling

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/outbox"
)

// memStore is an in-memory Store whose InTx restores a snapshot on error.
// Inside a transaction, writes for a provider fail unless Lock was called for
// it first, mirroring the row lock the Postgres store relies on.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	inTx   bool
	locked map[string]bool
	// locks counts successful Lock calls per provider.
	locks map[string]int

	providers    map[string]bool
	availability map[string][]model.WeeklyAvailability
	slots        map[string][]model.TimeSlot
	events       []outbox.Event

	failInsert error
	deletes    int
}

func newMemStore(providers ...string) *memStore {
	s := &memStore{
		providers:    map[string]bool{},
		availability: map[string][]model.WeeklyAvailability{},
		slots:        map[string][]model.TimeSlot{},
		locks:        map[string]int{},
	}
	for _, p := range providers {
		s.providers[p] = true
	}
	return s
}

func (s *memStore) Providers() ProviderRepository         { return s }
func (s *memStore) Availability() AvailabilityRepository { return s }
func (s *memStore) Slots() SlotRepository                { return s }

func (s *memStore) InTx(_ context.Context, fn func(tx Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	s.mu.Lock()
	s.inTx, s.locked = true, map[string]bool{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inTx, s.locked = false, nil
		s.mu.Unlock()
	}()

	if err := fn(Repositories{Providers: s, Availability: s, Slots: s, Events: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// requireLock must be called with mu held.
func (s *memStore) requireLock(providerID string) error {
	if s.inTx && !s.locked[providerID] {
		return fmt.Errorf("write for provider %s without holding its lock", providerID)
	}
	return nil
}

type memSnapshot struct {
	availability map[string][]model.WeeklyAvailability
	slots        map[string][]model.TimeSlot
	events       []outbox.Event
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		availability: map[string][]model.WeeklyAvailability{},
		slots:        map[string][]model.TimeSlot{},
		events:       append([]outbox.Event(nil), s.events...),
	}
	for k, v := range s.availability {
		snap.availability[k] = append([]model.WeeklyAvailability(nil), v...)
	}
	for k, v := range s.slots {
		snap.slots[k] = append([]model.TimeSlot(nil), v...)
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availability = snap.availability
	s.slots = snap.slots
	s.events = snap.events
}

func (s *memStore) Exists(_ context.Context, providerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.providers[providerID], nil
}

func (s *memStore) Lock(_ context.Context, providerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.providers[providerID] {
		return false, nil
	}
	if s.inTx {
		s.locked[providerID] = true
	}
	s.locks[providerID]++
	return true, nil
}

func (s *memStore) GetByProvider(_ context.Context, providerID string) ([]model.WeeklyAvailability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.WeeklyAvailability(nil), s.availability[providerID]...), nil
}

func (s *memStore) ReplaceAll(_ context.Context, providerID string, rows []model.WeeklyAvailability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLock(providerID); err != nil {
		return err
	}
	s.availability[providerID] = append([]model.WeeklyAvailability(nil), rows...)
	return nil
}

func (s *memStore) ListConfiguredProviders(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, rows := range s.availability {
		if len(rows) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *memStore) DeleteFrom(_ context.Context, providerID string, from time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLock(providerID); err != nil {
		return 0, err
	}
	s.deletes++
	var kept []model.TimeSlot
	var n int64
	for _, slot := range s.slots[providerID] {
		if !slot.StartTime.Before(from) {
			n++
			continue
		}
		kept = append(kept, slot)
	}
	s.slots[providerID] = kept
	return n, nil
}

func (s *memStore) InsertAll(_ context.Context, slots []model.TimeSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsert != nil {
		return s.failInsert
	}
	for _, slot := range slots {
		if err := s.requireLock(slot.ProviderID); err != nil {
			return err
		}
	}
	for _, slot := range slots {
		s.slots[slot.ProviderID] = append(s.slots[slot.ProviderID], slot)
	}
	return nil
}

func (s *memStore) QueryByProviderAndDate(_ context.Context, providerID string, date time.Time, status model.SlotStatus) ([]model.TimeSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	end := date.AddDate(0, 0, 1)
	out := []model.TimeSlot{}
	for _, slot := range s.slots[providerID] {
		if slot.Status != status || slot.StartTime.Before(date) || !slot.StartTime.Before(end) {
			continue
		}
		out = append(out, slot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (s *memStore) SetStatus(_ context.Context, providerID, slotID string, status model.SlotStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, slot := range s.slots[providerID] {
		if slot.ID == slotID {
			s.slots[providerID][i].Status = status
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) Append(_ context.Context, evt outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *memStore) slotCount(providerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots[providerID])
}

type memCache struct {
	mu       sync.Mutex
	versions map[string]int64
	entries  map[string][]model.TimeSlot
	sets     int
}

func newMemCache() *memCache {
	return &memCache{versions: map[string]int64{}, entries: map[string][]model.TimeSlot{}}
}

func (c *memCache) key(providerID string, version int64, date time.Time) string {
	return providerID + "|" + date.Format("2006-01-02") + "|" + time.Duration(version).String()
}

func (c *memCache) Get(_ context.Context, providerID string, date time.Time) ([]model.TimeSlot, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.versions[providerID]
	slots, ok := c.entries[c.key(providerID, v, date)]
	return slots, v, ok
}

func (c *memCache) Set(_ context.Context, providerID string, date time.Time, version int64, slots []model.TimeSlot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.entries[c.key(providerID, version, date)] = slots
}

func (c *memCache) Invalidate(_ context.Context, providerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[providerID]++
}
