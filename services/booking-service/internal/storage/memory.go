package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/model"
)

// MemoryStore keeps appointments in a map. Transactions are serialized by a single mutex and
// rolled back from a snapshot on error. Writes enforce the same no-overlap rule as the
// Postgres exclusion constraint.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]model.Appointment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]model.Appointment{}}
}

func (s *MemoryStore) Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]model.Appointment, len(s.items))
	for k, v := range s.items {
		snapshot[k] = v
	}
	if err := fn(ctx, &memoryTx{items: s.items}); err != nil {
		s.items = snapshot
		return err
	}
	return nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memoryTx{items: s.items}).FindByID(ctx, id)
}

func (s *MemoryStore) FindInRange(ctx context.Context, from, to time.Time, statuses []model.Status, excludeID string) ([]model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memoryTx{items: s.items}).FindInRange(ctx, from, to, statuses, excludeID)
}

func (s *MemoryStore) List(ctx context.Context, f ListFilter) ([]model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memoryTx{items: s.items}).List(ctx, f)
}

func (s *MemoryStore) ListDue(ctx context.Context, now time.Time, ownerID string, limit int) ([]model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memoryTx{items: s.items}).ListDue(ctx, now, ownerID, limit)
}

// memoryTx operates on the live map; the caller holds the store lock.
type memoryTx struct {
	items map[string]model.Appointment
}

func (t *memoryTx) FindByID(_ context.Context, id string) (model.Appointment, error) {
	appt, ok := t.items[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return appt, nil
}

func (t *memoryTx) FindInRange(ctx context.Context, from, to time.Time, statuses []model.Status, excludeID string) ([]model.Appointment, error) {
	return t.List(ctx, ListFilter{From: from, To: to, Statuses: statuses, ExcludeID: excludeID})
}

func (t *memoryTx) List(_ context.Context, f ListFilter) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, appt := range t.items {
		if f.OwnerID != "" && appt.OwnerID != f.OwnerID {
			continue
		}
		if f.ExcludeID != "" && appt.ID == f.ExcludeID {
			continue
		}
		if !hasStatus(f.Statuses, appt.Status) || !inRange(appt.StartTime, f.From, f.To) {
			continue
		}
		out = append(out, appt)
	}
	sortByStart(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (t *memoryTx) ListDue(_ context.Context, now time.Time, ownerID string, limit int) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, appt := range t.items {
		if ownerID != "" && appt.OwnerID != ownerID {
			continue
		}
		if appt.Status.Active() && appt.StartTime.Before(now) {
			out = append(out, appt)
		}
	}
	sortByStart(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memoryTx) Insert(_ context.Context, appt model.Appointment) error {
	if _, exists := t.items[appt.ID]; exists {
		return ErrConflict
	}
	if t.overlapsActive(appt) {
		return ErrConflict
	}
	t.items[appt.ID] = appt
	return nil
}

func (t *memoryTx) Update(_ context.Context, appt model.Appointment) error {
	if _, exists := t.items[appt.ID]; !exists {
		return ErrNotFound
	}
	if t.overlapsActive(appt) {
		return ErrConflict
	}
	t.items[appt.ID] = appt
	return nil
}

func (t *memoryTx) Delete(_ context.Context, id string) error {
	if _, exists := t.items[id]; !exists {
		return ErrNotFound
	}
	delete(t.items, id)
	return nil
}

func (t *memoryTx) overlapsActive(appt model.Appointment) bool {
	if !appt.Status.Active() {
		return false
	}
	start, end := appt.StartTime, appt.EndTime()
	for _, other := range t.items {
		if other.ID == appt.ID || !other.Status.Active() {
			continue
		}
		if start.Before(other.EndTime()) && other.StartTime.Before(end) {
			return true
		}
	}
	return false
}

func sortByStart(appts []model.Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if appts[i].StartTime.Equal(appts[j].StartTime) {
			return appts[i].ID < appts[j].ID
		}
		return appts[i].StartTime.Before(appts[j].StartTime)
	})
}
