package location

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"venueattend/internal/model"
)

// ActiveScheduleCounter reports how many active schedules reference a location.
type ActiveScheduleCounter interface {
	CountActiveForLocation(ctx context.Context, locationID string) (int, error)
}

// MemoryStore keeps locations in a map.
type MemoryStore struct {
	mu        sync.Mutex
	items     map[string]model.Location
	schedules ActiveScheduleCounter
}

// NewMemoryStore creates a store that consults schedules before deleting.
func NewMemoryStore(schedules ActiveScheduleCounter) *MemoryStore {
	return &MemoryStore{items: make(map[string]model.Location), schedules: schedules}
}

func (s *MemoryStore) Create(_ context.Context, l *model.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	l.CreatedAt, l.UpdatedAt = now, now
	s.items[l.ID] = *l
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.items[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &l, nil
}

func (s *MemoryStore) List(_ context.Context, activeOnly bool) ([]model.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []model.Location
	for _, l := range s.items {
		if activeOnly && !l.Active {
			continue
		}
		res = append(res, l)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].State != res[j].State {
			return res[i].State < res[j].State
		}
		if res[i].LocalGovernment != res[j].LocalGovernment {
			return res[i].LocalGovernment < res[j].LocalGovernment
		}
		return res[i].Name < res[j].Name
	})
	return res, nil
}

func (s *MemoryStore) Update(_ context.Context, l *model.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[l.ID]
	if !ok {
		return model.ErrNotFound
	}
	l.Active = cur.Active
	l.CreatedAt = cur.CreatedAt
	l.UpdatedAt = time.Now().UTC()
	s.items[l.ID] = *l
	return nil
}

func (s *MemoryStore) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.items[id]
	if !ok {
		return model.ErrNotFound
	}
	l.Active = active
	l.UpdatedAt = time.Now().UTC()
	s.items[id] = l
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return model.ErrNotFound
	}
	if s.schedules != nil {
		n, err := s.schedules.CountActiveForLocation(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrLocationInUse
		}
	}
	delete(s.items, id)
	return nil
}
