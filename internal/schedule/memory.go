package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"venueattend/internal/model"
)

// AttendanceProbe reports whether attendance exists for a location on a date.
type AttendanceProbe interface {
	HasAttendance(ctx context.Context, locationID string, date model.Date) (bool, error)
}

// MemoryStore keeps schedules in a map.
type MemoryStore struct {
	mu         sync.Mutex
	items      map[string]model.Schedule
	attendance AttendanceProbe
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]model.Schedule)}
}

// GuardDeletes makes Delete refuse schedules whose date already has attendance.
// The ledger is built after the schedule store, so the probe is attached late.
func (s *MemoryStore) GuardDeletes(p AttendanceProbe) {
	s.mu.Lock()
	s.attendance = p
	s.mu.Unlock()
}

func (s *MemoryStore) Create(_ context.Context, sc *model.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sc.CreatedAt, sc.UpdatedAt = now, now
	s.items[sc.ID] = *sc
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.items[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &sc, nil
}

func (s *MemoryStore) Update(_ context.Context, sc *model.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[sc.ID]
	if !ok {
		return model.ErrNotFound
	}
	sc.LocationID = cur.LocationID
	sc.CreatedBy = cur.CreatedBy
	sc.CreatedAt = cur.CreatedAt
	sc.UpdatedAt = time.Now().UTC()
	s.items[sc.ID] = *sc
	return nil
}

func (s *MemoryStore) ForLocationOnDate(_ context.Context, locationID string, date model.Date) ([]model.Schedule, error) {
	return s.filter(func(sc *model.Schedule) bool {
		return sc.LocationID == locationID && sc.Date == date
	}), nil
}

func (s *MemoryStore) ListForDate(_ context.Context, date model.Date) ([]model.Schedule, error) {
	return s.filter(func(sc *model.Schedule) bool { return sc.Date == date }), nil
}

func (s *MemoryStore) CountActiveForLocation(_ context.Context, locationID string) (int, error) {
	return len(s.filter(func(sc *model.Schedule) bool {
		return sc.LocationID == locationID && sc.Active
	})), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.items[id]
	if !ok {
		return model.ErrNotFound
	}
	if s.attendance != nil {
		has, err := s.attendance.HasAttendance(ctx, sc.LocationID, sc.Date)
		if err != nil {
			return err
		}
		if has {
			return ErrScheduleReferenced
		}
	}
	delete(s.items, id)
	return nil
}

func (s *MemoryStore) filter(keep func(*model.Schedule) bool) []model.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []model.Schedule
	for _, sc := range s.items {
		if keep(&sc) {
			res = append(res, sc)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Start != res[j].Start {
			return res[i].Start < res[j].Start
		}
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res
}
