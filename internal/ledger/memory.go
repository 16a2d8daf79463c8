package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"venueattend/internal/model"
)

// MemoryStore keeps attendance in memory. A slot index under one mutex gives
// Insert the same all-or-nothing behaviour as the unique index.
type MemoryStore struct {
	mu     sync.Mutex
	byID   map[string]*model.Attendance
	bySlot map[model.Slot]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*model.Attendance),
		bySlot: make(map[model.Slot]string),
	}
}

func clone(a *model.Attendance) *model.Attendance {
	c := *a
	return &c
}

func (s *MemoryStore) Existing(_ context.Context, memberID, locationID string, date model.Date) (*model.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.bySlot[model.Slot{MemberID: memberID, LocationID: locationID, Date: date}]
	if !ok {
		return nil, nil
	}
	return clone(s.byID[id]), nil
}

func (s *MemoryStore) Insert(_ context.Context, rec *model.Attendance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.bySlot[rec.Slot()]; ok {
		return &DuplicateError{Existing: clone(s.byID[id])}
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	s.byID[rec.ID] = clone(rec)
	s.bySlot[rec.Slot()] = rec.ID
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return clone(a), nil
}

func matches(a *model.Attendance, f Filter) bool {
	switch {
	case f.MemberID != "" && a.MemberID != f.MemberID:
		return false
	case f.LocationID != "" && a.LocationID != f.LocationID:
		return false
	case !f.From.IsZero() && a.Date.Before(f.From):
		return false
	case !f.To.IsZero() && a.Date.After(f.To):
		return false
	case f.Status != "" && a.Status != f.Status:
		return false
	case f.Method != "" && a.Method != f.Method:
		return false
	}
	return true
}

func (s *MemoryStore) matching(f Filter) []model.Attendance {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []model.Attendance
	for _, a := range s.byID {
		if matches(a, f) {
			res = append(res, *a)
		}
	}
	return res
}

func (s *MemoryStore) Query(_ context.Context, f Filter) ([]model.Attendance, error) {
	res := s.matching(f)
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CheckIn.Equal(res[j].CheckIn) {
			return res[i].CheckIn.After(res[j].CheckIn)
		}
		return res[i].ID < res[j].ID
	})
	if f.Offset > 0 {
		if f.Offset >= len(res) {
			return nil, nil
		}
		res = res[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(res) {
		res = res[:f.Limit]
	}
	return res, nil
}

func (s *MemoryStore) Count(_ context.Context, f Filter) (int, error) {
	return len(s.matching(f)), nil
}

func (s *MemoryStore) CheckOut(_ context.Context, id string, at time.Time) (*model.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	if a.CheckOut != nil {
		return nil, ErrAlreadyCheckedOut
	}
	a.CheckOut = &at
	a.UpdatedAt = time.Now().UTC()
	return clone(a), nil
}

func (s *MemoryStore) Annotate(_ context.Context, id string, verified bool, adminNotes string) (*model.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	a.VerifiedByAdmin = verified
	a.AdminNotes = adminNotes
	a.UpdatedAt = time.Now().UTC()
	return clone(a), nil
}

func (s *MemoryStore) HasAttendance(_ context.Context, locationID string, date model.Date) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for slot := range s.bySlot {
		if slot.LocationID == locationID && slot.Date == date {
			return true, nil
		}
	}
	return false, nil
}
