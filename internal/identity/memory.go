package identity

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"venueattend/internal/model"
)

// MemoryStore is a mutex-guarded Store for development and tests.
type MemoryStore struct {
	mu     sync.Mutex
	byID   map[string]*model.Member
	byCode map[string]string
	now    func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*model.Member),
		byCode: make(map[string]string),
		now:    time.Now,
	}
}

func clone(m *model.Member) *model.Member {
	c := *m
	if m.Template != nil {
		c.Template = append([]byte(nil), m.Template...)
	}
	if m.LockedUntil != nil {
		t := *m.LockedUntil
		c.LockedUntil = &t
	}
	return &c
}

func (s *MemoryStore) Create(_ context.Context, m *model.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byCode[m.Code]; ok {
		return fmt.Errorf("create member %s: %w", m.Code, model.ErrConflict)
	}
	for _, existing := range s.byID {
		if existing.Email == m.Email {
			return fmt.Errorf("create member %s: %w", m.Code, model.ErrConflict)
		}
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := s.now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now
	s.byID[m.ID] = clone(m)
	s.byCode[m.Code] = m.ID
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*model.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return clone(m), nil
}

func (s *MemoryStore) GetByCode(_ context.Context, code string) (*model.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byCode[code]
	if !ok {
		return nil, model.ErrNotFound
	}
	return clone(s.byID[id]), nil
}

func (s *MemoryStore) RecordFailedAttempt(_ context.Context, id string, threshold int, lockUntil time.Time) (model.Lockout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return model.Lockout{}, model.ErrNotFound
	}
	if m.FailedAttempts+1 >= threshold {
		m.FailedAttempts = 0
		until := lockUntil
		m.LockedUntil = &until
	} else {
		m.FailedAttempts++
	}
	m.UpdatedAt = s.now().UTC()
	l := model.Lockout{FailedAttempts: m.FailedAttempts}
	if m.LockedUntil != nil {
		t := *m.LockedUntil
		l.LockedUntil = &t
	}
	return l, nil
}

func (s *MemoryStore) ResetFailedAttempts(_ context.Context, id string) error {
	return s.update(id, func(m *model.Member) {
		m.FailedAttempts = 0
		m.LockedUntil = nil
	})
}

func (s *MemoryStore) UpdatePIN(_ context.Context, id, pinHash string) error {
	return s.update(id, func(m *model.Member) { m.PINHash = pinHash })
}

func (s *MemoryStore) SetTemplate(_ context.Context, id string, template []byte) error {
	return s.update(id, func(m *model.Member) { m.Template = append([]byte(nil), template...) })
}

func (s *MemoryStore) SetActive(_ context.Context, id string, active bool) error {
	return s.update(id, func(m *model.Member) { m.Active = active })
}

func (s *MemoryStore) update(id string, fn func(m *model.Member)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return model.ErrNotFound
	}
	fn(m)
	m.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]model.Member, error) {
	return s.filter(func(*model.Member) bool { return true }), nil
}

func (s *MemoryStore) ListWithTemplates(_ context.Context) ([]model.Member, error) {
	return s.filter(func(m *model.Member) bool { return m.Active && m.HasTemplate() }), nil
}

func (s *MemoryStore) CountActive(_ context.Context) (int, error) {
	return len(s.filter(func(m *model.Member) bool { return m.Active })), nil
}

func (s *MemoryStore) filter(keep func(*model.Member) bool) []model.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []model.Member
	for _, m := range s.byID {
		if keep(m) {
			res = append(res, *clone(m))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Code < res[j].Code })
	return res
}
