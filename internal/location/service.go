package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"venueattend/internal/model"
)

// ErrInvalidLocation is returned for incomplete location input.
var ErrInvalidLocation = errors.New("invalid location")

// Service manages the set of venues members check in at.
type Service struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func validate(l *model.Location) error {
	l.Name = strings.TrimSpace(l.Name)
	l.LocalGovernment = strings.TrimSpace(l.LocalGovernment)
	l.State = strings.TrimSpace(l.State)
	switch {
	case l.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidLocation)
	case l.LocalGovernment == "":
		return fmt.Errorf("%w: local government is required", ErrInvalidLocation)
	case l.State == "":
		return fmt.Errorf("%w: state is required", ErrInvalidLocation)
	case l.Capacity != nil && *l.Capacity <= 0:
		return fmt.Errorf("%w: capacity must be positive", ErrInvalidLocation)
	}
	return nil
}

// Create registers a new, active location.
func (s *Service) Create(ctx context.Context, l *model.Location) error {
	if err := validate(l); err != nil {
		return err
	}
	l.Active = true
	if err := s.store.Create(ctx, l); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "location created", "location_id", l.ID, "name", l.Name)
	return nil
}

func (s *Service) Update(ctx context.Context, l *model.Location) error {
	if err := validate(l); err != nil {
		return err
	}
	return s.store.Update(ctx, l)
}

func (s *Service) Get(ctx context.Context, id string) (*model.Location, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]model.Location, error) {
	return s.store.List(ctx, activeOnly)
}

// SetActive toggles whether the location accepts new schedules.
func (s *Service) SetActive(ctx context.Context, id string, active bool) error {
	if err := s.store.SetActive(ctx, id, active); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "location active changed", "location_id", id, "active", active)
	return nil
}

// Delete removes a location. Locations with active schedules are kept and
// ErrLocationInUse is returned.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrLocationInUse) {
			s.logger.WarnContext(ctx, "location delete refused", "location_id", id)
		}
		return err
	}
	s.logger.InfoContext(ctx, "location deleted", "location_id", id)
	return nil
}
