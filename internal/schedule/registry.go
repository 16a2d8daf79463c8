package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"venueattend/internal/model"
)

// ErrInvalidSchedule is returned for malformed schedule input.
var ErrInvalidSchedule = errors.New("invalid schedule")

// Default check-in window for schedules created without explicit times.
var (
	DefaultStart = model.NewTimeOfDay(8, 0, 0)
	DefaultEnd   = model.NewTimeOfDay(16, 0, 0)
)

// LocationLookup resolves locations for schedule validation and listings.
type LocationLookup interface {
	Get(ctx context.Context, id string) (*model.Location, error)
}

// Registry answers "is this location open for check-in" and manages the
// schedule lifecycle.
type Registry struct {
	store     Store
	locations LocationLookup
	loc       *time.Location
	logger    *slog.Logger
}

type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithLocation sets the deployment timezone used to derive dates and times of day.
func WithLocation(loc *time.Location) Option {
	return func(r *Registry) { r.loc = loc }
}

func NewRegistry(store Store, locations LocationLookup, opts ...Option) *Registry {
	r := &Registry{store: store, locations: locations, loc: time.Local, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Clock converts an instant into the deployment's civil date and time of day.
func (r *Registry) Clock(at time.Time) (model.Date, model.TimeOfDay) {
	local := at.In(r.loc)
	return model.DateOf(local), model.TimeOfDayOf(local)
}

// Lookup finds the schedule governing check-in at a location at an instant.
// It returns nil when the location has no markable schedule that day. When it
// has several, the one whose window contains the instant wins; otherwise the
// earliest is returned with open false.
func (r *Registry) Lookup(ctx context.Context, locationID string, at time.Time) (*model.Schedule, bool, error) {
	today, tod := r.Clock(at)
	all, err := r.store.ForLocationOnDate(ctx, locationID, today)
	if err != nil {
		return nil, false, fmt.Errorf("schedules for location: %w", err)
	}
	var first *model.Schedule
	for i := range all {
		s := &all[i]
		if !s.CanMark(today) {
			continue
		}
		if s.InWindow(tod) {
			return s, true, nil
		}
		if first == nil {
			first = s
		}
	}
	return first, false, nil
}

// IsOpen reports whether a location accepts check-in at the given instant.
func (r *Registry) IsOpen(ctx context.Context, locationID string, at time.Time) (bool, error) {
	_, open, err := r.Lookup(ctx, locationID, at)
	return open, err
}

// ActiveScheduleFor returns the markable schedule of a location on a date
// regardless of time of day, or nil.
func (r *Registry) ActiveScheduleFor(ctx context.Context, locationID string, today model.Date) (*model.Schedule, error) {
	all, err := r.store.ForLocationOnDate(ctx, locationID, today)
	if err != nil {
		return nil, fmt.Errorf("schedules for location: %w", err)
	}
	for i := range all {
		if all[i].CanMark(today) {
			return &all[i], nil
		}
	}
	return nil, nil
}

func (r *Registry) Get(ctx context.Context, id string) (*model.Schedule, error) {
	return r.store.Get(ctx, id)
}

func (r *Registry) validate(ctx context.Context, s *model.Schedule) error {
	s.ActivityType = strings.TrimSpace(s.ActivityType)
	if s.ActivityType == "" {
		s.ActivityType = model.DefaultActivityType
	}
	switch {
	case s.LocationID == "":
		return fmt.Errorf("%w: location is required", ErrInvalidSchedule)
	case s.Date.IsZero():
		return fmt.Errorf("%w: date is required", ErrInvalidSchedule)
	case !s.Start.Valid() || !s.End.Valid():
		return fmt.Errorf("%w: time out of range", ErrInvalidSchedule)
	case s.Start > s.End:
		return fmt.Errorf("%w: start %s is after end %s", ErrInvalidSchedule, s.Start.Clock(), s.End.Clock())
	case s.ExpectedAttendees != nil && *s.ExpectedAttendees < 0:
		return fmt.Errorf("%w: expected attendees must not be negative", ErrInvalidSchedule)
	}
	if r.locations != nil {
		l, err := r.locations.Get(ctx, s.LocationID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return fmt.Errorf("%w: unknown location", ErrInvalidSchedule)
			}
			return err
		}
		if !l.Active {
			return fmt.Errorf("%w: location is inactive", ErrInvalidSchedule)
		}
	}
	return nil
}

// Create stores a new active schedule. A schedule with neither start nor end
// gets the default 08:00-16:00 window.
func (r *Registry) Create(ctx context.Context, s *model.Schedule) error {
	if s.Start == 0 && s.End == 0 {
		s.Start, s.End = DefaultStart, DefaultEnd
	}
	if err := r.validate(ctx, s); err != nil {
		return err
	}
	s.Active = true
	s.Cancelled = false
	s.CancellationReason = ""
	if err := r.store.Create(ctx, s); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "schedule created",
		"schedule_id", s.ID, "location_id", s.LocationID, "date", s.Date.String(),
		"start", s.Start.Clock(), "end", s.End.Clock())
	return nil
}

// Update changes the date, window and descriptive fields of a schedule.
func (r *Registry) Update(ctx context.Context, s *model.Schedule) error {
	cur, err := r.store.Get(ctx, s.ID)
	if err != nil {
		return err
	}
	s.LocationID = cur.LocationID
	s.Active, s.Cancelled, s.CancellationReason = cur.Active, cur.Cancelled, cur.CancellationReason
	if err := r.validate(ctx, s); err != nil {
		return err
	}
	return r.store.Update(ctx, s)
}

// Cancel marks a schedule cancelled. The record is kept.
func (r *Registry) Cancel(ctx context.Context, id, reason string) (*model.Schedule, error) {
	s, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Cancel(strings.TrimSpace(reason))
	if err := r.store.Update(ctx, s); err != nil {
		return nil, err
	}
	r.logger.InfoContext(ctx, "schedule cancelled", "schedule_id", id, "reason", s.CancellationReason)
	return s, nil
}

// Activate reinstates a schedule and clears any cancellation.
func (r *Registry) Activate(ctx context.Context, id string) (*model.Schedule, error) {
	s, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Activate()
	if err := r.store.Update(ctx, s); err != nil {
		return nil, err
	}
	r.logger.InfoContext(ctx, "schedule activated", "schedule_id", id)
	return s, nil
}

// Delete removes a schedule that has no attendance against it.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "schedule deleted", "schedule_id", id)
	return nil
}

func (r *Registry) ListForDate(ctx context.Context, date model.Date) ([]model.Schedule, error) {
	return r.store.ListForDate(ctx, date)
}

// TodayLocations lists the locations with a markable schedule on the date,
// each location once, in schedule order.
func (r *Registry) TodayLocations(ctx context.Context, today model.Date) ([]model.Location, error) {
	all, err := r.store.ListForDate(ctx, today)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var res []model.Location
	for i := range all {
		s := &all[i]
		if !s.CanMark(today) || seen[s.LocationID] {
			continue
		}
		seen[s.LocationID] = true
		if r.locations == nil {
			res = append(res, model.Location{ID: s.LocationID})
			continue
		}
		l, err := r.locations.Get(ctx, s.LocationID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				continue
			}
			return nil, err
		}
		res = append(res, *l)
	}
	return res, nil
}
