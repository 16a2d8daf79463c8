package schedule

import (
	"context"
	"errors"

	"venueattend/internal/model"
)

// ErrScheduleReferenced is returned when deleting a schedule whose location
// already has attendance on the scheduled date. Cancel it instead.
var ErrScheduleReferenced = errors.New("schedule has attendance records")

// Store persists schedules.
type Store interface {
	Create(ctx context.Context, s *model.Schedule) error
	Get(ctx context.Context, id string) (*model.Schedule, error)
	Update(ctx context.Context, s *model.Schedule) error
	// ForLocationOnDate returns every schedule of a location on a date ordered by start time.
	ForLocationOnDate(ctx context.Context, locationID string, date model.Date) ([]model.Schedule, error)
	ListForDate(ctx context.Context, date model.Date) ([]model.Schedule, error)
	CountActiveForLocation(ctx context.Context, locationID string) (int, error)
	Delete(ctx context.Context, id string) error
}
