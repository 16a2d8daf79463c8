package location

import (
	"context"
	"errors"

	"venueattend/internal/model"
)

// ErrLocationInUse is returned when deleting a location that still has an active schedule.
var ErrLocationInUse = errors.New("location has active schedules")

// Store persists locations.
type Store interface {
	Create(ctx context.Context, l *model.Location) error
	Get(ctx context.Context, id string) (*model.Location, error)
	List(ctx context.Context, activeOnly bool) ([]model.Location, error)
	Update(ctx context.Context, l *model.Location) error
	SetActive(ctx context.Context, id string, active bool) error
	// Delete removes the location unless an active schedule references it.
	// The check and the delete are one statement.
	Delete(ctx context.Context, id string) error
}
