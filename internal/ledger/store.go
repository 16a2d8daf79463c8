package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"venueattend/internal/model"
)

// ErrAlreadyCheckedOut is returned when a record already carries a check-out time.
var ErrAlreadyCheckedOut = errors.New("already checked out")

// DuplicateError reports that the (member, location, date) slot is taken.
// Existing is the record occupying it when the store could read it back.
type DuplicateError struct {
	Existing *model.Attendance
}

func (e *DuplicateError) Error() string {
	if e.Existing == nil {
		return "attendance already recorded"
	}
	return fmt.Sprintf("attendance already recorded for member %s at location %s on %s",
		e.Existing.MemberID, e.Existing.LocationID, e.Existing.Date)
}

// Is lets callers match duplicates with errors.Is(err, model.ErrConflict).
func (e *DuplicateError) Is(target error) bool { return target == model.ErrConflict }

// Filter narrows ledger queries. Zero fields do not filter.
type Filter struct {
	MemberID   string
	LocationID string
	From       model.Date
	To         model.Date
	Status     model.Status
	Method     model.Method
	Limit      int
	Offset     int
}

// Store persists attendance records. Insert must be atomic with respect to the
// (member, location, date) uniqueness rule.
type Store interface {
	// Existing returns the record for the slot, or nil when the slot is free.
	Existing(ctx context.Context, memberID, locationID string, date model.Date) (*model.Attendance, error)
	// Insert stores rec or returns *DuplicateError when the slot is taken.
	Insert(ctx context.Context, rec *model.Attendance) error
	Get(ctx context.Context, id string) (*model.Attendance, error)
	// Query returns matching records, most recent check-in first.
	Query(ctx context.Context, f Filter) ([]model.Attendance, error)
	Count(ctx context.Context, f Filter) (int, error)
	CheckOut(ctx context.Context, id string, at time.Time) (*model.Attendance, error)
	Annotate(ctx context.Context, id string, verified bool, adminNotes string) (*model.Attendance, error)
	HasAttendance(ctx context.Context, locationID string, date model.Date) (bool, error)
}
