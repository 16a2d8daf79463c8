package model

import "time"

// ScheduleState is the derived lifecycle position of a schedule.
type ScheduleState string

const (
	ScheduleScheduled ScheduleState = "scheduled"
	ScheduleOpen      ScheduleState = "open"
	ScheduleClosed    ScheduleState = "closed"
	ScheduleCancelled ScheduleState = "cancelled"
)

// DefaultActivityType is used when a schedule is created without one.
const DefaultActivityType = "Community Development"

// Schedule activates a location for check-in on one calendar date.
type Schedule struct {
	ID                 string    `json:"id"`
	LocationID         string    `json:"location_id"`
	Date               Date      `json:"date"`
	Start              TimeOfDay `json:"start_time"`
	End                TimeOfDay `json:"end_time"`
	ActivityType       string    `json:"activity_type"`
	Description        string    `json:"description,omitempty"`
	ExpectedAttendees  *int      `json:"expected_attendees,omitempty"`
	Active             bool      `json:"active"`
	Cancelled          bool      `json:"cancelled"`
	CancellationReason string    `json:"cancellation_reason,omitempty"`
	CreatedBy          string    `json:"created_by,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// IsCurrent reports whether the schedule is for today.
func (s *Schedule) IsCurrent(today Date) bool { return s.Date == today }

// CanMark reports whether attendance may be recorded against the schedule on
// today, independent of the time of day.
func (s *Schedule) CanMark(today Date) bool {
	return s.IsCurrent(today) && s.Active && !s.Cancelled
}

// InWindow reports whether tod falls within [Start, End].
func (s *Schedule) InWindow(tod TimeOfDay) bool {
	return s.Start <= tod && tod <= s.End
}

// IsOpenAt reports whether check-in is accepted at the given date and time.
func (s *Schedule) IsOpenAt(today Date, tod TimeOfDay) bool {
	return s.CanMark(today) && s.InWindow(tod)
}

// StateAt places the schedule in its lifecycle at the given date and time.
// An inactive schedule is reported as cancelled.
func (s *Schedule) StateAt(today Date, tod TimeOfDay) ScheduleState {
	switch {
	case s.Cancelled || !s.Active:
		return ScheduleCancelled
	case today.Before(s.Date):
		return ScheduleScheduled
	case today.After(s.Date):
		return ScheduleClosed
	case tod < s.Start:
		return ScheduleScheduled
	case tod > s.End:
		return ScheduleClosed
	default:
		return ScheduleOpen
	}
}

// Cancel soft-cancels the schedule.
func (s *Schedule) Cancel(reason string) {
	s.Cancelled = true
	s.CancellationReason = reason
}

// Activate reverses a cancellation.
func (s *Schedule) Activate() {
	s.Active = true
	s.Cancelled = false
	s.CancellationReason = ""
}
