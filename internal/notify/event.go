package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"venueattend/internal/model"
)

// TypeAttendanceMarked is the queue message type for a successful check-in.
const TypeAttendanceMarked = "attendance.marked"

// Event is the payload handed to the mail/SMS service after a check-in.
type Event struct {
	AttendanceID string       `json:"attendance_id"`
	MemberID     string       `json:"member_id"`
	MemberCode   string       `json:"member_code"`
	MemberName   string       `json:"member_name"`
	Email        string       `json:"email,omitempty"`
	Phone        string       `json:"phone,omitempty"`
	LocationID   string       `json:"location_id"`
	ScheduleID   string       `json:"schedule_id,omitempty"`
	Date         model.Date   `json:"attendance_date"`
	CheckIn      time.Time    `json:"check_in_time"`
	Status       model.Status `json:"status"`
	Method       model.Method `json:"recognition_method"`
}

// NewEvent builds the event for rec marked by m.
func NewEvent(m *model.Member, rec *model.Attendance) Event {
	ev := Event{
		AttendanceID: rec.ID,
		MemberID:     rec.MemberID,
		LocationID:   rec.LocationID,
		Date:         rec.Date,
		CheckIn:      rec.CheckIn,
		Status:       rec.Status,
		Method:       rec.Method,
	}
	if rec.ScheduleID != nil {
		ev.ScheduleID = *rec.ScheduleID
	}
	if m != nil {
		ev.MemberCode = m.Code
		ev.MemberName = m.FullName
		ev.Email = m.Email
		if m.Phone != nil {
			ev.Phone = *m.Phone
		}
	}
	return ev
}

// DecodeEvent parses a queued attendance.marked body.
func DecodeEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("decode %s event: %w", TypeAttendanceMarked, err)
	}
	return ev, nil
}
