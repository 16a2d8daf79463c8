package model

import "time"

// Status is the lateness category of a check-in.
type Status string

const (
	StatusOnTime   Status = "on_time"
	StatusLate     Status = "late"
	StatusVeryLate Status = "very_late"
)

// Rank orders statuses from on_time (0) to very_late (2).
func (s Status) Rank() int {
	switch s {
	case StatusOnTime:
		return 0
	case StatusLate:
		return 1
	case StatusVeryLate:
		return 2
	default:
		return -1
	}
}

func (s Status) Valid() bool { return s.Rank() >= 0 }

// Method records how a member was identified at check-in.
type Method string

const (
	MethodPIN     Method = "pin"
	MethodFacePIN Method = "face_pin"
	MethodFace    Method = "face"
	MethodManual  Method = "manual"
	MethodQRCode  Method = "qr_code"
)

func (m Method) Valid() bool {
	switch m {
	case MethodPIN, MethodFacePIN, MethodFace, MethodManual, MethodQRCode:
		return true
	}
	return false
}

// RequiresRecognition reports whether the method must be backed by a face match.
func (m Method) RequiresRecognition() bool {
	return m == MethodFacePIN || m == MethodFace
}

// Attendance is one member's check-in at one location on one date.
type Attendance struct {
	ID              string     `json:"id"`
	MemberID        string     `json:"member_id"`
	LocationID      string     `json:"location_id"`
	ScheduleID      *string    `json:"schedule_id,omitempty"`
	CheckIn         time.Time  `json:"check_in_time"`
	CheckOut        *time.Time `json:"check_out_time,omitempty"`
	Date            Date       `json:"attendance_date"`
	Method          Method     `json:"recognition_method"`
	Confidence      *float64   `json:"confidence_score,omitempty"`
	Status          Status     `json:"status"`
	Notes           string     `json:"notes,omitempty"`
	VerifiedByAdmin bool       `json:"verified_by_admin"`
	AdminNotes      string     `json:"admin_notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Slot identifies the uniqueness key of an attendance record.
type Slot struct {
	MemberID   string
	LocationID string
	Date       Date
}

func (a *Attendance) Slot() Slot {
	return Slot{MemberID: a.MemberID, LocationID: a.LocationID, Date: a.Date}
}
