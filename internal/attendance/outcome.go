package attendance

import (
	"time"

	"venueattend/internal/model"
)

// Code is the machine-readable result of a check-in attempt.
type Code string

const (
	CodeSuccess               Code = "success"
	CodeInvalidRequest        Code = "invalid_request"
	CodeIdentityError         Code = "identity_error"
	CodeAccountLocked         Code = "account_locked"
	CodeRecognitionMismatch   Code = "recognition_mismatch"
	CodeNoScheduleToday       Code = "no_schedule_today"
	CodeOutsideScheduleWindow Code = "outside_schedule_window"
	CodeAlreadyMarked         Code = "already_marked"
	CodeSystemError           Code = "system_error"
)

// Outcome is returned by every check-in attempt. Business rejections are
// outcomes, not errors.
type Outcome struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`

	MemberID   string `json:"member_id,omitempty"`
	MemberName string `json:"member_name,omitempty"`

	// Record is the stored attendance on success.
	Record *model.Attendance `json:"record,omitempty"`
	// CheckIn is the new check-in time on success and the earlier one on
	// already_marked.
	CheckIn *time.Time `json:"check_in_time,omitempty"`
	// LockedUntil is set on account_locked.
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	// Schedule is the governing schedule when one was found.
	Schedule *model.Schedule `json:"schedule,omitempty"`
}

func (o Outcome) OK() bool { return o.Code == CodeSuccess }
