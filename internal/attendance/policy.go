package attendance

import "fmt"

// WindowPolicy decides whether check-ins must fall inside the schedule's
// start/end window. It applies to both Mark and MarkBySchedule.
type WindowPolicy string

const (
	// WindowEnforced rejects check-ins outside [start, end] on every path.
	WindowEnforced WindowPolicy = "enforced"
	// WindowScheduleDayOnly lets MarkBySchedule accept any time on the
	// schedule's day. Mark still enforces the window.
	WindowScheduleDayOnly WindowPolicy = "schedule_day_only"
)

func ParseWindowPolicy(s string) (WindowPolicy, error) {
	switch p := WindowPolicy(s); p {
	case WindowEnforced, WindowScheduleDayOnly:
		return p, nil
	case "":
		return WindowEnforced, nil
	default:
		return "", fmt.Errorf("unknown schedule window policy %q", s)
	}
}

func (p *WindowPolicy) UnmarshalText(b []byte) error {
	parsed, err := ParseWindowPolicy(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// enforcesWindow reports whether the given path must check the time window.
func (p WindowPolicy) enforcesWindow(bySchedule bool) bool {
	if !bySchedule {
		return true
	}
	return p != WindowScheduleDayOnly
}
