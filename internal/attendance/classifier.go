package attendance

import (
	"fmt"

	"venueattend/internal/model"
)

// Default lateness thresholds.
var (
	DefaultStartThreshold = model.NewTimeOfDay(8, 0, 0)
	DefaultLateThreshold  = model.NewTimeOfDay(8, 30, 0)
)

// Classifier maps a check-in time of day to a lateness status. Thresholds are
// deployment-wide, not per schedule.
type Classifier struct {
	start model.TimeOfDay
	late  model.TimeOfDay
}

// NewClassifier builds a classifier. start must not be after late.
func NewClassifier(start, late model.TimeOfDay) (*Classifier, error) {
	if !start.Valid() || !late.Valid() {
		return nil, fmt.Errorf("classifier thresholds out of range: %d, %d", start, late)
	}
	if start > late {
		return nil, fmt.Errorf("start threshold %s is after late threshold %s", start.Clock(), late.Clock())
	}
	return &Classifier{start: start, late: late}, nil
}

// DefaultClassifier uses 08:00 and 08:30.
func DefaultClassifier() *Classifier {
	return &Classifier{start: DefaultStartThreshold, late: DefaultLateThreshold}
}

// Classify: tod <= start is on time, tod <= late is late, anything later is very late.
func (c *Classifier) Classify(tod model.TimeOfDay) model.Status {
	switch {
	case tod <= c.start:
		return model.StatusOnTime
	case tod <= c.late:
		return model.StatusLate
	default:
		return model.StatusVeryLate
	}
}

func (c *Classifier) Thresholds() (start, late model.TimeOfDay) { return c.start, c.late }
