package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"venueattend/internal/model"
	"venueattend/internal/queue"
)

// QueueNotifier enqueues attendance events for the worker to forward.
type QueueNotifier struct {
	q queue.Queue
}

func NewQueueNotifier(q queue.Queue) *QueueNotifier {
	return &QueueNotifier{q: q}
}

// AttendanceMarked publishes an attendance.marked message for rec.
func (n *QueueNotifier) AttendanceMarked(ctx context.Context, m *model.Member, rec *model.Attendance) error {
	body, err := json.Marshal(NewEvent(m, rec))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := n.q.Publish(ctx, queue.Message{Type: TypeAttendanceMarked, Body: body}); err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeAttendanceMarked, err)
	}
	return nil
}
