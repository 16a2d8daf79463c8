package identity

import (
	"context"
	"time"

	"venueattend/internal/model"
)

// Store persists members. It is pure I/O: lockout thresholds are passed in by
// the service, and every mutation is a single conditional update.
type Store interface {
	Create(ctx context.Context, m *model.Member) error
	GetByID(ctx context.Context, id string) (*model.Member, error)
	GetByCode(ctx context.Context, code string) (*model.Member, error)
	// RecordFailedAttempt increments the failure counter. When the incremented
	// count reaches threshold the counter is reset and locked_until is set to
	// lockUntil, all in one atomic update.
	RecordFailedAttempt(ctx context.Context, id string, threshold int, lockUntil time.Time) (model.Lockout, error)
	// ResetFailedAttempts clears the counter and any lock.
	ResetFailedAttempts(ctx context.Context, id string) error
	UpdatePIN(ctx context.Context, id, pinHash string) error
	SetTemplate(ctx context.Context, id string, template []byte) error
	SetActive(ctx context.Context, id string, active bool) error
	List(ctx context.Context) ([]model.Member, error)
	ListWithTemplates(ctx context.Context) ([]model.Member, error)
	CountActive(ctx context.Context) (int, error)
}
